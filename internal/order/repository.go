package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrStatusConflict means the conditional status update matched no row with
	// the expected current status: somebody else transitioned the order first.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context, status *OrderStatus, limit, offset int) ([]Order, int, error)
	// UpdateOrderStatus applies from -> to only if the stored status still
	// equals from. A lost race surfaces as ErrStatusConflict, never as a
	// partial write.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to OrderStatus) error
	// ConfirmPayment is the compare-and-swap PENDING -> CONFIRMED/PAID used by
	// payment reconciliation. Returns false without error when the order exists
	// but was not PENDING anymore.
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateOrder(ctx context.Context, o *Order) (err error) {
	if o.ID == uuid.Nil {
		genID, genErr := uuid.NewV4()
		if genErr != nil {
			return fmt.Errorf("repository: failed to generate order ID: %w", genErr)
		}
		o.ID = genID
	}

	tx, beginErr := r.db.Begin(ctx)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				log.Error().Err(rbErr).Stringer("order_id", o.ID).Msg("repository: failed to rollback transaction")
			}
		} else if commitErr := tx.Commit(ctx); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit transaction: %w", commitErr)
		}
	}()

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now

	queryOrder := `
		INSERT INTO orders (id, user_id, status, payment_status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = tx.Exec(ctx, queryOrder,
		o.ID, o.UserID, string(o.Status), string(o.PaymentStatus), o.TotalAmount, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (id, order_id, product_id, title, quantity, price_per_unit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range o.OrderItems {
		item := &o.OrderItems[i]

		itemID, genErr := uuid.NewV4()
		if genErr != nil {
			err = fmt.Errorf("repository: failed to generate order item ID: %w", genErr)
			return err
		}
		item.ID = itemID
		item.OrderID = o.ID
		item.CreatedAt = now

		_, err = tx.Exec(ctx, queryItem,
			item.ID, item.OrderID, item.ProductID, item.Title, item.Quantity, item.PricePerUnit, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %s: %w", o.ID, err)
		}
	}

	return nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	queryOrder := `
		SELECT id, user_id, status, payment_status, total_amount, created_at, updated_at
		FROM orders
		WHERE id = $1
	`

	var o Order
	err := r.db.QueryRow(ctx, queryOrder, orderID).Scan(
		&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %s: %w", orderID, err)
	}

	items, err := r.loadItems(ctx, []uuid.UUID{orderID})
	if err != nil {
		return nil, err
	}
	o.OrderItems = items[orderID]
	if o.OrderItems == nil {
		o.OrderItems = make([]OrderItem, 0)
	}

	return &o, nil
}

func (r *postgresRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	query := `
		SELECT id, user_id, status, payment_status, total_amount, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query orders for user id %s: %w", userID, err)
	}
	defer rows.Close()

	orders, orderIDs, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("repository: orders for user id %s: %w", userID, err)
	}
	if len(orders) == 0 {
		return []Order{}, nil
	}

	if err := r.attachItems(ctx, orders, orderIDs); err != nil {
		return nil, err
	}

	return orders, nil
}

func (r *postgresRepository) ListOrders(ctx context.Context, status *OrderStatus, limit, offset int) ([]Order, int, error) {
	query := `
		SELECT id, user_id, status, payment_status, total_amount, created_at, updated_at
		FROM orders
		WHERE $1::text IS NULL OR status = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var statusArg *string
	if status != nil {
		s := string(*status)
		statusArg = &s
	}

	rows, err := r.db.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query orders: %w", err)
	}
	defer rows.Close()

	orders, orderIDs, err := scanOrders(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: list orders: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM orders WHERE $1::text IS NULL OR status = $1`
	if err := r.db.QueryRow(ctx, countQuery, statusArg).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders: %w", err)
	}

	if len(orders) > 0 {
		if err := r.attachItems(ctx, orders, orderIDs); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to OrderStatus) error {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`

	cmdTag, err := r.db.Exec(ctx, query, string(to), time.Now().UTC(), orderID, string(from))
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Str("new_status", string(to)).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status for %s: %w", orderID, err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("repository: failed to check order %s after status update: %w", orderID, err)
	}
	if !exists {
		return ErrOrderNotFound
	}

	return ErrStatusConflict
}

func (r *postgresRepository) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`

	cmdTag, err := r.db.Exec(ctx, query,
		string(StatusConfirmed), string(PaymentPaid), time.Now().UTC(), orderID, string(StatusPending),
	)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("repository: failed to confirm payment")
		return false, fmt.Errorf("repository: failed to confirm payment for order %s: %w", orderID, err)
	}

	return cmdTag.RowsAffected() > 0, nil
}

func scanOrders(rows pgx.Rows) ([]Order, []uuid.UUID, error) {
	orders := make([]Order, 0)
	orderIDs := make([]uuid.UUID, 0)

	for rows.Next() {
		var o Order
		err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.PaymentStatus, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.OrderItems = make([]OrderItem, 0)
		orders = append(orders, o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return orders, orderIDs, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID][]OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, title, quantity, price_per_unit, created_at
		FROM order_items
		WHERE order_id = ANY($1)
	`

	rows, err := r.db.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	itemsByOrder := make(map[uuid.UUID][]OrderItem)
	for rows.Next() {
		var item OrderItem
		err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Title, &item.Quantity, &item.PricePerUnit, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		itemsByOrder[item.OrderID] = append(itemsByOrder[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: error iterating order items: %w", err)
	}

	return itemsByOrder, nil
}

func (r *postgresRepository) attachItems(ctx context.Context, orders []Order, orderIDs []uuid.UUID) error {
	itemsByOrder, err := r.loadItems(ctx, orderIDs)
	if err != nil {
		return err
	}
	for i := range orders {
		if items, ok := itemsByOrder[orders[i].ID]; ok {
			orders[i].OrderItems = items
		}
	}
	return nil
}

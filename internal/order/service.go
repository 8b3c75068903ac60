package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wickandflame/shop-backend/internal/product"
)

// allowedTransitions is the full lifecycle table. CONFIRMED -> CANCELLED is
// additionally guarded in UpdateStatus: once payment_status is PAID the order
// can only move forward, a refund flow lives elsewhere.
var allowedTransitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped:   {},
	StatusCancelled: {},
}

var (
	ErrEmptyCart           = errors.New("order must contain at least one item")
	ErrInvalidQuantity     = errors.New("order item quantity must be greater than zero")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrOrderCreationFailed = errors.New("order creation failed")
)

// Catalog is the read-only product lookup the order builder prices carts from.
// Client-submitted prices are never consulted.
type Catalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*product.Product, error)
}

type Service interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, items []CartItem) (*Order, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error)
	GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error)
	ListOrders(ctx context.Context, statusFilter string, page, limit int) ([]Order, int, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (*Order, error)
}

type service struct {
	orderRepo Repository
	catalog   Catalog
	ledger    product.StockLedger
}

func NewService(orderRepo Repository, catalog Catalog, ledger product.StockLedger) Service {
	return &service{
		orderRepo: orderRepo,
		catalog:   catalog,
		ledger:    ledger,
	}
}

// CreateOrder validates the cart, re-prices it from the catalog, reserves stock
// line by line and persists the order as PENDING/UNPAID. Lines are processed
// sequentially so a failure leaves a deterministic set of reservations to
// compensate.
func (s *service) CreateOrder(ctx context.Context, userID uuid.UUID, items []CartItem) (*Order, error) {
	if len(items) == 0 {
		log.Warn().Stringer("user_id", userID).Msg("service: attempt to create order with no items")
		return nil, ErrEmptyCart
	}

	orderItems := make([]OrderItem, 0, len(items))
	totalAmount := 0.0

	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s", ErrInvalidQuantity, item.ProductID)
		}
		if item.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: product id cannot be nil", ErrInvalidQuantity)
		}

		p, err := s.catalog.GetByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, product.ErrProductNotFound) {
				return nil, fmt.Errorf("%w: %s", product.ErrProductNotFound, item.ProductID)
			}
			log.Error().Err(err).Stringer("product_id", item.ProductID).Msg("service: failed to resolve product for order")
			return nil, fmt.Errorf("service: failed to resolve product %s: %w", item.ProductID, err)
		}

		orderItems = append(orderItems, OrderItem{
			ProductID:    p.ID,
			Title:        p.Title,
			Quantity:     item.Quantity,
			PricePerUnit: p.Price,
		})
		totalAmount += float64(item.Quantity) * p.Price
	}

	reserved, err := s.reserveAll(ctx, orderItems)
	if err != nil {
		s.compensate(ctx, reserved)
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	o := &Order{
		UserID:        userID,
		Status:        StatusPending,
		PaymentStatus: PaymentUnpaid,
		OrderItems:    orderItems,
		TotalAmount:   totalAmount,
	}

	if err := s.orderRepo.CreateOrder(ctx, o); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to persist order, restoring reserved stock")
		s.compensate(ctx, reserved)
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}

	log.Info().Stringer("order_id", o.ID).Stringer("user_id", userID).Float64("total_amount", totalAmount).Msg("service: order created")
	return o, nil
}

func (s *service) reserveAll(ctx context.Context, items []OrderItem) ([]OrderItem, error) {
	reserved := make([]OrderItem, 0, len(items))
	for _, item := range items {
		if err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			return reserved, fmt.Errorf("failed to reserve %d of product %s: %w", item.Quantity, item.ProductID, err)
		}
		reserved = append(reserved, item)
	}
	return reserved, nil
}

// compensate restores every already-reserved line. It runs on a context
// detached from request cancellation: a timed-out creation must still give
// the stock back.
func (s *service) compensate(ctx context.Context, reserved []OrderItem) {
	ctx = context.WithoutCancel(ctx)
	for _, item := range reserved {
		if err := s.ledger.Restore(ctx, item.ProductID, item.Quantity); err != nil {
			log.Error().Err(err).
				Stringer("product_id", item.ProductID).
				Int("quantity", item.Quantity).
				Msg("service: failed to restore stock during compensation, manual reconciliation required")
		}
	}
}

func (s *service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return o, nil
}

// GetOrderForUser hides other users' orders behind not-found instead of
// forbidden, so order ids cannot be probed.
func (s *service) GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*Order, error) {
	o, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrOrderNotFound
	}

	return o, nil
}

func (s *service) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]Order, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("service: failed to fetch user orders")
		return nil, fmt.Errorf("service: failed to fetch user orders: %w", err)
	}

	return orders, nil
}

func (s *service) ListOrders(ctx context.Context, statusFilter string, page, limit int) ([]Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	var status *OrderStatus
	if statusFilter != "" {
		parsed, ok := ParseStatus(statusFilter)
		if !ok {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, statusFilter)
		}
		status = &parsed
	}

	orders, total, err := s.orderRepo.ListOrders(ctx, status, limit, (page-1)*limit)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list orders")
		return nil, 0, fmt.Errorf("service: failed to list orders: %w", err)
	}

	return orders, total, nil
}

// UpdateOrderStatus drives the admin-facing transitions of the state machine.
// The repository write is conditional on the status the decision was made
// against, so a concurrent transition cannot be silently overwritten.
func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (*Order, error) {
	target, ok := ParseStatus(newStatus)
	if !ok {
		log.Warn().Stringer("order_id", orderID).Str("new_status", newStatus).Msg("service: unrecognized status in update request")
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, newStatus)
	}

	current, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to get order for status update")
		return nil, fmt.Errorf("service: failed to get order for status update: %w", err)
	}

	if !allowedTransitions[current.Status][target] {
		log.Warn().
			Stringer("order_id", orderID).
			Stringer("current_status", current.Status).
			Stringer("new_status", target).
			Msg("service: invalid status transition attempt")
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}

	// Оплаченный заказ нельзя отменить этим путём, только через возврат средств.
	if target == StatusCancelled && current.PaymentStatus == PaymentPaid {
		log.Warn().Stringer("order_id", orderID).Msg("service: attempt to cancel a paid order")
		return nil, fmt.Errorf("%w: cannot cancel a paid order", ErrInvalidTransition)
	}

	if err := s.orderRepo.UpdateOrderStatus(ctx, orderID, current.Status, target); err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			return nil, ErrOrderNotFound
		case errors.Is(err, ErrStatusConflict):
			log.Warn().Stringer("order_id", orderID).Stringer("new_status", target).Msg("service: order status changed concurrently")
			return nil, fmt.Errorf("%w: order status changed concurrently", ErrInvalidTransition)
		}
		log.Error().Err(err).Stringer("order_id", orderID).Stringer("new_status", target).Msg("service: failed to update order status")
		return nil, fmt.Errorf("service: failed to update order status: %w", err)
	}

	// Cancelling releases the stock that was reserved at creation time.
	if target == StatusCancelled {
		s.compensate(ctx, current.OrderItems)
	}

	log.Info().
		Stringer("order_id", orderID).
		Stringer("old_status", current.Status).
		Stringer("new_status", target).
		Msg("service: order status updated")

	current.Status = target
	return current, nil
}

package product

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
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type Repository interface {
	Create(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	List(ctx context.Context, limit, offset int) ([]Product, int, error)
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id uuid.UUID) error

	// StockLedger is implemented by the same repository: products own their
	// stock counter and every mutation goes through these two operations.
	StockLedger
}

// StockLedger is the only surface allowed to mutate Product.Stock.
type StockLedger interface {
	// Reserve atomically decrements stock by quantity, failing with
	// ErrInsufficientStock when quantity exceeds the current value.
	Reserve(ctx context.Context, productID uuid.UUID, quantity int) error
	// Restore atomically increments stock by quantity. Idempotency is the
	// caller's concern, the ledger just adds.
	Restore(ctx context.Context, productID uuid.UUID, quantity int) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, p *Product) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate product ID: %w", err)
		}
		p.ID = id
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO products (id, title, description, category, fragrance, size, price, stock, image_urls, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		p.ID, p.Title, p.Description, string(p.Category), p.Fragrance, p.Size, p.Price, p.Stock, p.ImageURLs, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}

	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	query := `
		SELECT id, title, description, category, fragrance, size, price, stock, image_urls, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var p Product
	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Description, &p.Category, &p.Fragrance, &p.Size, &p.Price, &p.Stock, &p.ImageURLs, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product by id %s: %w", id, err)
	}

	return &p, nil
}

func (r *postgresRepository) List(ctx context.Context, limit, offset int) ([]Product, int, error) {
	query := `
		SELECT id, title, description, category, fragrance, size, price, stock, image_urls, created_at, updated_at
		FROM products
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]Product, 0)
	for rows.Next() {
		var p Product
		err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Category, &p.Fragrance, &p.Size, &p.Price, &p.Stock, &p.ImageURLs, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: error iterating products: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count products: %w", err)
	}

	return products, total, nil
}

func (r *postgresRepository) Update(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET title = $1, description = $2, category = $3, fragrance = $4, size = $5, price = $6, image_urls = $7, updated_at = $8
		WHERE id = $9
	`

	cmdTag, err := r.db.Exec(ctx, query,
		p.Title, p.Description, string(p.Category), p.Fragrance, p.Size, p.Price, p.ImageURLs, time.Now().UTC(), p.ID,
	)
	if err != nil {
		return fmt.Errorf("repository: failed to update product %s: %w", p.ID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete product %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}

	return nil
}

// Reserve relies on a single conditional UPDATE so two concurrent reservations
// against the same product are serialized by the row lock, not by this process.
// Multiple service instances share the same guarantee.
func (r *postgresRepository) Reserve(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock - $2, updated_at = $3
		WHERE id = $1 AND stock >= $2
	`

	cmdTag, err := r.db.Exec(ctx, query, productID, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to reserve stock for product %s: %w", productID, err)
	}
	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	// Ноль строк: либо товара нет, либо остатка не хватает.
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return fmt.Errorf("repository: failed to check product %s after reserve: %w", productID, err)
	}
	if !exists {
		return ErrProductNotFound
	}

	return ErrInsufficientStock
}

func (r *postgresRepository) Restore(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `
		UPDATE products
		SET stock = stock + $2, updated_at = $3
		WHERE id = $1
	`

	cmdTag, err := r.db.Exec(ctx, query, productID, quantity, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to restore stock for product %s: %w", productID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		log.Warn().Stringer("product_id", productID).Int("quantity", quantity).Msg("repository: restore for missing product")
		return ErrProductNotFound
	}

	return nil
}

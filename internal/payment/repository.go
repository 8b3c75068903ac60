package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is the audit record of a verified notification. It exists so failed
// and duplicate deliveries can be reconciled by hand against provider reports.
type Event struct {
	ID         uuid.UUID `json:"id" db:"id"`
	OrderID    uuid.UUID `json:"order_id" db:"order_id"`
	StatusCode string    `json:"status_code" db:"status_code"`
	Amount     string    `json:"amount" db:"amount"`
	Currency   string    `json:"currency" db:"currency"`
	ReceivedAt time.Time `json:"received_at" db:"received_at"`
}

type EventRepository interface {
	RecordEvent(ctx context.Context, ev *Event) error
}

type postgresEventRepository struct {
	db *pgxpool.Pool
}

func NewEventRepository(db *pgxpool.Pool) EventRepository {
	return &postgresEventRepository{db: db}
}

func (r *postgresEventRepository) RecordEvent(ctx context.Context, ev *Event) error {
	if ev.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return fmt.Errorf("repository: failed to generate payment event ID: %w", err)
		}
		ev.ID = id
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payment_events (id, order_id, status_code, amount, currency, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, ev.ID, ev.OrderID, ev.StatusCode, ev.Amount, ev.Currency, ev.ReceivedAt)
	if err != nil {
		return fmt.Errorf("repository: failed to insert payment event for order %s: %w", ev.OrderID, err)
	}

	return nil
}

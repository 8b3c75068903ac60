package order

import (
	"time"

	"github.com/gofrs/uuid"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusCancelled OrderStatus = "CANCELLED"
)

func (os OrderStatus) String() string {
	return string(os)
}

// ParseStatus maps a raw client string onto the status enum. Anything outside
// the enum is reported as invalid, the caller decides how to reject it.
func ParseStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case StatusPending, StatusConfirmed, StatusShipped, StatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

func (ps PaymentStatus) String() string {
	return string(ps)
}

// OrderItem is an immutable snapshot of the product at purchase time. Title and
// price are stored by value so later catalog edits never rewrite history.
type OrderItem struct {
	ID           uuid.UUID `json:"id" db:"id"`
	OrderID      uuid.UUID `json:"order_id" db:"order_id"`
	ProductID    uuid.UUID `json:"product_id" db:"product_id"`
	Title        string    `json:"title" db:"title"`
	Quantity     int       `json:"quantity" db:"quantity"`
	PricePerUnit float64   `json:"price_per_unit" db:"price_per_unit"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

type Order struct {
	ID            uuid.UUID     `json:"id" db:"id"`
	UserID        uuid.UUID     `json:"user_id" db:"user_id"`
	Status        OrderStatus   `json:"status" db:"status"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`
	OrderItems    []OrderItem   `json:"order_items" db:"-"` // Получается отдельным запросом, не колонкой
	TotalAmount   float64       `json:"total_amount" db:"total_amount"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// CartItem is what the client is allowed to say about a line: which product and
// how many. Prices always come from the catalog on the server side.
type CartItem struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

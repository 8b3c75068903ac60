package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wickandflame/shop-backend/internal/config"
	"github.com/wickandflame/shop-backend/internal/order"
	"github.com/wickandflame/shop-backend/internal/user"
)

var (
	// ErrInvalidSignature deliberately carries no detail about what part of
	// the check failed.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrOrderNotPayable means the notification verified but the order is in a
	// state that can never accept this payment (e.g. already cancelled).
	ErrOrderNotPayable = errors.New("order is not payable")
)

// CheckoutRequest is the redirect payload the frontend posts to PayHere. Field
// names follow the provider's form contract.
type CheckoutRequest struct {
	MerchantID string `json:"merchant_id"`
	ReturnURL  string `json:"return_url"`
	CancelURL  string `json:"cancel_url"`
	NotifyURL  string `json:"notify_url"`
	OrderID    string `json:"order_id"`
	Items      string `json:"items"`
	Currency   string `json:"currency"`
	Amount     string `json:"amount"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Country    string `json:"country"`
	Hash       string `json:"hash"`
}

// CustomerDirectory resolves the purchasing account for checkout contact fields.
type CustomerDirectory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type Service interface {
	InitiateCheckout(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*CheckoutRequest, error)
	HandleNotification(ctx context.Context, n Notification) error
}

type service struct {
	signer    *Signer
	orderRepo order.Repository
	events    EventRepository
	customers CustomerDirectory
	cfg       config.PayHereConfig
}

func NewService(signer *Signer, orderRepo order.Repository, events EventRepository, customers CustomerDirectory, cfg config.PayHereConfig) Service {
	return &service{
		signer:    signer,
		orderRepo: orderRepo,
		events:    events,
		customers: customers,
		cfg:       cfg,
	}
}

func (s *service) InitiateCheckout(ctx context.Context, orderID, userID uuid.UUID, isAdmin bool) (*CheckoutRequest, error) {
	o, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, order.ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to load order for checkout")
		return nil, fmt.Errorf("service: failed to load order for checkout: %w", err)
	}
	if !isAdmin && o.UserID != userID {
		return nil, order.ErrOrderNotFound
	}

	req := &CheckoutRequest{
		MerchantID: s.signer.MerchantID(),
		ReturnURL:  s.cfg.ReturnURL,
		CancelURL:  s.cfg.CancelURL,
		NotifyURL:  s.cfg.NotifyURL,
		OrderID:    o.ID.String(),
		Items:      "Candle Shop Order",
		Currency:   s.cfg.Currency,
		Amount:     FormatAmount(o.TotalAmount),
		FirstName:  "Customer",
		Phone:      "0000000000",
		Address:    "N/A",
		City:       "N/A",
		Country:    "Sri Lanka",
		Email:      "customer@example.com",
	}

	if u, err := s.customers.GetByID(ctx, o.UserID); err == nil {
		req.FirstName = u.FirstName
		req.LastName = u.LastName
		req.Email = u.Email
	} else {
		// Заказ важнее карточки клиента: продолжаем с заглушками.
		log.Warn().Err(err).Stringer("user_id", o.UserID).Msg("service: failed to load customer for checkout, using placeholders")
	}

	req.Hash = s.signer.RequestHash(req.OrderID, req.Amount, req.Currency)

	log.Info().Stringer("order_id", o.ID).Str("amount", req.Amount).Msg("service: checkout initiated")
	return req, nil
}

// HandleNotification is the reconciliation entry point. Signature verification
// happens before any storage access; only verified payloads may name an order
// id that gets looked up. The CONFIRMED transition is a compare-and-swap from
// PENDING, so redelivered notifications are no-op successes.
func (s *service) HandleNotification(ctx context.Context, n Notification) error {
	if !s.signer.Verify(n) {
		log.Warn().Str("order_id", n.OrderID).Str("status_code", n.StatusCode).Msg("service: rejected payment notification with bad signature")
		return ErrInvalidSignature
	}

	orderID, err := uuid.FromString(n.OrderID)
	if err != nil {
		log.Warn().Str("order_id", n.OrderID).Msg("service: verified notification references malformed order id")
		return order.ErrOrderNotFound
	}

	if n.StatusCode != StatusCodeSuccess {
		log.Info().
			Stringer("order_id", orderID).
			Str("status_code", n.StatusCode).
			Msg("service: non-success payment notification recorded, no transition applied")
		s.recordEvent(ctx, orderID, n)
		return nil
	}

	applied, err := s.orderRepo.ConfirmPayment(ctx, orderID)
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to confirm payment")
		return fmt.Errorf("service: failed to confirm payment: %w", err)
	}

	if !applied {
		o, err := s.orderRepo.GetOrderByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, order.ErrOrderNotFound) {
				log.Warn().Stringer("order_id", orderID).Msg("service: verified notification for unknown order")
				return order.ErrOrderNotFound
			}
			log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to load order after confirm miss")
			return fmt.Errorf("service: failed to load order after confirm miss: %w", err)
		}

		if o.PaymentStatus != order.PaymentPaid {
			// Заказ есть, но платить по нему уже нельзя (например, отменён).
			log.Error().
				Stringer("order_id", orderID).
				Stringer("status", o.Status).
				Msg("service: success notification for order outside the payable state")
			s.recordEvent(ctx, orderID, n)
			return ErrOrderNotPayable
		}

		// Повторная доставка того же события: заказ уже CONFIRMED/PAID.
		log.Info().Stringer("order_id", orderID).Msg("service: duplicate payment notification, order already confirmed")
		s.recordEvent(ctx, orderID, n)
		return nil
	}

	s.recordEvent(ctx, orderID, n)
	log.Info().Stringer("order_id", orderID).Str("amount", n.Amount).Msg("service: order confirmed and marked paid")
	return nil
}

// recordEvent appends the audit row. The transition itself is already durable,
// so an audit failure is logged for manual reconciliation instead of failing
// the webhook and provoking endless provider retries.
func (s *service) recordEvent(ctx context.Context, orderID uuid.UUID, n Notification) {
	ev := &Event{
		OrderID:    orderID,
		StatusCode: n.StatusCode,
		Amount:     n.Amount,
		Currency:   n.Currency,
	}
	if err := s.events.RecordEvent(context.WithoutCancel(ctx), ev); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Str("status_code", n.StatusCode).Msg("service: failed to record payment event")
	}
}

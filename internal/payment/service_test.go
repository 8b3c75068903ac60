package payment_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wickandflame/shop-backend/internal/config"
	"github.com/wickandflame/shop-backend/internal/order"
	"github.com/wickandflame/shop-backend/internal/payment"
	"github.com/wickandflame/shop-backend/internal/user"
)

type mockOrderRepository struct {
	getByIDFunc        func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	confirmPaymentFunc func(ctx context.Context, orderID uuid.UUID) (bool, error)

	getByIDCalls        int
	confirmPaymentCalls int
}

func (m *mockOrderRepository) CreateOrder(ctx context.Context, o *order.Order) error {
	panic("not expected in payment tests")
}

func (m *mockOrderRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	m.getByIDCalls++
	return m.getByIDFunc(ctx, id)
}

func (m *mockOrderRepository) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	panic("not expected in payment tests")
}

func (m *mockOrderRepository) ListOrders(ctx context.Context, status *order.OrderStatus, limit, offset int) ([]order.Order, int, error) {
	panic("not expected in payment tests")
}

func (m *mockOrderRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to order.OrderStatus) error {
	panic("not expected in payment tests")
}

func (m *mockOrderRepository) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (bool, error) {
	m.confirmPaymentCalls++
	return m.confirmPaymentFunc(ctx, orderID)
}

type mockEventRepository struct {
	events []payment.Event
}

func (m *mockEventRepository) RecordEvent(ctx context.Context, ev *payment.Event) error {
	m.events = append(m.events, *ev)
	return nil
}

type mockCustomerDirectory struct {
	users map[uuid.UUID]*user.User
}

func (m *mockCustomerDirectory) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, user.ErrNotFound
}

var payHereCfg = config.PayHereConfig{
	MerchantID:     "1211149",
	MerchantSecret: "super-secret",
	Currency:       "LKR",
	ReturnURL:      "https://shop.example/payment-success",
	CancelURL:      "https://shop.example/payment-cancel",
	NotifyURL:      "https://api.shop.example/api/v1/payments/payhere/notify",
}

func newTestService(orderRepo *mockOrderRepository, events *mockEventRepository, customers *mockCustomerDirectory) payment.Service {
	signer := payment.NewSigner(payHereCfg.MerchantID, payHereCfg.MerchantSecret)
	if customers == nil {
		customers = &mockCustomerDirectory{}
	}
	return payment.NewService(signer, orderRepo, events, customers, payHereCfg)
}

func signedNotification(orderID, amount, statusCode string) payment.Notification {
	signer := payment.NewSigner(payHereCfg.MerchantID, payHereCfg.MerchantSecret)
	n := payment.Notification{
		MerchantID: payHereCfg.MerchantID,
		OrderID:    orderID,
		Amount:     amount,
		Currency:   payHereCfg.Currency,
		StatusCode: statusCode,
	}
	n.Signature = signer.NotificationSignature(n)
	return n
}

func TestPaymentService_HandleNotification_BadSignatureTouchesNoStorage(t *testing.T) {
	orderRepo := &mockOrderRepository{}
	events := &mockEventRepository{}
	svc := newTestService(orderRepo, events, nil)

	n := signedNotification("550e8400-e29b-41d4-a716-446655440000", "1000.00", payment.StatusCodeSuccess)
	n.Signature = "0123456789ABCDEF0123456789ABCDEF"

	err := svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	// An attacker naming an arbitrary order id must not cause a single lookup.
	assert.Zero(t, orderRepo.getByIDCalls)
	assert.Zero(t, orderRepo.confirmPaymentCalls)
	assert.Empty(t, events.events)
}

func TestPaymentService_HandleNotification_ConfirmsPendingOrder(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	orderRepo := &mockOrderRepository{
		confirmPaymentFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			assert.Equal(t, orderID, id)
			return true, nil
		},
	}
	events := &mockEventRepository{}
	svc := newTestService(orderRepo, events, nil)

	n := signedNotification(orderID.String(), "1000.00", payment.StatusCodeSuccess)
	err := svc.HandleNotification(context.Background(), n)
	require.NoError(t, err)

	assert.Equal(t, 1, orderRepo.confirmPaymentCalls)
	require.Len(t, events.events, 1)
	assert.Equal(t, orderID, events.events[0].OrderID)
	assert.Equal(t, payment.StatusCodeSuccess, events.events[0].StatusCode)
}

func TestPaymentService_HandleNotification_DuplicateDeliveryIsNoOpSuccess(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	confirmed := false
	orderRepo := &mockOrderRepository{
		confirmPaymentFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			if confirmed {
				return false, nil
			}
			confirmed = true
			return true, nil
		},
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: orderID, Status: order.StatusConfirmed, PaymentStatus: order.PaymentPaid}, nil
		},
	}
	events := &mockEventRepository{}
	svc := newTestService(orderRepo, events, nil)

	n := signedNotification(orderID.String(), "1000.00", payment.StatusCodeSuccess)

	require.NoError(t, svc.HandleNotification(context.Background(), n))
	require.NoError(t, svc.HandleNotification(context.Background(), n), "redelivery must be an idempotent success")

	assert.Equal(t, 2, orderRepo.confirmPaymentCalls)
	assert.True(t, confirmed, "exactly one delivery applied the transition")
}

func TestPaymentService_HandleNotification_UnknownOrder(t *testing.T) {
	orderRepo := &mockOrderRepository{
		confirmPaymentFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return false, nil
		},
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return nil, order.ErrOrderNotFound
		},
	}
	svc := newTestService(orderRepo, &mockEventRepository{}, nil)

	n := signedNotification("999e8400-e29b-41d4-a716-446655440000", "1000.00", payment.StatusCodeSuccess)
	err := svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func TestPaymentService_HandleNotification_MalformedOrderID(t *testing.T) {
	orderRepo := &mockOrderRepository{}
	svc := newTestService(orderRepo, &mockEventRepository{}, nil)

	n := signedNotification("not-a-uuid", "1000.00", payment.StatusCodeSuccess)
	err := svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Zero(t, orderRepo.confirmPaymentCalls)
}

func TestPaymentService_HandleNotification_NonSuccessCodeOnlyRecorded(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	orderRepo := &mockOrderRepository{}
	events := &mockEventRepository{}
	svc := newTestService(orderRepo, events, nil)

	for _, code := range []string{payment.StatusCodePending, payment.StatusCodeCancelled, payment.StatusCodeFailed, payment.StatusCodeChargeback} {
		n := signedNotification(orderID.String(), "1000.00", code)
		require.NoError(t, svc.HandleNotification(context.Background(), n))
	}

	assert.Zero(t, orderRepo.confirmPaymentCalls, "non-success codes never transition the order")
	assert.Len(t, events.events, 4)
}

func TestPaymentService_HandleNotification_CancelledOrderNotPayable(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	orderRepo := &mockOrderRepository{
		confirmPaymentFunc: func(ctx context.Context, id uuid.UUID) (bool, error) {
			return false, nil
		},
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: orderID, Status: order.StatusCancelled, PaymentStatus: order.PaymentUnpaid}, nil
		},
	}
	events := &mockEventRepository{}
	svc := newTestService(orderRepo, events, nil)

	n := signedNotification(orderID.String(), "1000.00", payment.StatusCodeSuccess)
	err := svc.HandleNotification(context.Background(), n)
	assert.ErrorIs(t, err, payment.ErrOrderNotPayable)
	assert.Len(t, events.events, 1, "the verified event is still recorded for reconciliation")
}

func TestPaymentService_InitiateCheckout(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))
	userID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))

	orderRepo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: orderID, UserID: userID, Status: order.StatusPending, TotalAmount: 1000}, nil
		},
	}
	customers := &mockCustomerDirectory{users: map[uuid.UUID]*user.User{
		userID: {ID: userID, FirstName: "Nadeesha", LastName: "Perera", Email: "nadeesha@example.com"},
	}}
	svc := newTestService(orderRepo, &mockEventRepository{}, customers)

	req, err := svc.InitiateCheckout(context.Background(), orderID, userID, false)
	require.NoError(t, err)

	assert.Equal(t, "1211149", req.MerchantID)
	assert.Equal(t, orderID.String(), req.OrderID)
	assert.Equal(t, "1000.00", req.Amount, "amount must be the fixed two-decimal string")
	assert.Equal(t, "LKR", req.Currency)
	assert.Equal(t, "nadeesha@example.com", req.Email)
	assert.Equal(t, payHereCfg.ReturnURL, req.ReturnURL)
	assert.Equal(t, payHereCfg.CancelURL, req.CancelURL)
	assert.Equal(t, payHereCfg.NotifyURL, req.NotifyURL)

	signer := payment.NewSigner(payHereCfg.MerchantID, payHereCfg.MerchantSecret)
	assert.Equal(t, signer.RequestHash(req.OrderID, req.Amount, req.Currency), req.Hash)
}

func TestPaymentService_InitiateCheckout_HidesForeignOrders(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))
	ownerID := uuid.Must(uuid.NewV4())
	strangerID := uuid.Must(uuid.NewV4())

	orderRepo := &mockOrderRepository{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*order.Order, error) {
			return &order.Order{ID: orderID, UserID: ownerID, TotalAmount: 100}, nil
		},
	}
	svc := newTestService(orderRepo, &mockEventRepository{}, nil)

	_, err := svc.InitiateCheckout(context.Background(), orderID, strangerID, false)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)

	_, err = svc.InitiateCheckout(context.Background(), orderID, strangerID, true)
	assert.NoError(t, err, "admins may initiate checkout for any order")
}

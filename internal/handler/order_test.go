package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wickandflame/shop-backend/internal/auth"
	"github.com/wickandflame/shop-backend/internal/order"
	"github.com/wickandflame/shop-backend/internal/product"
	"github.com/wickandflame/shop-backend/internal/user"
)

type mockOrderService struct {
	createOrderFunc       func(ctx context.Context, userID uuid.UUID, items []order.CartItem) (*order.Order, error)
	getOrderByIDFunc      func(ctx context.Context, id uuid.UUID) (*order.Order, error)
	getOrderForUserFunc   func(ctx context.Context, orderID, userID uuid.UUID) (*order.Order, error)
	getOrdersByUserIDFunc func(ctx context.Context, userID uuid.UUID) ([]order.Order, error)
	listOrdersFunc        func(ctx context.Context, statusFilter string, page, limit int) ([]order.Order, int, error)
	updateOrderStatusFunc func(ctx context.Context, orderID uuid.UUID, newStatus string) (*order.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, userID uuid.UUID, items []order.CartItem) (*order.Order, error) {
	return m.createOrderFunc(ctx, userID, items)
}

func (m *mockOrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.getOrderByIDFunc(ctx, id)
}

func (m *mockOrderService) GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*order.Order, error) {
	return m.getOrderForUserFunc(ctx, orderID, userID)
}

func (m *mockOrderService) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return m.getOrdersByUserIDFunc(ctx, userID)
}

func (m *mockOrderService) ListOrders(ctx context.Context, statusFilter string, page, limit int) ([]order.Order, int, error) {
	return m.listOrdersFunc(ctx, statusFilter, page, limit)
}

func (m *mockOrderService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (*order.Order, error) {
	return m.updateOrderStatusFunc(ctx, orderID, newStatus)
}

func authedRequest(req *http.Request, userID uuid.UUID, role user.Role) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), userID, role))
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	userID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))
	productID := "550e8400-e29b-41d4-a716-446655440000"

	tests := []struct {
		name           string
		body           string
		createOrder    func(ctx context.Context, userID uuid.UUID, items []order.CartItem) (*order.Order, error)
		expectedStatus int
	}{
		{
			name: "success",
			body: `{"items":[{"product_id":"` + productID + `","quantity":2}]}`,
			createOrder: func(ctx context.Context, uid uuid.UUID, items []order.CartItem) (*order.Order, error) {
				return &order.Order{
					ID:            uuid.Must(uuid.NewV4()),
					UserID:        uid,
					Status:        order.StatusPending,
					PaymentStatus: order.PaymentUnpaid,
					TotalAmount:   1000,
				}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "empty_items",
			body:           `{"items":[]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "zero_quantity",
			body:           `{"items":[{"product_id":"` + productID + `","quantity":0}]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing_product_id",
			body:           `{"items":[{"quantity":1}]}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid_json",
			body:           `{invalid json}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown_product",
			body: `{"items":[{"product_id":"` + productID + `","quantity":1}]}`,
			createOrder: func(ctx context.Context, uid uuid.UUID, items []order.CartItem) (*order.Order, error) {
				return nil, product.ErrProductNotFound
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "insufficient_stock",
			body: `{"items":[{"product_id":"` + productID + `","quantity":10}]}`,
			createOrder: func(ctx context.Context, uid uuid.UUID, items []order.CartItem) (*order.Order, error) {
				return nil, product.ErrInsufficientStock
			},
			expectedStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockOrderService{createOrderFunc: tt.createOrder}
			h := NewOrderHandler(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(tt.body))
			req = authedRequest(req, userID, user.RoleUser)
			w := httptest.NewRecorder()

			h.CreateOrder(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestOrderHandler_CreateOrder_Unauthenticated(t *testing.T) {
	h := NewOrderHandler(&mockOrderService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(`{"items":[]}`))
	w := httptest.NewRecorder()

	h.CreateOrder(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrderHandler_CreateOrder_ResponseShape(t *testing.T) {
	userID := uuid.Must(uuid.FromString("123e4567-e89b-12d3-a456-426614174000"))
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440001"))
	productID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))

	mockSvc := &mockOrderService{
		createOrderFunc: func(ctx context.Context, uid uuid.UUID, items []order.CartItem) (*order.Order, error) {
			return &order.Order{
				ID:            orderID,
				UserID:        uid,
				Status:        order.StatusPending,
				PaymentStatus: order.PaymentUnpaid,
				TotalAmount:   1000,
				OrderItems: []order.OrderItem{
					{ProductID: productID, Title: "Vanilla Jar", Quantity: 2, PricePerUnit: 500},
				},
			}, nil
		},
	}
	h := NewOrderHandler(mockSvc)

	body := `{"items":[{"product_id":"` + productID.String() + `","quantity":2}]}`
	req := authedRequest(httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body)), userID, user.RoleUser)
	w := httptest.NewRecorder()

	h.CreateOrder(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var got order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, orderID, got.ID)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, 1000.0, got.TotalAmount)
	require.Len(t, got.OrderItems, 1)
	assert.Equal(t, 500.0, got.OrderItems[0].PricePerUnit)
}

func TestOrderHandler_UpdateOrderStatus(t *testing.T) {
	orderID := uuid.Must(uuid.FromString("550e8400-e29b-41d4-a716-446655440000"))
	adminID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name           string
		body           string
		updateStatus   func(ctx context.Context, id uuid.UUID, newStatus string) (*order.Order, error)
		expectedStatus int
	}{
		{
			name: "success",
			body: `{"status":"SHIPPED"}`,
			updateStatus: func(ctx context.Context, id uuid.UUID, newStatus string) (*order.Order, error) {
				return &order.Order{ID: id, Status: order.StatusShipped}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "invalid_transition",
			body: `{"status":"CANCELLED"}`,
			updateStatus: func(ctx context.Context, id uuid.UUID, newStatus string) (*order.Order, error) {
				return nil, order.ErrInvalidTransition
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "not_found",
			body: `{"status":"CANCELLED"}`,
			updateStatus: func(ctx context.Context, id uuid.UUID, newStatus string) (*order.Order, error) {
				return nil, order.ErrOrderNotFound
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "missing_status",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockOrderService{updateOrderStatusFunc: tt.updateStatus}
			h := NewOrderHandler(mockSvc)

			req := httptest.NewRequest(http.MethodPut, "/api/v1/orders/"+orderID.String()+"/status", bytes.NewBufferString(tt.body))
			req = authedRequest(req, adminID, user.RoleAdmin)

			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", orderID.String())
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()
			h.UpdateOrderStatus(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestOrderHandler_GetMyOrderByID(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	userID := uuid.Must(uuid.NewV4())

	mockSvc := &mockOrderService{
		getOrderForUserFunc: func(ctx context.Context, oid, uid uuid.UUID) (*order.Order, error) {
			assert.Equal(t, orderID, oid)
			assert.Equal(t, userID, uid)
			return nil, order.ErrOrderNotFound
		},
	}
	h := NewOrderHandler(mockSvc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/my/"+orderID.String(), nil)
	req = authedRequest(req, userID, user.RoleUser)

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", orderID.String())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	w := httptest.NewRecorder()
	h.GetMyOrderByID(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code, "foreign orders must look like missing orders")
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wickandflame/shop-backend/internal/auth"
	"github.com/wickandflame/shop-backend/internal/order"
	"github.com/wickandflame/shop-backend/internal/product"
)

type CreateOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid4"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderRequest struct {
	Items []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderListResponse struct {
	Data       []order.Order `json:"data"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
}

type OrderHandler struct {
	svc      order.Service
	validate *validator.Validate
}

func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

// CreateOrder turns the caller's cart into a PENDING order. Prices are
// resolved server-side, the request only names products and quantities.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req CreateOrderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithValidationErrors(w, validationErrors)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	items := make([]order.CartItem, 0, len(req.Items))
	for _, it := range req.Items {
		productID, err := uuid.FromString(it.ProductID)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid product id: "+it.ProductID)
			return
		}
		items = append(items, order.CartItem{ProductID: productID, Quantity: it.Quantity})
	}

	created, err := h.svc.CreateOrder(r.Context(), userID, items)
	if err != nil {
		switch {
		case errors.Is(err, product.ErrProductNotFound):
			respondWithError(w, http.StatusBadRequest, "Product not found")
		case errors.Is(err, product.ErrInsufficientStock):
			respondWithError(w, http.StatusConflict, "Insufficient stock")
		case errors.Is(err, order.ErrEmptyCart), errors.Is(err, order.ErrInvalidQuantity):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to create order")
			respondWithError(w, http.StatusInternalServerError, "Failed to create order")
		}
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) GetMyOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orders, err := h.svc.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("Failed to fetch user orders")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetMyOrderByID(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	o, err := h.svc.GetOrderForUser(r.Context(), orderID, userID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to fetch order")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch order")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	o, err := h.svc.GetOrderByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to fetch order")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch order")
		return
	}

	respondWithJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := r.URL.Query().Get("status")
	if page < 1 {
		page = 1
	}

	orders, total, err := h.svc.ListOrders(r.Context(), status, page, limit)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			respondWithError(w, http.StatusBadRequest, "Unknown status filter")
			return
		}
		log.Error().Err(err).Msg("Failed to list orders")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch orders")
		return
	}

	respondWithJSON(w, http.StatusOK, OrderListResponse{Data: orders, TotalCount: total, Page: page})
}

// UpdateOrderStatus is the admin transition surface of the order state
// machine. Off-table transitions and unknown statuses come back as conflicts
// with the stored state untouched.
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithValidationErrors(w, validationErrors)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	updated, err := h.svc.UpdateOrderStatus(r.Context(), orderID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			respondWithError(w, http.StatusNotFound, "Order not found")
		case errors.Is(err, order.ErrInvalidTransition):
			respondWithError(w, http.StatusConflict, err.Error())
		default:
			log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to update order status")
			respondWithError(w, http.StatusInternalServerError, "Failed to update order status")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

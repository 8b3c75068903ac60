package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/wickandflame/shop-backend/internal/auth"
	"github.com/wickandflame/shop-backend/internal/order"
	"github.com/wickandflame/shop-backend/internal/payment"
	"github.com/wickandflame/shop-backend/internal/user"
)

type PaymentHandler struct {
	svc payment.Service
}

func NewPaymentHandler(svc payment.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// InitiateCheckout builds the PayHere redirect payload for one of the caller's
// orders.
func (h *PaymentHandler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	role, _ := auth.CallerRole(r.Context())

	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	req, err := h.svc.InitiateCheckout(r.Context(), orderID, userID, role == user.RoleAdmin)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			respondWithError(w, http.StatusNotFound, "Order not found")
			return
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to initiate checkout")
		respondWithError(w, http.StatusInternalServerError, "Payment init failed")
		return
	}

	respondWithJSON(w, http.StatusOK, req)
}

// Notify is the unauthenticated provider webhook. PayHere posts an urlencoded
// form and expects a plain-text body back; anything but a 2xx triggers a
// redelivery on their side.
func (h *PaymentHandler) Notify(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form payload", http.StatusBadRequest)
		return
	}

	n := payment.Notification{
		MerchantID: r.PostFormValue("merchant_id"),
		OrderID:    r.PostFormValue("order_id"),
		Amount:     r.PostFormValue("payhere_amount"),
		Currency:   r.PostFormValue("payhere_currency"),
		StatusCode: r.PostFormValue("status_code"),
		Signature:  r.PostFormValue("md5sig"),
	}

	if err := h.svc.HandleNotification(r.Context(), n); err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			// Никаких деталей наружу: ответ не должен помогать подобрать подпись.
			http.Error(w, "Invalid signature", http.StatusBadRequest)
		case errors.Is(err, order.ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, payment.ErrOrderNotPayable):
			http.Error(w, "Order not payable", http.StatusConflict)
		default:
			log.Error().Err(err).Str("order_id", n.OrderID).Msg("Failed to process payment notification")
			http.Error(w, "ERROR", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

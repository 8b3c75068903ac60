package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wickandflame/shop-backend/internal/auth"
	"github.com/wickandflame/shop-backend/internal/config"
	"github.com/wickandflame/shop-backend/internal/handler"
	"github.com/wickandflame/shop-backend/internal/order"
	"github.com/wickandflame/shop-backend/internal/payment"
	"github.com/wickandflame/shop-backend/internal/product"
	"github.com/wickandflame/shop-backend/internal/user"
)

// NewRouter wires repositories, services and handlers onto the API surface.
func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	productRepo := product.NewRepository(pool)
	productSvc := product.NewService(productRepo)

	orderRepo := order.NewRepository(pool)
	orderSvc := order.NewService(orderRepo, productRepo, productRepo)

	userRepo := user.NewRepository(pool)
	userSvc := user.NewService(userRepo)

	signer := payment.NewSigner(cfg.PayHere.MerchantID, cfg.PayHere.MerchantSecret)
	paymentSvc := payment.NewService(signer, orderRepo, payment.NewEventRepository(pool), userRepo, cfg.PayHere)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	authHandler := handler.NewAuthHandler(userSvc, tokens)
	productHandler := handler.NewProductHandler(productSvc)
	orderHandler := handler.NewOrderHandler(orderSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{id}", productHandler.GetProductByID)

			r.Group(func(r chi.Router) {
				r.Use(tokens.Authenticate, auth.RequireAdmin)
				r.Post("/", productHandler.CreateProduct)
				r.Put("/{id}", productHandler.UpdateProduct)
				r.Delete("/{id}", productHandler.DeleteProduct)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(tokens.Authenticate)
				r.Post("/", orderHandler.CreateOrder)
				r.Get("/my", orderHandler.GetMyOrders)
				r.Get("/my/{id}", orderHandler.GetMyOrderByID)
			})

			r.Group(func(r chi.Router) {
				r.Use(tokens.Authenticate, auth.RequireAdmin)
				r.Get("/", orderHandler.ListOrders)
				r.Get("/{id}", orderHandler.GetOrderByID)
				r.Put("/{id}/status", orderHandler.UpdateOrderStatus)
			})
		})

		r.Route("/payments", func(r chi.Router) {
			// The notify webhook is unauthenticated on purpose: the provider
			// carries no bearer token, trust rests on the signature check.
			r.Post("/payhere/notify", paymentHandler.Notify)

			r.Group(func(r chi.Router) {
				r.Use(tokens.Authenticate)
				r.Post("/payhere/{id}", paymentHandler.InitiateCheckout)
			})
		})
	})

	return r
}

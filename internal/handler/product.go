package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wickandflame/shop-backend/internal/product"
)

type ProductRequest struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Category    string   `json:"category" validate:"required,oneof=JAR NORMAL LUXURY"`
	Fragrance   string   `json:"fragrance"`
	Size        string   `json:"size" validate:"required"`
	Price       float64  `json:"price" validate:"gte=0"`
	Stock       int      `json:"stock" validate:"gte=0"`
	ImageURLs   []string `json:"image_urls" validate:"required,min=1,dive,url"`
}

type ProductListResponse struct {
	Data       []product.Product `json:"data"`
	TotalCount int               `json:"total_count"`
	TotalPages int               `json:"total_pages"`
	Page       int               `json:"page"`
}

type ProductHandler struct {
	svc      product.Service
	validate *validator.Validate
}

func NewProductHandler(svc product.Service) *ProductHandler {
	return &ProductHandler{
		svc:      svc,
		validate: validator.New(),
	}
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	p := &product.Product{
		Title:       req.Title,
		Description: req.Description,
		Category:    product.Category(req.Category),
		Fragrance:   req.Fragrance,
		Size:        req.Size,
		Price:       req.Price,
		Stock:       req.Stock,
		ImageURLs:   req.ImageURLs,
	}

	created, err := h.svc.CreateProduct(r.Context(), p)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create product")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to create product")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	products, total, err := h.svc.ListProducts(r.Context(), page, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list products")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch products")
		return
	}

	totalPages := (total + limit - 1) / limit
	respondWithJSON(w, http.StatusOK, ProductListResponse{
		Data:       products,
		TotalCount: total,
		TotalPages: totalPages,
		Page:       page,
	})
}

func (h *ProductHandler) GetProductByID(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	p, err := h.svc.GetProductByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("Failed to fetch product")
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch product")
		return
	}

	respondWithJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeProduct(w, r)
	if !ok {
		return
	}

	p := &product.Product{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Category:    product.Category(req.Category),
		Fragrance:   req.Fragrance,
		Size:        req.Size,
		Price:       req.Price,
		ImageURLs:   req.ImageURLs,
	}

	if err := h.svc.UpdateProduct(r.Context(), p); err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("Failed to update product")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update product")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Product updated"})
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, product.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("Failed to delete product")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to delete product")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

func (h *ProductHandler) decodeProduct(w http.ResponseWriter, r *http.Request) (*ProductRequest, bool) {
	var req ProductRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return nil, false
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithValidationErrors(w, validationErrors)
		} else {
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return nil, false
	}

	return &req, true
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.FromString(raw)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid id")
		return uuid.Nil, false
	}
	return id, true
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/wickandflame/shop-backend/internal/auth"
	"github.com/wickandflame/shop-backend/internal/user"
)

type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required,min=2"`
	LastName  string `json:"last_name" validate:"required,min=2"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

type AuthHandler struct {
	svc      user.Service
	tokens   *auth.TokenManager
	validate *validator.Validate
}

func NewAuthHandler(svc user.Service, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		tokens:   tokens,
		validate: validator.New(),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

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
			log.Error().Err(err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return
	}

	u := &user.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	}

	created, err := h.svc.Register(r.Context(), u, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrEmailExists) {
			respondWithError(w, http.StatusConflict, "Email already registered")
			return
		}
		log.Error().Err(err).Msg("Failed to register user")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to register user")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

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

	u, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		log.Error().Err(err).Msg("Failed to authenticate user")
		respondWithError(w, http.StatusInternalServerError, "Failed to authenticate")
		return
	}

	token, err := h.tokens.Issue(u)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("Failed to issue token")
		respondWithError(w, http.StatusInternalServerError, "Failed to authenticate")
		return
	}

	respondWithJSON(w, http.StatusOK, AuthResponse{Token: token, User: u})
}

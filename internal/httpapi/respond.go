package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Hrithik248/busy-buy/internal/cartsync"
	"github.com/Hrithik248/busy-buy/internal/catalog"
	"github.com/Hrithik248/busy-buy/internal/identity"
	"github.com/Hrithik248/busy-buy/internal/repository"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError maps sentinel errors from the services onto HTTP
// status codes; anything unrecognized is a 500.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cartsync.ErrNoSession):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "no signed-in user")
	case errors.Is(err, cartsync.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty")
	case errors.Is(err, repository.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "not_found", "item not found in cart")
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "not_found", "product not found")
	case errors.Is(err, identity.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
	case errors.Is(err, identity.ErrEmailTaken):
		respondError(w, http.StatusConflict, "email_taken", "email already registered")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

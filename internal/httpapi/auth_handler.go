package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Hrithik248/busy-buy/internal/session"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type AuthHandler struct {
	sessions *session.Manager
	validate *validator.Validate
	log      *zap.Logger
}

func NewAuthHandler(sessions *session.Manager, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		sessions: sessions,
		validate: validator.New(),
		log:      log,
	}
}

type signUpRequestDTO struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type signInRequestDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := h.sessions.SignUp(r.Context(), req.Name, req.Email, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	s, _ := h.sessions.Current()
	respondJSON(w, http.StatusCreated, s)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	if err := h.sessions.SignIn(r.Context(), req.Email, req.Password); err != nil {
		handleServiceError(w, err)
		return
	}

	s, _ := h.sessions.Current()
	respondJSON(w, http.StatusOK, s)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	s, state := h.sessions.Current()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":   state.String(),
		"session": s,
	})
}

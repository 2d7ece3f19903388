package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/auth"
	"github.com/rooksgc/rooksgc-dev-server/internal/metrics"
	"github.com/rooksgc/rooksgc-dev-server/internal/models"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

const resetCodeTTL = time.Hour

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RecoverRequest starts a password reset.
type RecoverRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetRequest redeems a reset code for a new password.
type ResetRequest struct {
	Code     string `json:"code" validate:"required,uuid"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// AuthResponse carries a session token and the authenticated user.
type AuthResponse struct {
	Token string          `json:"token"`
	User  *models.UserDTO `json:"user"`
}

// Register handles account registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "register", err)
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, r, "register", apperr.Validation("name is required"))
		return
	}
	hash, err := hashPassword(req.Password)
	if err != nil {
		h.Error(w, r, "register", err)
		return
	}

	user, err := h.store.CreateUser(r.Context(), name, req.Email, hash)
	if err != nil {
		h.Error(w, r, "register", err)
		return
	}
	metrics.UsersRegistered.Inc()

	h.issue(w, r, "register", http.StatusCreated, "user registered", user)
}

// Login exchanges credentials for a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "login", err)
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.Error(w, r, "login", err)
		return
	}
	if user == nil {
		h.Error(w, r, "login", apperr.ErrEmailDoesNotExist)
		return
	}
	if !user.IsActive || !auth.CheckPassword(user.PasswordHash, req.Password) {
		h.Error(w, r, "login", apperr.ErrInvalidPassword)
		return
	}

	h.issue(w, r, "login", http.StatusOK, "logged in", user)
}

// RecoverPassword issues a reset code for the account owning email and
// hands it to the notifier.
func (h *Handler) RecoverPassword(w http.ResponseWriter, r *http.Request) {
	var req RecoverRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "recover_password", err)
		return
	}

	ctx := r.Context()
	user, err := h.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		h.Error(w, r, "recover_password", apperr.Internal(err))
		return
	}
	if user == nil {
		h.Error(w, r, "recover_password", apperr.ErrEmailDoesNotExist)
		return
	}

	code, err := h.secrets.CreateSecret(ctx, user.ID, store.SecretPasswordReset, resetCodeTTL)
	if err != nil {
		h.Error(w, r, "recover_password", apperr.Internal(err))
		return
	}
	if err := h.notifier.PasswordReset(ctx, user.Email, code); err != nil {
		h.Error(w, r, "recover_password", apperr.Internal(err))
		return
	}
	h.OK(w, http.StatusOK, "reset code sent to "+user.Email, nil)
}

// ResetPassword sets a new password using a code from RecoverPassword.
// Codes are single use.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := h.decode(r, &req); err != nil {
		h.Error(w, r, "reset_password", err)
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		h.Error(w, r, "reset_password", err)
		return
	}

	ctx := r.Context()
	userID, err := h.secrets.TakeSecret(ctx, strings.ToLower(req.Code), store.SecretPasswordReset)
	if err != nil {
		h.Error(w, r, "reset_password", apperr.Internal(err))
		return
	}
	if userID == 0 {
		h.Error(w, r, "reset_password", apperr.ErrSecretNotFound)
		return
	}
	if err := h.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		h.Error(w, r, "reset_password", err)
		return
	}
	h.OK(w, http.StatusOK, "password changed", nil)
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrWeakPassword) {
		return "", apperr.Validation(err.Error())
	}
	if err != nil {
		return "", apperr.Internal(err)
	}
	return hash, nil
}

// FetchByToken returns the user the bearer token belongs to.
func (h *Handler) FetchByToken(w http.ResponseWriter, r *http.Request) {
	user, err := h.social.GetUser(r.Context(), middleware.GetUserIDFromContext(r.Context()))
	if err != nil {
		h.Error(w, r, "fetch_by_token", err)
		return
	}
	h.OK(w, http.StatusOK, "", user)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request, op string, status int, message string, user *models.User) {
	token, err := h.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		h.Error(w, r, op, apperr.Internal(err))
		return
	}
	dto := user.ToDTO()
	h.OK(w, status, message, AuthResponse{Token: token, User: &dto})
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/auth"
	"github.com/rooksgc/rooksgc-dev-server/internal/notify"
	"github.com/rooksgc/rooksgc-dev-server/internal/social"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

// Presence reports live connection counts. presence.Registry implements it.
type Presence interface {
	Stats() (users, connections int)
}

// SecretStore issues and redeems single-use codes. store.RedisStore implements it.
type SecretStore interface {
	CreateSecret(ctx context.Context, userID int64, kind string, ttl time.Duration) (string, error)
	TakeSecret(ctx context.Context, code, kind string) (int64, error)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store    store.DataStore
	redis    *store.RedisStore
	social   *social.Service
	auth     *auth.Authenticator
	presence Presence
	secrets  SecretStore
	notifier notify.Notifier
	validate *validator.Validate
	log      zerolog.Logger
}

// Deps groups the collaborators of Handler. Redis and Secrets may be nil;
// password recovery is unavailable without Secrets.
type Deps struct {
	Store    store.DataStore
	Redis    *store.RedisStore
	Social   *social.Service
	Auth     *auth.Authenticator
	Presence Presence
	Secrets  SecretStore
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		store:    d.Store,
		redis:    d.Redis,
		social:   d.Social,
		auth:     d.Auth,
		presence: d.Presence,
		secrets:  d.Secrets,
		notifier: d.Notifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      d.Logger,
	}
}

// Response is the envelope of every successful API response.
type Response struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse is the envelope of every failed API response.
type ErrorResponse struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// OK sends a success envelope.
func (h *Handler) OK(w http.ResponseWriter, status int, message string, data any) {
	h.JSON(w, status, Response{Type: "success", Message: message, Data: data})
}

// Error maps err onto its status code and sends an error envelope. Internal
// failures are logged and their details withheld from the client.
func (h *Handler) Error(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := apperr.HTTPStatus(err)
	resp := ErrorResponse{Type: "error", Code: apperr.CodeOf(err), Message: "internal error"}

	var appErr *apperr.Error
	if status < http.StatusInternalServerError && errors.As(err, &appErr) {
		resp.Message = appErr.Message
	} else {
		h.log.Error().
			Err(err).
			Str("op", op).
			Int64("user_id", middleware.GetUserIDFromContext(r.Context())).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request failed")
	}
	h.JSON(w, status, resp)
}

// decode reads a JSON body into v and runs its validate tags.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.Validation(strings.ToLower(fe.Field()) + " failed " + fe.Tag() + " validation")
		}
		return apperr.Validation("invalid request")
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// queryID parses a positive integer query parameter.
func queryID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

const maxNameRunes = 100

// sanitizeName trims and limits name to 100 runes, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > maxNameRunes {
		name = strings.TrimSpace(string(runes[:maxNameRunes]))
	}
	return name
}

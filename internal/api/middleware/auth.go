package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/auth"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// AuthMiddleware resolves bearer tokens into authenticated users.
type AuthMiddleware struct {
	auth *auth.Authenticator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(a *auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: a}
}

// Authenticate attaches the token claims to the request context when a
// valid bearer token is present. Requests without one pass through
// untouched; RequireAuth rejects them where needed.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := m.auth.ValidateToken(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := claims.UserID(); err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests that Authenticate did not resolve.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaimsFromContext(r.Context()) == nil {
			jsonError(w, http.StatusUnauthorized, apperr.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

func jsonError(w http.ResponseWriter, status int, err *apperr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"type":    "error",
		"code":    err.Code,
		"message": err.Message,
	})
}

// GetClaimsFromContext retrieves the authenticated claims from the request context.
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserIDFromContext returns the authenticated user id, or 0.
func GetUserIDFromContext(ctx context.Context) int64 {
	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		return 0
	}
	id, _ := claims.UserID()
	return id
}

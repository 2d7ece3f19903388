package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rooksgc/rooksgc-dev-server/internal/auth"
)

func TestRequireAuth(t *testing.T) {
	a := auth.NewAuthenticator("secret", "chat", time.Hour)
	m := NewAuthMiddleware(a)

	var seen int64
	h := m.Authenticate(m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})))

	token, err := a.GenerateToken(7, "a@x.com")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), seen)

	for _, header := range []string{"", "Bearer nope", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.JSONEq(t, `{"type":"error","code":"Unauthorized","message":"authorization failed"}`, rec.Body.String())
	}
}

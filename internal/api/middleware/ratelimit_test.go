package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	mu      sync.Mutex
	hits    map[string]int64
	blocked map[string]string
	err     error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{hits: map[string]int64{}, blocked: map[string]string{}}
}

func (f *fakeCounter) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, 0, f.err
	}
	f.hits[key]++
	return f.hits[key], window, nil
}

func (f *fakeCounter) Block(ctx context.Context, ip string, d time.Duration, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[ip] = reason
	return nil
}

func (f *fakeCounter) IsBlocked(ctx context.Context, ip string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.blocked[ip]
	return ok, nil
}

func hit(h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiterEnforcesLimit(t *testing.T) {
	rl := NewRateLimiter(newFakeCounter(), zerolog.Nop(), RateLimiterConfig{
		Limits: []Limit{{"GET /api/v1/", 2, time.Minute, PerIP}},
	})
	h := rl.Middleware(noContent)

	first := hit(h, http.MethodGet, "/api/v1/stats", "1.2.3.4:5000")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, hit(h, http.MethodGet, "/api/v1/stats", "1.2.3.4:5000").Code)

	rec := hit(h, http.MethodGet, "/api/v1/stats", "1.2.3.4:5000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"RateLimited"`)

	// Another client has its own window.
	assert.Equal(t, http.StatusNoContent, hit(h, http.MethodGet, "/api/v1/stats", "5.6.7.8:5000").Code)

	// Routes without a limit pass untouched.
	assert.Equal(t, http.StatusNoContent, hit(h, http.MethodGet, "/health", "1.2.3.4:5000").Code)
}

func TestRateLimiterWhitelist(t *testing.T) {
	rl := NewRateLimiter(newFakeCounter(), zerolog.Nop(), RateLimiterConfig{
		Whitelist: []string{"10.0.0.0/8", "192.168.1.1", "not-a-cidr/x"},
		Limits:    []Limit{{"GET /", 1, time.Minute, PerIP}},
	})
	h := rl.Middleware(noContent)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, hit(h, http.MethodGet, "/", "10.1.2.3:1").Code)
		assert.Equal(t, http.StatusNoContent, hit(h, http.MethodGet, "/", "192.168.1.1:1").Code)
	}
	hit(h, http.MethodGet, "/", "8.8.8.8:1")
	assert.Equal(t, http.StatusTooManyRequests, hit(h, http.MethodGet, "/", "8.8.8.8:1").Code)
}

func TestRateLimiterAutoBlock(t *testing.T) {
	counter := newFakeCounter()
	rl := NewRateLimiter(counter, zerolog.Nop(), RateLimiterConfig{
		AutoBlockEnabled: true,
		Limits:           []Limit{{"POST /api/v1/auth/login", 1, time.Minute, PerIP}},
	})
	h := rl.Middleware(noContent)

	for i := 0; i < blockAfter+1; i++ {
		hit(h, http.MethodPost, "/api/v1/auth/login", "9.9.9.9:1")
	}
	blocked, err := counter.IsBlocked(context.Background(), "9.9.9.9")
	require.NoError(t, err)
	assert.True(t, blocked)

	rec := hit(h, http.MethodGet, "/anything", "9.9.9.9:1")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Blocked"`)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("redis down")
	rl := NewRateLimiter(counter, zerolog.Nop(), RateLimiterConfig{
		Limits: []Limit{{"GET /", 1, time.Minute, PerIP}},
	})
	h := rl.Middleware(noContent)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, hit(h, http.MethodGet, "/", "1.1.1.1:1").Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:80"
	assert.Equal(t, "1.2.3.4", ClientIP(req))

	req.Header.Set("Fly-Client-IP", "9.9.9.9")
	assert.Equal(t, "9.9.9.9", ClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", ClientIP(req))
}

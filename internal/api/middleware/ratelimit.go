package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rooksgc/rooksgc-dev-server/internal/apperr"
	"github.com/rooksgc/rooksgc-dev-server/internal/metrics"
)

var (
	errRateLimited = &apperr.Error{Kind: apperr.KindConflict, Code: "RateLimited", Message: "rate limit exceeded"}
	errBlocked     = &apperr.Error{Kind: apperr.KindUnauthorized, Code: "Blocked", Message: "temporarily blocked"}
)

const (
	violationWindow = time.Hour
	blockAfter      = 10
	blockFor        = 24 * time.Hour
)

// Counter is the shared state behind the limiter. store.RedisStore implements it.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
	Block(ctx context.Context, ip string, d time.Duration, reason string) error
	IsBlocked(ctx context.Context, ip string) (bool, error)
}

// Scope selects what a limit is counted against.
type Scope int

const (
	PerIP Scope = iota
	// PerUser counts against the authenticated user, or the IP for anonymous callers.
	PerUser
)

// Limit caps requests whose "METHOD /path" starts with Route.
type Limit struct {
	Route    string
	Requests int64
	Window   time.Duration
	Scope    Scope
}

// DefaultLimits are checked in order; the first matching prefix wins, so
// specific routes come before the catch-all.
var DefaultLimits = []Limit{
	{"POST /api/v1/auth/register", 10, time.Hour, PerIP},
	{"POST /api/v1/auth/login", 20, time.Minute, PerIP},
	{"GET /ws", 30, time.Minute, PerIP},
	{"PUT /api/v1/chat/channel", 20, time.Hour, PerUser},
	{"POST /api/v1/chat/channel/", 60, time.Minute, PerUser},
	{"POST /api/v1/contacts/invite", 30, time.Minute, PerUser},
	{"POST /api/v1/", 120, time.Minute, PerUser},
	{"DELETE /api/v1/", 60, time.Minute, PerUser},
	{"GET /api/v1/", 300, time.Minute, PerUser},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs
	AutoBlockEnabled bool
	Limits           []Limit // DefaultLimits when empty
}

// RateLimiter enforces fixed-window limits per route.
type RateLimiter struct {
	counter   Counter
	limits    []Limit
	log       zerolog.Logger
	allowNets []*net.IPNet
	allowIPs  map[string]struct{}
	autoBlock bool
}

// NewRateLimiter creates a limiter backed by counter.
func NewRateLimiter(counter Counter, log zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		counter:   counter,
		limits:    cfg.Limits,
		log:       log,
		allowIPs:  make(map[string]struct{}),
		autoBlock: cfg.AutoBlockEnabled,
	}
	if len(rl.limits) == 0 {
		rl.limits = DefaultLimits
	}

	for _, entry := range cfg.Whitelist {
		if !strings.Contains(entry, "/") {
			rl.allowIPs[entry] = struct{}{}
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			log.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		rl.allowNets = append(rl.allowNets, ipNet)
	}
	if len(cfg.Whitelist) > 0 {
		log.Info().
			Int("ips", len(rl.allowIPs)).
			Int("cidrs", len(rl.allowNets)).
			Msg("rate limit whitelist configured")
	}
	return rl
}

func (rl *RateLimiter) whitelisted(addr string) bool {
	if _, ok := rl.allowIPs[addr]; ok {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range rl.allowNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (rl *RateLimiter) match(r *http.Request) (Limit, bool) {
	route := r.Method + " " + r.URL.Path
	for _, l := range rl.limits {
		if strings.HasPrefix(route, l.Route) {
			return l, true
		}
	}
	return Limit{}, false
}

func limitKey(l Limit, r *http.Request, ip string) string {
	if l.Scope == PerUser {
		if id := GetUserIDFromContext(r.Context()); id != 0 {
			return "ratelimit:" + l.Route + ":user:" + strconv.FormatInt(id, 10)
		}
	}
	return "ratelimit:" + l.Route + ":ip:" + ip
}

// ClientIP returns the caller address. chi's RealIP has already folded
// X-Forwarded-For and X-Real-IP into RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware returns the rate limiting middleware. Counter failures let the
// request through.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if rl.whitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if blocked, err := rl.counter.IsBlocked(ctx, ip); err == nil && blocked {
			rl.log.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			jsonError(w, http.StatusForbidden, errBlocked)
			return
		}

		limit, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := limitKey(limit, r, ip)
		count, ttl, err := rl.counter.Hit(ctx, key, limit.Window)
		if err != nil {
			rl.log.Error().Err(err).Str("key", key).Msg("rate limit counter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(limit.Requests-count, 0)
		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit.Requests, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > limit.Requests {
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))
			metrics.RateLimitHits.WithLabelValues(limit.Route).Inc()
			rl.log.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Int64("user_id", GetUserIDFromContext(ctx)).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")
			rl.strike(ctx, ip)
			jsonError(w, http.StatusTooManyRequests, errRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// strike records a violation and bans ip once it reaches blockAfter within
// violationWindow.
func (rl *RateLimiter) strike(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}
	n, _, err := rl.counter.Hit(ctx, "violations:ip:"+ip, violationWindow)
	if err != nil || n < blockAfter {
		return
	}
	if err := rl.counter.Block(ctx, ip, blockFor, "repeated rate limit violations"); err != nil {
		rl.log.Error().Err(err).Str("ip", ip).Msg("failed to block IP")
		return
	}
	rl.log.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", n).
		Msg("IP auto-blocked for repeated violations")
}

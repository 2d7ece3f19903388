package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rooksgc/rooksgc-dev-server/internal/api/middleware"
	"github.com/rooksgc/rooksgc-dev-server/internal/auth"
	"github.com/rooksgc/rooksgc-dev-server/internal/config"
	"github.com/rooksgc/rooksgc-dev-server/internal/handlers"
	"github.com/rooksgc/rooksgc-dev-server/internal/notify"
	"github.com/rooksgc/rooksgc-dev-server/internal/realtime"
	"github.com/rooksgc/rooksgc-dev-server/internal/social"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

// Deps are the collaborators the router wires together. Redis may be nil,
// in which case rate limiting is disabled. Secrets defaults to Redis and
// password recovery routes are only mounted when one of them is set.
// Notifier defaults to a LogNotifier.
type Deps struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.DataStore
	Redis    *store.RedisStore
	Secrets  handlers.SecretStore
	Notifier notify.Notifier
	Social   *social.Service
	Auth     *auth.Authenticator
	Hub      *realtime.Hub
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	authMW := middleware.NewAuthMiddleware(d.Auth)
	r.Use(authMW.Authenticate)

	// Rate limiting runs after Authenticate so per-user limits see the caller
	if d.Redis != nil {
		limiter := middleware.NewRateLimiter(d.Redis, d.Logger, middleware.RateLimiterConfig{
			Whitelist:        d.Config.RateLimitWhitelist,
			AutoBlockEnabled: d.Config.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	origins := d.Config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	secrets := d.Secrets
	if secrets == nil && d.Redis != nil {
		secrets = d.Redis
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(d.Logger)
	}

	h := handlers.NewHandler(handlers.Deps{
		Store:    d.Store,
		Redis:    d.Redis,
		Social:   d.Social,
		Auth:     d.Auth,
		Presence: d.Hub.Presence(),
		Secrets:  secrets,
		Notifier: notifier,
		Logger:   d.Logger,
	})

	ws := realtime.NewServer(d.Hub, d.Auth, realtime.Options{
		PingPeriod:     d.Config.WSPingPeriod,
		PongWait:       d.Config.WSPongWait,
		SendBuffer:     d.Config.WSSendBuffer,
		AllowedOrigins: d.Config.CORSOrigins,
	}, d.Logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/ws", ws)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)
		if secrets != nil {
			r.Post("/auth/recover", h.RecoverPassword)
			r.Post("/auth/reset", h.ResetPassword)
		}

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authMW.RequireAuth)

			r.Post("/auth/fetch-by-token", h.FetchByToken)

			r.Get("/users", h.ListUsers)
			r.Patch("/users/me/photo", h.ChangePhoto)
			r.Get("/users/{id}", h.GetUser)
			r.Get("/users/{id}/contacts", h.GetUserContacts)

			r.Put("/chat/channel", h.CreateChannel)
			r.Get("/chat/channels/{userId}", h.UserChannels)
			r.Post("/chat/channel/{id}/members", h.AddChannelMember)
			r.Delete("/chat/channel/{id}/members/me", h.LeaveChannel)
			r.Get("/chat/channel/{id}/messages", h.GetChannelMessages)
			r.Post("/chat/channel/{id}/messages", h.PostChannelMessage)
			r.Get("/chat/channel/{id}/search", h.SearchChannel)

			r.Post("/contacts/invite", h.InviteToContacts)
			r.Post("/contacts/accept", h.AcceptInvite)
			r.Delete("/contacts/{id}", h.RemoveContact)
			r.Get("/invites", h.ListInvites)
			r.Delete("/invites", h.RemoveInvite)

			r.Post("/dm/{id}", h.SendDM)
			r.Get("/dm", h.GetDMs)

			r.Get("/stats", h.Stats)
		})
	})

	return r
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/rooksgc/rooksgc-dev-server/internal/api"
	"github.com/rooksgc/rooksgc-dev-server/internal/auth"
	"github.com/rooksgc/rooksgc-dev-server/internal/config"
	"github.com/rooksgc/rooksgc-dev-server/internal/notify"
	"github.com/rooksgc/rooksgc-dev-server/internal/presence"
	"github.com/rooksgc/rooksgc-dev-server/internal/realtime"
	"github.com/rooksgc/rooksgc-dev-server/internal/rooms"
	"github.com/rooksgc/rooksgc-dev-server/internal/social"
	"github.com/rooksgc/rooksgc-dev-server/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	ds, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("store connection failed")
	}
	defer ds.Close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	// Redis is optional: without it there is no message history and no rate limiting
	var redisStore *store.RedisStore
	var history social.History
	if cfg.RedisURL != "" {
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		history = redisStore
		logger.Info().Msg("connected to Redis")
	} else {
		logger.Warn().Msg("REDIS_URL not set, message history and rate limiting disabled")
	}

	hub := realtime.NewHub(logger, presence.NewRegistry(), rooms.NewManager())
	svc := social.NewService(ds, hub, history, logger)
	realtime.RegisterEvents(hub, svc)

	authenticator := auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)

	// Create router
	router := api.NewRouter(api.Deps{
		Config:   cfg,
		Logger:   logger,
		Store:    ds,
		Redis:    redisStore,
		Notifier: notify.NewLogNotifier(logger),
		Social:   svc,
		Auth:     authenticator,
		Hub:      hub,
	})

	// Create server. No WriteTimeout: it would cut long-lived websocket
	// connections, which manage their own write deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store.DataStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.DriverSQLite:
		return store.NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.DriverMemory:
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

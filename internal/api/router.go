// Package api provides the HTTP API for Pushbucket: the receiving half of the
// passthrough protocol plus operational endpoints.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/pushbucket/pushbucket/internal/api/handler"
	"github.com/pushbucket/pushbucket/internal/api/middleware"
	"github.com/pushbucket/pushbucket/internal/push"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	// RelayToken is the static bearer token passthrough peers authenticate
	// with. An empty token rejects all relayed deliveries.
	RelayToken string

	// Adapters provide the local provider connections relayed payloads are
	// delivered through.
	Adapters []push.Adapter

	// DB, when set, is checked by the readiness endpoint.
	DB handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware; order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	stats := handler.NewNotifyStats(time.Now())

	deliverers := make(map[string]handler.ExternalDeliverer, len(cfg.Adapters))
	for _, a := range cfg.Adapters {
		deliverers[string(a.Platform())] = a
	}

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.DB, stats)
	notifyHandler := handler.NewNotifyHandler(deliverers, stats, cfg.Logger)

	relayAuth := middleware.RelayAuth(cfg.RelayToken)
	relayRateLimit := middleware.RateLimitByIP(middleware.RelayRateLimit)

	r.Get("/health", opsHandler.HealthCheck)
	r.Get("/ready", opsHandler.ReadinessCheck)
	r.With(relayAuth).Get("/ops/dispatch", opsHandler.DispatchStats)

	r.Route("/notifications", func(r chi.Router) {
		r.Use(relayRateLimit)
		r.Use(relayAuth)
		r.Post("/notify-external", notifyHandler.NotifyExternal)
	})

	return r
}

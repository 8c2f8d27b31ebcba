package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/imessage-ai-bridge/internal/channels/bluebubbles"
)

// Config holds router configuration
type Config struct {
	WebhookHandler *bluebubbles.WebhookHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", cfg.WebhookHandler.HealthCheck)
	r.Post("/webhooks/bluebubbles", cfg.WebhookHandler.HandleWebhook)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}

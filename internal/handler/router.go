package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askcart-ai/assistant/internal/middleware"
	"github.com/askcart-ai/assistant/pkg/logger"
)

// RouterConfig holds everything the HTTP surface is built from.
type RouterConfig struct {
	Health        *HealthHandler
	Chat          *ChatHandler
	Products      *ProductHandler
	Conversations *ConversationHandler

	AllowedOrigins    []string
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger
}

// NewRouter wires handlers and middleware into a chi router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", cfg.Health.Health)
	r.Get("/ready", cfg.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).Get("/ws", cfg.Chat.Serve)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", cfg.Products.List)
			r.Get("/search", cfg.Products.Search)
			r.Post("/compare", cfg.Products.Compare)
			r.Post("/analyze", cfg.Products.Analyze)
			r.Get("/{id}", cfg.Products.Get)
		})

		r.Route("/admin/conversations", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireScope(middleware.ScopeAdmin))

			r.Get("/recent", cfg.Conversations.Recent)
			r.Get("/{id}/messages", cfg.Conversations.Messages)
			r.Put("/{id}/status", cfg.Conversations.UpdateStatus)
		})
	})

	return r
}

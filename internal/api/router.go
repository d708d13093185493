package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hjin-me/wechatmp/internal/api/middleware"
	"github.com/hjin-me/wechatmp/internal/handlers"
	"github.com/hjin-me/wechatmp/internal/token"
	"github.com/hjin-me/wechatmp/internal/wechat"
)

// NewRouter creates and configures the HTTP router. The redis store may
// be nil when the in-process token cache is in use.
func NewRouter(logger zerolog.Logger, wc *wechat.Wechat, redisStore *token.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.MaxBodySize(64 * 1024)) // 64KB max body

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	h := handlers.NewHandler(wc, redisStore, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)

	// Platform-facing endpoints: GET is the ownership probe, POST carries
	// message callbacks.
	r.Get("/wechat/{tenant}", h.Echo)
	r.Post("/wechat/{tenant}", h.Callback)

	return r
}

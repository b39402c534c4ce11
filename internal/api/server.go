// Package api serves the watch-mode ops endpoints: health, cache stats,
// the latest run and Prometheus metrics.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/albapepper/vlr-scraper/internal/api/handler"
)

// Per-IP budget for the ops endpoints.
const (
	opsRateLimitRequests = 120
	opsRateLimitWindow   = time.Minute
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps handler.Deps, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	r.Use(RateLimitMiddleware(opsRateLimitRequests, opsRateLimitWindow))

	h := handler.New(deps)

	// --- Routes ---
	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	r.Get("/runs/latest", h.LatestRun)
	r.Handle("/metrics", h.Metrics())

	return r
}

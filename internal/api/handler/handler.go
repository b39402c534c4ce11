// Package handler provides HTTP handlers for the ops endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/albapepper/vlr-scraper/internal/api/respond"
	"github.com/albapepper/vlr-scraper/internal/cache"
	"github.com/albapepper/vlr-scraper/internal/ledger"
)

// RunSource returns the most recent scrape run.
type RunSource interface {
	LatestRun(ctx context.Context) (*ledger.Run, error)
}

// DBChecker verifies the ledger database; satisfied by *ledger.Pool.
type DBChecker interface {
	HealthCheck(ctx context.Context) error
}

// CacheStatter reports cache contents; satisfied by *cache.FileCache.
type CacheStatter interface {
	Stats() cache.Stats
}

// Deps are the handler dependencies. DB is nil when no ledger is configured.
type Deps struct {
	Version string
	Runs    RunSource
	DB      DBChecker
	Cache   CacheStatter
	Metrics http.Handler
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	deps Deps
	now  func() time.Time
}

// New creates a Handler with shared dependencies.
func New(deps Deps) *Handler {
	if deps.Metrics == nil {
		deps.Metrics = http.NotFoundHandler()
	}
	return &Handler{deps: deps, now: time.Now}
}

func (h *Handler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}

// Root serves service info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "vlr-scraper",
		"version": h.deps.Version,
		"status":  "running",
		"endpoints": []string{
			"/health",
			"/health/db",
			"/health/cache",
			"/runs/latest",
			"/metrics",
		},
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.timestamp(),
	})
}

// HealthCheckDB verifies ledger connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil {
		respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
			"status":    "healthy",
			"database":  "disabled",
			"timestamp": h.timestamp(),
		})
		return
	}
	if err := h.deps.DB.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.timestamp(),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.timestamp(),
	})
}

// HealthCheckCache returns response cache statistics.
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", "Cache not configured")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.deps.Cache.Stats(),
		"timestamp": h.timestamp(),
	})
}

// LatestRun returns the most recent scrape run with its failures.
func (h *Handler) LatestRun(w http.ResponseWriter, r *http.Request) {
	if h.deps.Runs == nil {
		respond.WriteError(w, http.StatusNotFound, "NO_RUNS", "No runs recorded")
		return
	}
	run, err := h.deps.Runs.LatestRun(r.Context())
	if errors.Is(err, ledger.ErrNoRuns) {
		respond.WriteError(w, http.StatusNotFound, "NO_RUNS", "No runs recorded")
		return
	}
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "RUN_LOOKUP_FAILED",
			"Failed to load latest run", err.Error())
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, run)
}

// Metrics returns the Prometheus scrape handler.
func (h *Handler) Metrics() http.Handler {
	return h.deps.Metrics
}

// Package maintenance runs the watch-mode background tasks as Go tickers:
// scheduled re-scrapes, cache sweeps and ledger pruning.
package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/albapepper/vlr-scraper/internal/ledger"
	"github.com/albapepper/vlr-scraper/internal/scrape"
)

// Config controls task intervals. Zero duration disables a task.
type Config struct {
	ScrapeInterval  time.Duration // Re-scrape the team targets
	SweepInterval   time.Duration // Drop expired cache entries
	PruneInterval   time.Duration // Delete old ledger runs
	PruneOlderThan  time.Duration
	ScrapeOnStartup bool
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ScrapeInterval:  6 * time.Hour,
		SweepInterval:   30 * time.Minute,
		PruneInterval:   24 * time.Hour,
		PruneOlderThan:  30 * 24 * time.Hour,
		ScrapeOnStartup: true,
	}
}

// Scraper runs a scrape; satisfied by *scrape.Runner.
type Scraper interface {
	ScrapeAll(ctx context.Context, kind scrape.Kind, targets []string) (scrape.RunResult, error)
}

// Sweeper drops expired cache entries; satisfied by *cache.FileCache.
type Sweeper interface {
	Sweep() int
}

// Pruner deletes old runs; satisfied by *ledger.Pool.
type Pruner interface {
	PruneRuns(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Deps are the collaborators a Scheduler drives. Cache, Pruner and Hooks are
// optional.
type Deps struct {
	Scraper Scraper
	Targets []string
	Cache   Sweeper
	Pruner  Pruner
	Hooks   []Hook
}

// Scheduler owns the tickers and remembers the most recent run.
type Scheduler struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	last *scrape.RunResult
	// running guards against overlapping scrapes when a run outlasts the interval.
	running sync.Mutex
}

// New creates a Scheduler.
func New(deps Deps, cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{deps: deps, cfg: cfg, logger: logger}
}

// Start launches all configured tickers. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Maintenance tickers started",
		"scrape", s.cfg.ScrapeInterval,
		"sweep", s.cfg.SweepInterval,
		"prune", s.cfg.PruneInterval)

	tickers := make([]*time.Ticker, 0, 3)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if s.cfg.ScrapeInterval > 0 {
		if s.cfg.ScrapeOnStartup {
			go s.RunOnce(ctx)
		}
		t := time.NewTicker(s.cfg.ScrapeInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { s.RunOnce(ctx) })
	}

	if s.cfg.SweepInterval > 0 && s.deps.Cache != nil {
		t := time.NewTicker(s.cfg.SweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, s.sweep)
	}

	if s.cfg.PruneInterval > 0 && s.deps.Pruner != nil {
		t := time.NewTicker(s.cfg.PruneInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { s.prune(ctx) })
	}

	<-ctx.Done()
	s.logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// RunOnce scrapes the configured targets and runs the hooks. It returns
// false without scraping if a previous run is still in progress.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.running.TryLock() {
		s.logger.Warn("Scheduled scrape skipped, previous run still in progress")
		return false
	}
	defer s.running.Unlock()

	run, err := s.deps.Scraper.ScrapeAll(ctx, scrape.KindTeams, s.deps.Targets)
	if err != nil {
		s.logger.Error("Scheduled scrape failed", "error", err)
		return true
	}

	s.mu.Lock()
	s.last = &run
	s.mu.Unlock()

	runHooks(ctx, s.deps.Hooks, run, s.logger)
	return true
}

func (s *Scheduler) sweep() {
	start := time.Now()
	removed := s.deps.Cache.Sweep()
	if removed > 0 {
		s.logger.Info("Cache sweep: removed expired entries", "count", removed,
			"duration", time.Since(start).Round(time.Millisecond))
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	n, err := s.deps.Pruner.PruneRuns(ctx, s.cfg.PruneOlderThan)
	if err != nil {
		s.logger.Warn("Ledger prune: failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Ledger prune: deleted old runs", "count", n)
	}
}

// LatestRun returns the last run this process completed, in ledger form.
func (s *Scheduler) LatestRun(_ context.Context) (*ledger.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil, ledger.ErrNoRuns
	}
	run := ledger.RunFromResult(*s.last)
	return &run, nil
}

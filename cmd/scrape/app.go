package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/albapepper/vlr-scraper/internal/cache"
	"github.com/albapepper/vlr-scraper/internal/config"
	"github.com/albapepper/vlr-scraper/internal/extract"
	"github.com/albapepper/vlr-scraper/internal/fetch"
	"github.com/albapepper/vlr-scraper/internal/ledger"
	"github.com/albapepper/vlr-scraper/internal/metrics"
	"github.com/albapepper/vlr-scraper/internal/ratelimit"
	"github.com/albapepper/vlr-scraper/internal/roster"
	"github.com/albapepper/vlr-scraper/internal/scrape"
	"github.com/albapepper/vlr-scraper/internal/store"
	"github.com/albapepper/vlr-scraper/internal/vlr"
)

// app is the wired component graph shared by every subcommand.
type app struct {
	cfg     *config.Config
	cache   *cache.FileCache
	metrics *metrics.Metrics
	client  *fetch.Client
	parser  *vlr.Parser
	writer  *store.Writer
	ledger  *ledger.Pool // nil when DATABASE_URL is unset or unreachable
	logFile *os.File
}

// runOptions are per-invocation overrides of the environment config.
type runOptions struct {
	workers    int
	sequential bool
	noCache    bool
}

func (o runOptions) apply(cfg *config.Config) {
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	if o.noCache {
		cfg.CacheEnabled = false
	}
}

// runApp loads config, wires the app and calls fn with a context that is
// cancelled on SIGINT/SIGTERM.
func runApp(opts runOptions, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	opts.apply(cfg)

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	layout := store.Layout{DataDir: cfg.DataDir, LogDir: cfg.LogDir, CacheDir: cfg.CacheDir}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	logFile, err := openLogFile(cfg.LogDir, time.Now())
	if err != nil {
		return nil, err
	}
	a.logFile = logFile
	setLogger(cfg.LogLevel, logFile)

	a.cache, err = cache.New(cfg.CacheDir, cfg.CacheTTL, cfg.CacheEnabled, cache.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}

	table, err := extract.LoadTable(cfg.SelectorsFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	ex, err := extract.New(table, cfg.BaseURL, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.metrics = metrics.New()
	window := ratelimit.New(cfg.RateLimitRequests, cfg.RateLimitWindow)
	a.client = fetch.New(fetch.Options{
		UserAgent:     cfg.UserAgent,
		Delay:         cfg.Delay,
		Timeout:       cfg.RequestTimeout,
		RetryAttempts: cfg.RetryAttempts,
		RetryWait:     cfg.RetryWait,
	}, a.cache, window, a.metrics, logger)
	a.parser = vlr.NewParser(ex, roster.Default(), cfg.MatchLimit, logger)
	a.writer = store.NewWriter(layout, logger)

	if cfg.LedgerEnabled() {
		pool, err := ledger.New(ctx, cfg.DatabaseURL, ledger.Options{MaxConns: 4})
		if err != nil {
			logger.Warn("Run ledger unavailable, continuing file-only", "error", err)
		} else {
			a.ledger = pool
			logger.Info("Run ledger connected")
		}
	}

	logger.Info("Scraper initialized",
		"base_url", cfg.BaseURL,
		"workers", cfg.Workers,
		"cache", cfg.CacheEnabled,
		"rate_limit", fmt.Sprintf("%d/%s", cfg.RateLimitRequests, cfg.RateLimitWindow))
	return a, nil
}

// Close releases the ledger pool and log file.
func (a *app) Close() {
	if a.ledger != nil {
		a.ledger.Close()
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func (a *app) runner(sequential bool) *scrape.Runner {
	return scrape.NewRunner(a.client, a.parser, a.writer, a.metrics, scrape.Options{
		BaseURL:    a.cfg.BaseURL,
		Workers:    a.cfg.Workers,
		Sequential: sequential,
		UseCache:   a.cfg.CacheEnabled,
	}, logger)
}

// finishRun prints the run table and records the run in the ledger.
func (a *app) finishRun(ctx context.Context, out io.Writer, run scrape.RunResult) {
	scrape.RenderSummary(out, run)
	logger.Info("Scrape finished", "summary", run.Summary())
	if a.ledger != nil {
		if err := a.ledger.RecordRun(ctx, run); err != nil {
			logger.Warn("Failed to record run", "run_id", run.RunID, "error", err)
		}
	}
}

// writeSummary regenerates raw/scraping_summary.json.
func (a *app) writeSummary() (store.Summary, string, error) {
	stats := a.cache.Stats()
	s, err := a.writer.Summary(store.CacheSummary{CacheDir: stats.Dir, CachedFiles: stats.TotalKeys})
	if err != nil {
		return store.Summary{}, "", err
	}
	path, err := a.writer.WriteSummary(s)
	if err != nil {
		return store.Summary{}, "", err
	}
	return s, path, nil
}

// --------------------------------------------------------------------------
// Logging
// --------------------------------------------------------------------------

func openLogFile(dir string, now time.Time) (*os.File, error) {
	if dir == "" {
		return nil, nil
	}
	path := filepath.Join(dir, fmt.Sprintf("scraping_%s.log", now.Format("20060102")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// setLogger points the package logger at stdout plus the daily log file.
func setLogger(level slog.Level, file *os.File) {
	var w io.Writer = os.Stdout
	if file != nil {
		w = io.MultiWriter(os.Stdout, file)
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

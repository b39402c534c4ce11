// Package scrape runs fetch → parse → save over a list of targets, either
// sequentially or on a bounded worker pool, isolating each target's failure.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/albapepper/vlr-scraper/internal/metrics"
	"github.com/albapepper/vlr-scraper/internal/vlr"
)

var (
	// ErrNoTargets is returned when a run is started with an empty target list.
	ErrNoTargets = errors.New("no targets")
	// ErrInvalidTarget is returned for targets that are not absolute http(s) URLs.
	ErrInvalidTarget = errors.New("invalid target")
)

// Fetcher returns parsed pages; satisfied by *fetch.Client.
type Fetcher interface {
	Fetch(ctx context.Context, url string, useCache bool) (*goquery.Document, error)
}

// Saver persists records; satisfied by *store.Writer.
type Saver interface {
	WriteTeam(rec vlr.TeamRecord) (string, error)
	WriteTournament(rec vlr.TournamentRecord) (string, error)
}

// Options configures a Runner.
type Options struct {
	BaseURL    string
	Workers    int
	Sequential bool
	UseCache   bool
}

// Runner orchestrates scrape runs.
type Runner struct {
	fetcher Fetcher
	parser  *vlr.Parser
	saver   Saver
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time
	logger  *slog.Logger
}

// NewRunner creates a Runner. m may be nil.
func NewRunner(fetcher Fetcher, parser *vlr.Parser, saver Saver, m *metrics.Metrics, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Runner{
		fetcher: fetcher,
		parser:  parser,
		saver:   saver,
		metrics: m,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// ValidateTargets checks that targets is non-empty and every entry is an
// absolute http(s) URL.
func ValidateTargets(targets []string) error {
	if len(targets) == 0 {
		return ErrNoTargets
	}
	var errs []error
	for _, t := range targets {
		u, err := url.Parse(t)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidTarget, t))
		}
	}
	return errors.Join(errs...)
}

// ScrapeAll scrapes every target once. Per-target failures never abort the
// run; only an invalid target list is returned as an error. Cancelling ctx
// stops dispatch of further targets.
func (r *Runner) ScrapeAll(ctx context.Context, kind Kind, targets []string) (RunResult, error) {
	if kind != KindTeams && kind != KindTournaments {
		return RunResult{}, fmt.Errorf("unknown scrape kind %q", kind)
	}
	if err := ValidateTargets(targets); err != nil {
		return RunResult{}, fmt.Errorf("validate targets: %w", err)
	}

	start := time.Now()
	run := newRunResult(kind, len(targets), start)
	logger := r.logger.With("run_id", run.RunID, "kind", kind)

	workers := r.opts.Workers
	if r.opts.Sequential {
		workers = 1
	}
	if workers > len(targets) {
		workers = len(targets)
	}
	logger.Info("Starting scrape run", "targets", len(targets), "workers", workers)

	if workers <= 1 {
		for _, t := range targets {
			if ctx.Err() != nil {
				break
			}
			res := r.scrapeOne(ctx, kind, t)
			run.add(res)
			r.logProgress(logger, res, run.Attempted, len(targets))
		}
	} else {
		ch := make(chan string, len(targets))
		for _, t := range targets {
			ch <- t
		}
		close(ch)

		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for t := range ch {
					if ctx.Err() != nil {
						continue
					}
					res := r.scrapeOne(ctx, kind, t)

					mu.Lock()
					run.add(res)
					r.logProgress(logger, res, run.Attempted, len(targets))
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
	}

	run.Duration = time.Since(start)
	if len(run.Failures) > 0 {
		failed := make([]string, len(run.Failures))
		for i, f := range run.Failures {
			failed[i] = f.Target
		}
		logger.Warn("Some targets failed", "count", len(failed), "targets", failed)
	}
	logger.Info("Scrape run complete", "summary", run.Summary())
	return run, nil
}

// scrapeOne never panics; a panic inside the task becomes the target's error.
func (r *Runner) scrapeOne(ctx context.Context, kind Kind, target string) (res Result) {
	start := time.Now()
	res.Target = target
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("panic: %v", p)
			r.logger.Error("Recovered panic in scrape task", "url", target, "panic", p, "stack", string(debug.Stack()))
		}
		res.Duration = time.Since(start)
		r.metrics.TargetDone(string(kind), res.Err == nil, res.Duration.Seconds())
	}()

	doc, err := r.fetcher.Fetch(ctx, target, r.opts.UseCache)
	if err != nil {
		res.Err = fmt.Errorf("fetch: %w", err)
		return res
	}

	switch kind {
	case KindTeams:
		rec := r.parser.ParseTeam(doc, target, r.now())
		res.Name = rec.TeamName
		res.Path, err = r.saver.WriteTeam(rec)
	case KindTournaments:
		rec := r.parser.ParseTournament(doc, target, r.now())
		res.Name = rec.TournamentName
		res.Path, err = r.saver.WriteTournament(rec)
	}
	if err != nil {
		res.Err = fmt.Errorf("save: %w", err)
	}
	return res
}

func (r *Runner) logProgress(logger *slog.Logger, res Result, done, total int) {
	progress := fmt.Sprintf("%d/%d", done, total)
	if res.OK() {
		logger.Info("Target scraped", "progress", progress, "name", res.Name, "path", res.Path,
			"duration", res.Duration.Round(time.Millisecond))
		return
	}
	logger.Error("Target failed", "progress", progress, "url", res.Target, "error", res.Err)
}

// ----------------------------------------------------------------------------
// Event discovery
// ----------------------------------------------------------------------------

// DiscoverEvents pages through the event index and returns matching event
// URLs, de-duplicated in first-seen order. Pages that fail to load are
// skipped.
func (r *Runner) DiscoverEvents(ctx context.Context, pages int, keywords []string) []string {
	var urls []string
	seen := make(map[string]bool)
	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			break
		}
		indexURL := vlr.EventIndexURL(r.opts.BaseURL, page)
		doc, err := r.fetcher.Fetch(ctx, indexURL, r.opts.UseCache)
		if err != nil {
			r.logger.Warn("Skipping event index page", "page", page, "url", indexURL, "error", err)
			continue
		}
		found := r.parser.ParseEventIndex(doc, keywords)
		for _, u := range found {
			if !seen[u] {
				seen[u] = true
				urls = append(urls, u)
			}
		}
		r.logger.Info("Scanned event index page", "page", page, "matches", len(found))
	}
	r.logger.Info("Event discovery complete", "events", len(urls))
	return urls
}

// Command scrape is the vlr.gg esports scraper CLI.
//
// Usage:
//
//	vlr-scrape teams
//	vlr-scrape teams --file teams.txt --workers 5
//	vlr-scrape teams https://www.vlr.gg/team/2593/fnatic --sequential --no-cache
//	vlr-scrape tournament https://www.vlr.gg/event/2282/valorant-masters-toronto-2025
//	vlr-scrape events --pages 3 --scrape
//	vlr-scrape summary
//	vlr-scrape cache stats|sweep|purge
//	vlr-scrape watch
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/vlr-scraper/internal/api"
	"github.com/albapepper/vlr-scraper/internal/api/handler"
	"github.com/albapepper/vlr-scraper/internal/maintenance"
	"github.com/albapepper/vlr-scraper/internal/metrics"
	"github.com/albapepper/vlr-scraper/internal/scrape"
	"github.com/albapepper/vlr-scraper/internal/vlr"
)

var version = "dev"

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "vlr-scrape",
		Short:        "Resilient vlr.gg team and tournament scraper",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(teamsCmd())
	root.AddCommand(tournamentCmd())
	root.AddCommand(eventsCmd())
	root.AddCommand(summaryCmd())
	root.AddCommand(cacheCmd())
	root.AddCommand(watchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// teams command
// --------------------------------------------------------------------------

func teamsCmd() *cobra.Command {
	var (
		file string
		opts runOptions
	)
	cmd := &cobra.Command{
		Use:   "teams [url...]",
		Short: "Scrape team pages (defaults to the built-in VCT team list)",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := resolveTargets(file, args)
			if err != nil {
				return err
			}
			return runApp(opts, func(ctx context.Context, a *app) error {
				run, err := a.runner(opts.sequential).ScrapeAll(ctx, scrape.KindTeams, targets)
				if err != nil {
					return err
				}
				a.finishRun(ctx, cmd.OutOrStdout(), run)

				_, path, err := a.writeSummary()
				if err != nil {
					return err
				}
				logger.Info("Summary written", "path", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File with one team URL per line")
	addRunFlags(cmd, &opts)
	return cmd
}

func resolveTargets(file string, args []string) ([]string, error) {
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("pass either --file or URLs, not both")
	case file != "":
		return scrape.LoadTargets(file)
	case len(args) > 0:
		return args, nil
	default:
		return scrape.DefaultTeamTargets, nil
	}
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent workers (default SCRAPE_WORKERS)")
	cmd.Flags().BoolVar(&opts.sequential, "sequential", false, "Scrape one target at a time, in order")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Bypass the response cache")
}

// --------------------------------------------------------------------------
// tournament command
// --------------------------------------------------------------------------

func tournamentCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "tournament <url>...",
		Short: "Scrape tournament (event) pages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(opts, func(ctx context.Context, a *app) error {
				run, err := a.runner(opts.sequential).ScrapeAll(ctx, scrape.KindTournaments, args)
				if err != nil {
					return err
				}
				a.finishRun(ctx, cmd.OutOrStdout(), run)
				return nil
			})
		},
	}
	addRunFlags(cmd, &opts)
	return cmd
}

// --------------------------------------------------------------------------
// events command
// --------------------------------------------------------------------------

func eventsCmd() *cobra.Command {
	var (
		pages    int
		keywords []string
		doScrape bool
		opts     runOptions
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Discover VCT events on the event index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pages < 1 {
				return fmt.Errorf("--pages must be >= 1")
			}
			return runApp(opts, func(ctx context.Context, a *app) error {
				runner := a.runner(opts.sequential)
				urls := runner.DiscoverEvents(ctx, pages, keywords)
				logger.Info("Events discovered", "count", len(urls), "pages", pages)

				out := cmd.OutOrStdout()
				t := table.NewWriter()
				t.SetOutputMirror(out)
				t.SetStyle(table.StyleRounded)
				t.AppendHeader(table.Row{"#", "Event"})
				for i, u := range urls {
					t.AppendRow(table.Row{i + 1, u})
				}
				t.Render()

				if !doScrape || len(urls) == 0 {
					return nil
				}
				run, err := runner.ScrapeAll(ctx, scrape.KindTournaments, urls)
				if err != nil {
					return err
				}
				a.finishRun(ctx, out, run)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&pages, "pages", 3, "Event index pages to walk")
	cmd.Flags().StringSliceVar(&keywords, "keyword", vlr.DefaultEventKeywords, "Event title keywords to keep")
	cmd.Flags().BoolVar(&doScrape, "scrape", false, "Scrape every discovered event")
	addRunFlags(cmd, &opts)
	return cmd
}

// --------------------------------------------------------------------------
// summary command
// --------------------------------------------------------------------------

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Regenerate scraping_summary.json from the saved team files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(runOptions{}, func(ctx context.Context, a *app) error {
				s, path, err := a.writeSummary()
				if err != nil {
					return err
				}

				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.SetStyle(table.StyleRounded)
				t.SetTitle("Scraping summary")
				t.AppendRows([]table.Row{
					{"Teams scraped", s.TotalTeamsScraped},
					{"Cache dir", s.CacheStats.CacheDir},
					{"Cached files", s.CacheStats.CachedFiles},
					{"Written to", path},
				})
				t.Render()
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// cache command
// --------------------------------------------------------------------------

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clean the response cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(runOptions{}, func(ctx context.Context, a *app) error {
				st := a.cache.Stats()
				t := table.NewWriter()
				t.SetOutputMirror(cmd.OutOrStdout())
				t.SetStyle(table.StyleRounded)
				t.SetTitle("Response cache")
				t.AppendRows([]table.Row{
					{"Enabled", st.Enabled},
					{"Directory", st.Dir},
					{"Total", st.TotalKeys},
					{"Active", st.ActiveKeys},
					{"Expired", st.ExpiredKeys},
				})
				t.Render()
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete expired cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(runOptions{}, func(ctx context.Context, a *app) error {
				logger.Info("Cache sweep finished", "removed", a.cache.Sweep())
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every cache entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(runOptions{}, func(ctx context.Context, a *app) error {
				logger.Info("Cache purged", "removed", a.cache.Purge())
				return nil
			})
		},
	})

	return cmd
}

// --------------------------------------------------------------------------
// watch command
// --------------------------------------------------------------------------

func watchCmd() *cobra.Command {
	var (
		file string
		opts runOptions
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-scrape teams on a schedule and serve the ops endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := resolveTargets(file, nil)
			if err != nil {
				return err
			}
			return runApp(opts, func(ctx context.Context, a *app) error {
				return watch(ctx, a, targets, opts.sequential)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "File with one team URL per line")
	addRunFlags(cmd, &opts)
	return cmd
}

func watch(ctx context.Context, a *app, targets []string, sequential bool) error {
	hooks := []maintenance.Hook{{
		Name: "summary",
		Run: func(context.Context, scrape.RunResult) error {
			_, _, err := a.writeSummary()
			return err
		},
	}}

	mcfg := maintenance.DefaultConfig()
	mcfg.ScrapeInterval = a.cfg.WatchInterval
	mcfg.SweepInterval = a.cfg.CacheSweepEvery

	deps := maintenance.Deps{
		Scraper: a.runner(sequential),
		Targets: targets,
		Cache:   a.cache,
	}
	hdeps := handler.Deps{
		Version: version,
		Cache:   a.cache,
		Metrics: metrics.Handler(),
	}
	if a.ledger != nil {
		hooks = append(hooks, maintenance.LedgerHook(a.ledger))
		deps.Pruner = a.ledger
		hdeps.DB = a.ledger
	}
	deps.Hooks = hooks

	sched := maintenance.New(deps, mcfg, logger)
	hdeps.Runs = sched
	if a.ledger != nil {
		hdeps.Runs = a.ledger
	}

	go sched.Start(ctx)

	srv := &http.Server{
		Addr:         a.cfg.OpsAddr,
		Handler:      api.NewRouter(hdeps, a.cfg.CORSAllowOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ops server", "addr", srv.Addr, "interval", mcfg.ScrapeInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("ops server: %w", err)
	}
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Watch stopped")
	return nil
}

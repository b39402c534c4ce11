package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/vlr-scraper/internal/scrape"
)

// Hook runs after every scheduled scrape. A failing hook is logged and does
// not stop the hooks after it.
type Hook struct {
	Name string
	Run  func(ctx context.Context, run scrape.RunResult) error
}

// RunRecorder persists runs; satisfied by *ledger.Pool.
type RunRecorder interface {
	RecordRun(ctx context.Context, run scrape.RunResult) error
}

// LedgerHook records each run in the ledger.
func LedgerHook(rec RunRecorder) Hook {
	return Hook{Name: "ledger", Run: rec.RecordRun}
}

func runHooks(ctx context.Context, hooks []Hook, run scrape.RunResult, logger *slog.Logger) {
	for _, h := range hooks {
		start := time.Now()
		err := h.Run(ctx, run)
		dur := time.Since(start).Round(time.Millisecond)
		if err != nil {
			logger.Warn("Post-run hook failed", "hook", h.Name, "run_id", run.RunID, "duration", dur, "error", err)
			continue
		}
		logger.Debug("Post-run hook done", "hook", h.Name, "run_id", run.RunID, "duration", dur)
	}
}

// Package ledger records scrape runs and per-target outcomes in Postgres.
// It is optional: without DATABASE_URL the scraper runs file-only.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/vlr-scraper/internal/scrape"
)

// ErrNoRuns is returned by LatestRun when nothing has been recorded yet.
var ErrNoRuns = errors.New("no runs recorded")

const schema = `
CREATE TABLE IF NOT EXISTS scrape_runs (
	id          UUID PRIMARY KEY,
	kind        TEXT        NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT      NOT NULL,
	targets     INT         NOT NULL,
	attempted   INT         NOT NULL,
	succeeded   INT         NOT NULL,
	failed      INT         NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_outcomes (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID   NOT NULL REFERENCES scrape_runs(id) ON DELETE CASCADE,
	target      TEXT   NOT NULL,
	name        TEXT,
	path        TEXT,
	error       TEXT,
	duration_ms BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS scrape_runs_started_at_idx ON scrape_runs (started_at DESC);
CREATE INDEX IF NOT EXISTS scrape_outcomes_run_id_idx ON scrape_outcomes (run_id);
`

// Options configures the pool.
type Options struct {
	MinConns    int32
	MaxConns    int32
	MaxConnLife time.Duration
}

// Pool wraps pgxpool.Pool with ledger queries.
type Pool struct {
	*pgxpool.Pool
}

// New applies the schema, then creates and validates a connection pool.
func New(ctx context.Context, databaseURL string, opts Options) (*Pool, error) {
	if err := migrate(ctx, databaseURL); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = opts.MinConns
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnLife > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLife
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

func migrate(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		"health_check": "SELECT 1",

		"insert_run": `INSERT INTO scrape_runs
			(id, kind, started_at, duration_ms, targets, attempted, succeeded, failed)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		"insert_outcome": `INSERT INTO scrape_outcomes
			(run_id, target, name, path, error, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6)`,

		"latest_run": `SELECT id, kind, started_at, duration_ms, targets, attempted, succeeded, failed
			FROM scrape_runs ORDER BY started_at DESC LIMIT 1`,
		"run_failures": `SELECT target, error FROM scrape_outcomes
			WHERE run_id = $1 AND error IS NOT NULL ORDER BY id`,
		"prune_runs": `DELETE FROM scrape_runs WHERE started_at < $1`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Runs
// ----------------------------------------------------------------------------

// Run is a recorded scrape run.
type Run struct {
	ID         uuid.UUID        `json:"id"`
	Kind       string           `json:"kind"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMS int64            `json:"duration_ms"`
	Targets    int              `json:"targets"`
	Attempted  int              `json:"attempted"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	Failures   []scrape.Failure `json:"failures"`
}

// outcome is one scrape_outcomes row.
type outcome struct {
	Target     string
	Name       *string
	Path       *string
	Error      *string
	DurationMS int64
}

// RunFromResult converts a finished run into its ledger row.
func RunFromResult(run scrape.RunResult) Run {
	failures := run.Failures
	if failures == nil {
		failures = []scrape.Failure{}
	}
	return Run{
		ID:         run.RunID,
		Kind:       string(run.Kind),
		StartedAt:  run.StartedAt,
		DurationMS: run.Duration.Milliseconds(),
		Targets:    run.Targets,
		Attempted:  run.Attempted,
		Succeeded:  run.Succeeded(),
		Failed:     len(run.Failures),
		Failures:   failures,
	}
}

func outcomesFromResult(run scrape.RunResult) []outcome {
	out := make([]outcome, len(run.Results))
	for i, res := range run.Results {
		res := res // per-iteration copy (Go 1.22 loopvar semantics) so &res.Name/&res.Path stay distinct
		o := outcome{Target: res.Target, DurationMS: res.Duration.Milliseconds()}
		if res.Name != "" {
			o.Name = &res.Name
		}
		if res.Path != "" {
			o.Path = &res.Path
		}
		if res.Err != nil {
			msg := res.Err.Error()
			o.Error = &msg
		}
		out[i] = o
	}
	return out
}

// RecordRun stores a run and all its outcomes in one transaction.
func (p *Pool) RecordRun(ctx context.Context, run scrape.RunResult) error {
	row := RunFromResult(run)
	outcomes := outcomesFromResult(run)

	return pgx.BeginFunc(ctx, p.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "insert_run",
			row.ID, row.Kind, row.StartedAt, row.DurationMS,
			row.Targets, row.Attempted, row.Succeeded, row.Failed,
		); err != nil {
			return fmt.Errorf("insert run %s: %w", row.ID, err)
		}

		batch := &pgx.Batch{}
		for _, o := range outcomes {
			batch.Queue("insert_outcome", row.ID, o.Target, o.Name, o.Path, o.Error, o.DurationMS)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert outcomes for run %s: %w", row.ID, err)
		}
		return nil
	})
}

// LatestRun returns the most recently started run with its failures.
func (p *Pool) LatestRun(ctx context.Context) (*Run, error) {
	var r Run
	err := p.QueryRow(ctx, "latest_run").Scan(
		&r.ID, &r.Kind, &r.StartedAt, &r.DurationMS,
		&r.Targets, &r.Attempted, &r.Succeeded, &r.Failed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("get latest run: %w", err)
	}

	rows, err := p.Query(ctx, "run_failures", r.ID)
	if err != nil {
		return nil, fmt.Errorf("get failures for run %s: %w", r.ID, err)
	}
	defer rows.Close()

	r.Failures = []scrape.Failure{}
	for rows.Next() {
		var f scrape.Failure
		if err := rows.Scan(&f.Target, &f.Reason); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		r.Failures = append(r.Failures, f)
	}
	return &r, rows.Err()
}

// PruneRuns deletes runs started more than olderThan ago. Outcomes go with
// them through the cascade.
func (p *Pool) PruneRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	tag, err := p.Exec(ctx, "prune_runs", time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

package scrape

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the type of page a run scrapes.
type Kind string

const (
	KindTeams       Kind = "teams"
	KindTournaments Kind = "tournaments"
)

// Result is the outcome of one target. Success iff Err == nil.
type Result struct {
	Target   string
	Name     string
	Path     string
	Err      error
	Duration time.Duration
}

// OK reports whether the target was fetched, parsed and saved.
func (r Result) OK() bool { return r.Err == nil }

// Failure is a failed target with its reason.
type Failure struct {
	Target string `json:"target"`
	Reason string `json:"reason"`
}

// RunResult tracks the outcome of a whole run.
type RunResult struct {
	RunID     uuid.UUID
	Kind      Kind
	StartedAt time.Time
	Duration  time.Duration
	Targets   int
	Attempted int
	// Saved maps record name to file path, filled in completion order.
	Saved    map[string]string
	Failures []Failure
	Results  []Result
}

func newRunResult(kind Kind, targets int, started time.Time) RunResult {
	return RunResult{
		RunID:     uuid.New(),
		Kind:      kind,
		StartedAt: started,
		Targets:   targets,
		Saved:     make(map[string]string),
	}
}

// add folds one target outcome in. Callers serialize access.
func (r *RunResult) add(res Result) {
	r.Attempted++
	r.Results = append(r.Results, res)
	if res.OK() {
		r.Saved[res.Name] = res.Path
		return
	}
	r.Failures = append(r.Failures, Failure{Target: res.Target, Reason: res.Err.Error()})
}

// Succeeded counts successful targets. It can exceed len(Saved) when names
// collide.
func (r *RunResult) Succeeded() int { return r.Attempted - len(r.Failures) }

// Skipped counts targets never attempted because the run was cancelled.
func (r *RunResult) Skipped() int { return r.Targets - r.Attempted }

// Summary returns a human-readable summary.
func (r *RunResult) Summary() string {
	return fmt.Sprintf(
		"run=%s kind=%s targets=%d attempted=%d succeeded=%d failed=%d skipped=%d dur=%s",
		r.RunID, r.Kind, r.Targets, r.Attempted, r.Succeeded(),
		len(r.Failures), r.Skipped(), r.Duration.Round(time.Millisecond),
	)
}

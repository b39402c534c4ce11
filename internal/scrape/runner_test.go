package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/vlr-scraper/internal/extract"
	"github.com/albapepper/vlr-scraper/internal/metrics"
	"github.com/albapepper/vlr-scraper/internal/vlr"
)

var errUpstream = errors.New("upstream returned 503")

// fakeFetcher serves a page per URL and counts calls.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	fail   map[string]error
	panics map[string]bool
	calls  map[string]int
	block  chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages:  map[string]string{},
		fail:   map[string]error{},
		panics: map[string]bool{},
		calls:  map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, _ bool) (*goquery.Document, error) {
	f.mu.Lock()
	f.calls[url]++
	page, failErr, panics := f.pages[url], f.fail[url], f.panics[url]
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if panics {
		panic("boom")
	}
	if failErr != nil {
		return nil, failErr
	}
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type fakeSaver struct {
	mu    sync.Mutex
	teams []vlr.TeamRecord
	tours []vlr.TournamentRecord
	fail  map[string]bool
}

func (s *fakeSaver) WriteTeam(rec vlr.TeamRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[rec.TeamName] {
		return "", errors.New("disk full")
	}
	s.teams = append(s.teams, rec)
	return "data/raw/teams/" + strings.ToLower(rec.TeamName) + ".json", nil
}

func (s *fakeSaver) WriteTournament(rec vlr.TournamentRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tours = append(s.tours, rec)
	return "data/raw/tournaments/" + rec.TournamentID + ".json", nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(t *testing.T, f Fetcher, s Saver, m *metrics.Metrics, opts Options) *Runner {
	t.Helper()
	ex, err := extract.New(extract.DefaultTable(), "https://www.vlr.gg", quietLogger())
	require.NoError(t, err)
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.vlr.gg"
	}
	return NewRunner(f, vlr.NewParser(ex, nil, 0, quietLogger()), s, m, opts, quietLogger())
}

func teamTargets(f *fakeFetcher, n int) []string {
	targets := make([]string, n)
	for i := range targets {
		url := fmt.Sprintf("https://www.vlr.gg/team/%d/team-%d", i+1, i+1)
		f.pages[url] = fmt.Sprintf(`<h1 class="wf-title">Team%d</h1>`, i+1)
		targets[i] = url
	}
	return targets
}

func TestScrapeAllIsolatesFailures(t *testing.T) {
	for _, opts := range []Options{
		{Workers: 1},
		{Workers: 3},
		{Workers: 8, Sequential: true},
		{Workers: 10},
	} {
		t.Run(fmt.Sprintf("workers=%d/sequential=%v", opts.Workers, opts.Sequential), func(t *testing.T) {
			f := newFakeFetcher()
			targets := teamTargets(f, 5)
			f.fail[targets[2]] = errUpstream

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			r := newTestRunner(t, f, &fakeSaver{}, m, opts)

			run, err := r.ScrapeAll(context.Background(), KindTeams, targets)
			require.NoError(t, err)

			assert.Len(t, run.Saved, 4)
			assert.NotContains(t, run.Saved, "Team3")
			require.Len(t, run.Failures, 1)
			assert.Equal(t, targets[2], run.Failures[0].Target)
			assert.Contains(t, run.Failures[0].Reason, "upstream returned 503")
			assert.Equal(t, 5, run.Attempted)
			assert.Equal(t, 4, run.Succeeded())
			assert.Equal(t, 0, run.Skipped())
			for _, u := range targets {
				assert.Equal(t, 1, f.callCount(u), u)
			}
			assert.Equal(t, 4.0, testutil.ToFloat64(m.Targets.WithLabelValues("teams", "ok")))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Targets.WithLabelValues("teams", "failed")))
		})
	}
}

func TestScrapeAllSequentialPreservesOrder(t *testing.T) {
	f := newFakeFetcher()
	targets := teamTargets(f, 4)
	r := newTestRunner(t, f, &fakeSaver{}, nil, Options{Workers: 4, Sequential: true})

	run, err := r.ScrapeAll(context.Background(), KindTeams, targets)
	require.NoError(t, err)

	got := make([]string, len(run.Results))
	for i, res := range run.Results {
		got[i] = res.Target
	}
	assert.Equal(t, targets, got)
}

func TestScrapeAllRecoversPanics(t *testing.T) {
	f := newFakeFetcher()
	targets := teamTargets(f, 3)
	f.panics[targets[0]] = true
	r := newTestRunner(t, f, &fakeSaver{}, nil, Options{Workers: 2})

	run, err := r.ScrapeAll(context.Background(), KindTeams, targets)
	require.NoError(t, err)
	assert.Len(t, run.Saved, 2)
	require.Len(t, run.Failures, 1)
	assert.Contains(t, run.Failures[0].Reason, "panic: boom")
}

func TestScrapeAllSaveFailure(t *testing.T) {
	f := newFakeFetcher()
	targets := teamTargets(f, 2)
	saver := &fakeSaver{fail: map[string]bool{"Team2": true}}
	r := newTestRunner(t, f, saver, nil, Options{Workers: 1})

	run, err := r.ScrapeAll(context.Background(), KindTeams, targets)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Team1": "data/raw/teams/team1.json"}, run.Saved)
	require.Len(t, run.Failures, 1)
	assert.Contains(t, run.Failures[0].Reason, "save: disk full")
}

func TestScrapeAllNameCollisionLaterWins(t *testing.T) {
	f := newFakeFetcher()
	a, b := "https://www.vlr.gg/team/1/a", "https://www.vlr.gg/team/2/b"
	f.pages[a] = `<h1>Same</h1>`
	f.pages[b] = `<h1>Same</h1>`
	saver := &fakeSaver{}
	r := newTestRunner(t, f, saver, nil, Options{Workers: 1})

	run, err := r.ScrapeAll(context.Background(), KindTeams, []string{a, b})
	require.NoError(t, err)
	assert.Len(t, run.Saved, 1)
	assert.Equal(t, 2, run.Succeeded())
	assert.Len(t, saver.teams, 2)
	assert.Equal(t, "2", saver.teams[1].TeamID)
}

func TestScrapeAllTournaments(t *testing.T) {
	f := newFakeFetcher()
	url := "https://www.vlr.gg/event/2282/masters-toronto"
	f.pages[url] = `<h1>Masters Toronto</h1><div class="event-header-date">Jun 7 – Jun 22</div>`
	saver := &fakeSaver{}
	r := newTestRunner(t, f, saver, nil, Options{Workers: 2})

	run, err := r.ScrapeAll(context.Background(), KindTournaments, []string{url})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Masters Toronto": "data/raw/tournaments/2282.json"}, run.Saved)
	require.Len(t, saver.tours, 1)
	assert.Equal(t, "Jun 22", *saver.tours[0].EndDate)
}

func TestScrapeAllValidatesTargets(t *testing.T) {
	r := newTestRunner(t, newFakeFetcher(), &fakeSaver{}, nil, Options{})

	_, err := r.ScrapeAll(context.Background(), KindTeams, nil)
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = r.ScrapeAll(context.Background(), KindTeams, []string{"https://www.vlr.gg/team/1/a", "/team/2/b", "ftp://x/y"})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.ErrorContains(t, err, `"/team/2/b"`)
	assert.ErrorContains(t, err, `"ftp://x/y"`)

	_, err = r.ScrapeAll(context.Background(), Kind("players"), []string{"https://www.vlr.gg/player/1"})
	assert.ErrorContains(t, err, "unknown scrape kind")
}

func TestScrapeAllStopsDispatchOnCancel(t *testing.T) {
	f := newFakeFetcher()
	targets := teamTargets(f, 6)
	f.block = make(chan struct{})
	r := newTestRunner(t, f, &fakeSaver{}, nil, Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan RunResult)
	go func() {
		run, _ := r.ScrapeAll(ctx, KindTeams, targets)
		done <- run
	}()

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.calls) == 2
	}, time.Second, time.Millisecond)
	cancel()
	close(f.block)

	run := <-done
	assert.Equal(t, 2, run.Attempted)
	assert.Equal(t, 4, run.Skipped())
}

func TestRunResultSummary(t *testing.T) {
	run := newRunResult(KindTeams, 3, time.Now())
	run.add(Result{Target: "a", Name: "A", Path: "a.json"})
	run.add(Result{Target: "b", Err: errUpstream})
	run.Duration = 1500 * time.Millisecond

	s := run.Summary()
	assert.Contains(t, s, "kind=teams targets=3 attempted=2 succeeded=1 failed=1 skipped=1 dur=1.5s")
	assert.Contains(t, s, run.RunID.String())
}

func TestRenderSummary(t *testing.T) {
	run := newRunResult(KindTeams, 2, time.Now())
	run.add(Result{Target: "https://www.vlr.gg/team/5248/sentinels", Name: "Sentinels", Path: "data/raw/teams/sentinels.json"})
	run.add(Result{Target: "https://www.vlr.gg/team/188/cloud9", Err: errUpstream})

	var buf bytes.Buffer
	RenderSummary(&buf, run)
	out := buf.String()
	assert.Contains(t, out, "Scrape summary (teams)")
	assert.Contains(t, out, "Sentinels")
	assert.Contains(t, out, "data/raw/teams/sentinels.json")
	assert.Contains(t, out, "https://www.vlr.gg/team/188/cloud9")
	assert.Contains(t, out, "upstream returned 503")
}

func TestDiscoverEvents(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://www.vlr.gg/events?page=1"] = `
		<a class="event-item" href="/event/1/vct-a">VCT A</a>
		<a class="event-item" href="/event/2/open">Open Cup</a>`
	f.fail["https://www.vlr.gg/events?page=2"] = errUpstream
	f.pages["https://www.vlr.gg/events?page=3"] = `
		<a class="event-item" href="/event/1/vct-a">VCT A</a>
		<a class="event-item" href="/event/3/masters">Masters Madrid</a>`
	r := newTestRunner(t, f, &fakeSaver{}, nil, Options{})

	urls := r.DiscoverEvents(context.Background(), 3, nil)
	assert.Equal(t, []string{"https://www.vlr.gg/event/1/vct-a", "https://www.vlr.gg/event/3/masters"}, urls)
	assert.Equal(t, 1, f.callCount("https://www.vlr.gg/events?page=2"))
}

func TestReadTargets(t *testing.T) {
	targets, err := ReadTargets(strings.NewReader(`
# EMEA
https://www.vlr.gg/team/2593/fnatic

  https://www.vlr.gg/team/7035/koi
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.vlr.gg/team/2593/fnatic", "https://www.vlr.gg/team/7035/koi"}, targets)
	assert.NoError(t, ValidateTargets(DefaultTeamTargets))
}

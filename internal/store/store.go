// Package store persists scraped records as JSON files under the data
// directory layout.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/albapepper/vlr-scraper/internal/config"
	"github.com/albapepper/vlr-scraper/internal/vlr"
)

// ErrNoName is returned when a record has nothing to derive a file name from.
var ErrNoName = errors.New("record has no name")

var (
	unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s-]`)
	separators  = regexp.MustCompile(`[-\s]+`)
)

// Slug turns a display name into a file stem: punctuation dropped, dash and
// whitespace runs collapsed to "_", lowercased. An empty result falls back
// to "<prefix>_YYYYMMDD_HHMMSS".
func Slug(name, prefix string, now time.Time) string {
	s := strings.TrimSpace(unsafeChars.ReplaceAllString(name, ""))
	s = strings.ToLower(separators.ReplaceAllString(s, "_"))
	if s == "" || s == "_" {
		s = prefix + "_" + now.Format("20060102_150405")
	}
	return s
}

// ----------------------------------------------------------------------------
// Layout
// ----------------------------------------------------------------------------

// Layout is the on-disk directory tree.
type Layout struct {
	DataDir  string
	LogDir   string
	CacheDir string
}

func (l Layout) RawDir() string         { return filepath.Join(l.DataDir, config.RawDir) }
func (l Layout) TeamsDir() string       { return filepath.Join(l.RawDir(), config.TeamsDir) }
func (l Layout) TournamentsDir() string { return filepath.Join(l.RawDir(), config.TourneysDir) }
func (l Layout) SummaryPath() string    { return filepath.Join(l.RawDir(), config.SummaryFile) }

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	dirs := []string{
		filepath.Join(l.RawDir(), config.MatchesDir),
		l.TeamsDir(),
		filepath.Join(l.RawDir(), config.PlayersDir),
		l.TournamentsDir(),
		filepath.Join(l.DataDir, config.ProcessedDir, config.FeaturesDir),
		filepath.Join(l.DataDir, config.ProcessedDir, config.TrainingDir),
	}
	if l.LogDir != "" {
		dirs = append(dirs, l.LogDir)
	}
	if l.CacheDir != "" {
		dirs = append(dirs, l.CacheDir)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Writer
// ----------------------------------------------------------------------------

// Writer saves records under a Layout.
type Writer struct {
	layout Layout
	now    func() time.Time
	logger *slog.Logger
}

// NewWriter creates a Writer. It does not create directories; call
// Layout.Ensure first.
func NewWriter(layout Layout, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{layout: layout, now: time.Now, logger: logger}
}

// Layout returns the writer's directory layout.
func (w *Writer) Layout() Layout { return w.layout }

// WriteTeam saves rec to raw/teams/<slug>.json and returns the path.
func (w *Writer) WriteTeam(rec vlr.TeamRecord) (string, error) {
	if strings.TrimSpace(rec.TeamName) == "" {
		return "", fmt.Errorf("save team %s: %w", rec.TeamURL, ErrNoName)
	}
	path := filepath.Join(w.layout.TeamsDir(), Slug(rec.TeamName, "team", w.now())+".json")
	if err := writeJSON(path, rec); err != nil {
		return "", fmt.Errorf("save team %s: %w", rec.TeamName, err)
	}
	w.logger.Info("Team data saved", "team", rec.TeamName, "path", path)
	return path, nil
}

// WriteTournament saves rec to raw/tournaments/<slug>.json and returns the path.
func (w *Writer) WriteTournament(rec vlr.TournamentRecord) (string, error) {
	path := filepath.Join(w.layout.TournamentsDir(), Slug(rec.TournamentName, "tournament", w.now())+".json")
	if err := writeJSON(path, rec); err != nil {
		return "", fmt.Errorf("save tournament %s: %w", rec.TournamentName, err)
	}
	w.logger.Info("Tournament data saved", "tournament", rec.TournamentName, "path", path)
	return path, nil
}

// ----------------------------------------------------------------------------
// Summary
// ----------------------------------------------------------------------------

// CacheSummary is the cache section of the scraping summary.
type CacheSummary struct {
	CacheDir    string `json:"cache_dir"`
	CachedFiles int    `json:"cached_files"`
}

// Summary describes the saved team files.
type Summary struct {
	TotalTeamsScraped int          `json:"total_teams_scraped"`
	ScrapingDate      time.Time    `json:"scraping_date"`
	CacheStats        CacheSummary `json:"cache_stats"`
	Files             []string     `json:"files"`
}

// Summary lists the team files currently on disk.
func (w *Writer) Summary(cache CacheSummary) (Summary, error) {
	matches, err := filepath.Glob(filepath.Join(w.layout.TeamsDir(), "*.json"))
	if err != nil {
		return Summary{}, fmt.Errorf("list team files: %w", err)
	}
	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Base(m))
	}
	sort.Strings(files)
	return Summary{
		TotalTeamsScraped: len(files),
		ScrapingDate:      w.now(),
		CacheStats:        cache,
		Files:             files,
	}, nil
}

// WriteSummary saves s to raw/scraping_summary.json and returns the path.
func (w *Writer) WriteSummary(s Summary) (string, error) {
	path := w.layout.SummaryPath()
	if err := writeJSON(path, s); err != nil {
		return "", fmt.Errorf("save summary: %w", err)
	}
	return path, nil
}

// writeJSON writes v with two-space indentation, leaving non-ASCII and HTML
// characters unescaped. The file is replaced atomically.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

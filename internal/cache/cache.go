// Package cache provides a file-backed TTL cache of fetched pages.
//
// Each URL maps to one JSON file named after the md5 of its normalized form,
// so concurrent writers to different URLs never touch the same file. Entries
// that are expired or unreadable are deleted the first time they are read.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/purell"
)

// DefaultTTL matches the scraper's default CACHE_TTL_HOURS.
const DefaultTTL = 6 * time.Hour

const fileExt = ".json"

// normalizeFlags keep keys stable across cosmetic URL differences
// (host case, default port, fragment, query order).
const normalizeFlags = purell.FlagsSafe |
	purell.FlagsUsuallySafeNonGreedy |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

// Entry is the on-disk shape of one cached page.
type Entry struct {
	URL      string    `json:"url"`
	CachedAt time.Time `json:"cached_at"`
	Payload  []byte    `json:"payload"`
}

// Stats describes the cache directory contents.
type Stats struct {
	Enabled     bool   `json:"enabled"`
	Dir         string `json:"cache_dir"`
	TotalKeys   int    `json:"cached_files"`
	ActiveKeys  int    `json:"active_keys"`
	ExpiredKeys int    `json:"expired_keys"`
}

// FileCache is a directory of TTL-bounded page entries.
type FileCache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a FileCache.
type Option func(*FileCache)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *FileCache) { c.now = now }
}

// WithLogger sets the logger used for self-healing messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *FileCache) { c.logger = logger }
}

// New creates the cache directory (when enabled) and returns the cache.
// Pass enabled=false to create a no-op cache.
func New(dir string, ttl time.Duration, enabled bool, opts ...Option) (*FileCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &FileCache{
		dir:     dir,
		ttl:     ttl,
		enabled: enabled,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if enabled {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	return c, nil
}

// Enabled reports whether the cache stores anything.
func (c *FileCache) Enabled() bool { return c.enabled }

// Dir returns the cache directory.
func (c *FileCache) Dir() string { return c.dir }

// Key returns the md5 hex digest of the normalized URL.
func Key(rawURL string) string {
	normalized, err := purell.NormalizeURLString(rawURL, normalizeFlags)
	if err != nil {
		normalized = rawURL
	}
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (c *FileCache) path(rawURL string) string {
	return filepath.Join(c.dir, Key(rawURL)+fileExt)
}

// Get returns the cached payload for url if present and unexpired.
// Expired or corrupt entries are removed and reported as misses.
func (c *FileCache) Get(rawURL string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	p := c.path(rawURL)
	entry, err := readEntry(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Removing corrupt cache entry", "url", rawURL, "file", p, "error", err)
		c.remove(p)
		return nil, false
	}
	if Key(entry.URL) != Key(rawURL) {
		c.logger.Warn("Removing mismatched cache entry", "url", rawURL, "cached_url", entry.URL)
		c.remove(p)
		return nil, false
	}
	if !c.fresh(entry) {
		c.remove(p)
		return nil, false
	}
	return entry.Payload, true
}

// Set stores payload for url, overwriting any previous entry.
func (c *FileCache) Set(rawURL string, payload []byte) error {
	if !c.enabled {
		return nil
	}
	data, err := json.Marshal(Entry{
		URL:      rawURL,
		CachedAt: c.now(),
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(rawURL)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}

// Stats walks the cache directory and classifies entries.
func (c *FileCache) Stats() Stats {
	s := Stats{Enabled: c.enabled, Dir: c.dir}
	c.each(func(p string, entry Entry, err error) {
		s.TotalKeys++
		if err == nil && c.fresh(entry) {
			s.ActiveKeys++
		} else {
			s.ExpiredKeys++
		}
	})
	return s
}

// Sweep removes every expired or corrupt entry and returns how many it removed.
func (c *FileCache) Sweep() int {
	removed := 0
	c.each(func(p string, entry Entry, err error) {
		if err != nil || !c.fresh(entry) {
			c.remove(p)
			removed++
		}
	})
	return removed
}

// Purge removes every entry regardless of age.
func (c *FileCache) Purge() int {
	removed := 0
	c.each(func(p string, _ Entry, _ error) {
		c.remove(p)
		removed++
	})
	return removed
}

func (c *FileCache) fresh(e Entry) bool {
	if e.CachedAt.IsZero() {
		return false
	}
	return c.now().Sub(e.CachedAt) < c.ttl
}

func (c *FileCache) each(fn func(p string, entry Entry, err error)) {
	if !c.enabled {
		return
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("Failed to list cache dir", "dir", c.dir, "error", err)
		return
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), fileExt) {
			continue
		}
		p := filepath.Join(c.dir, f.Name())
		entry, err := readEntry(p)
		fn(p, entry, err)
	}
}

func (c *FileCache) remove(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.Warn("Failed to remove cache entry", "file", p, "error", err)
	}
}

func readEntry(p string) (Entry, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decode cache entry: %w", err)
	}
	if e.URL == "" {
		return Entry{}, errors.New("decode cache entry: missing url")
	}
	return e, nil
}

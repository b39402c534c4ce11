// Package config provides centralized configuration loaded from environment
// variables. Shared by every cmd/scrape subcommand.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Output layout: directory names under DATA_DIR
// --------------------------------------------------------------------------

const (
	RawDir       = "raw"
	ProcessedDir = "processed"
	TeamsDir     = "teams"
	TourneysDir  = "tournaments"
	MatchesDir   = "matches"
	PlayersDir   = "players"
	FeaturesDir  = "features"
	TrainingDir  = "training"
	SummaryFile  = "scraping_summary.json"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Site
	BaseURL   string
	UserAgent string

	// Request layer
	Delay          time.Duration
	RequestTimeout time.Duration
	RetryAttempts  int
	RetryWait      time.Duration

	// Sliding-window rate limit
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Cache
	CacheEnabled bool
	CacheDir     string
	CacheTTL     time.Duration

	// Orchestration
	Workers    int
	MatchLimit int

	// Output
	DataDir string
	LogDir  string

	// Optional selector overrides (YAML)
	SelectorsFile string

	// Optional Postgres run ledger
	DatabaseURL string

	// Watch mode
	OpsAddr          string
	WatchInterval    time.Duration
	CacheSweepEvery  time.Duration
	CORSAllowOrigins []string

	LogLevel slog.Level
}

// Load reads configuration from environment variables with sensible defaults
// and validates the result.
func Load() (*Config, error) {
	level, err := parseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		BaseURL:   strings.TrimRight(envOr("VLR_BASE_URL", "https://www.vlr.gg"), "/"),
		UserAgent: envOr("USER_AGENT", defaultUserAgent),

		Delay:          envSeconds("SCRAPE_DELAY_SECONDS", 1.0),
		RequestTimeout: envSeconds("REQUEST_TIMEOUT_SECONDS", 15),
		RetryAttempts:  envInt("RETRY_ATTEMPTS", 3),
		RetryWait:      envSeconds("RETRY_WAIT_SECONDS", 1),

		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 20),
		RateLimitWindow:   envSeconds("RATE_LIMIT_WINDOW_SECONDS", 60),

		CacheEnabled: envBool("CACHE_ENABLED", true),
		CacheDir:     envOr("CACHE_DIR", "cache"),
		CacheTTL:     time.Duration(envFloat("CACHE_TTL_HOURS", 6) * float64(time.Hour)),

		Workers:    envInt("SCRAPE_WORKERS", 3),
		MatchLimit: envInt("MATCH_LIMIT", 15),

		DataDir: envOr("DATA_DIR", "data"),
		LogDir:  envOr("LOG_DIR", "logs"),

		SelectorsFile: envOr("SELECTORS_FILE", ""),
		DatabaseURL:   envOr("DATABASE_URL", ""),

		OpsAddr:          envOr("OPS_ADDR", ":9090"),
		WatchInterval:    time.Duration(envInt("WATCH_INTERVAL_MINUTES", 360)) * time.Minute,
		CacheSweepEvery:  time.Duration(envInt("CACHE_SWEEP_MINUTES", 30)) * time.Minute,
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000"}),

		LogLevel: level,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("VLR_BASE_URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	switch {
	case c.Delay < 0:
		return fmt.Errorf("SCRAPE_DELAY_SECONDS must be >= 0")
	case c.RequestTimeout <= 0:
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be > 0")
	case c.RetryAttempts < 0:
		return fmt.Errorf("RETRY_ATTEMPTS must be >= 0")
	case c.RateLimitRequests < 1:
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be >= 1")
	case c.RateLimitWindow <= 0:
		return fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be > 0")
	case c.CacheTTL <= 0:
		return fmt.Errorf("CACHE_TTL_HOURS must be > 0")
	case c.Workers < 1:
		return fmt.Errorf("SCRAPE_WORKERS must be >= 1")
	case c.MatchLimit < 1:
		return fmt.Errorf("MATCH_LIMIT must be >= 1")
	case c.DataDir == "":
		return fmt.Errorf("DATA_DIR must not be empty")
	}
	return nil
}

// LedgerEnabled returns true if a Postgres run ledger is configured.
func (c *Config) LedgerEnabled() bool {
	return c.DatabaseURL != ""
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envSeconds reads a (possibly fractional) number of seconds.
func envSeconds(key string, fallback float64) time.Duration {
	return time.Duration(envFloat(key, fallback) * float64(time.Second))
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

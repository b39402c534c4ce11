// Package fetch provides the page-fetching client shared by every scraper.
//
// A fetch goes through, in order: the response cache, politeness pacing,
// sliding-window admission, and a resty request with retry/backoff on
// transient failures. Cache hits never touch the rate budget.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/albapepper/vlr-scraper/internal/metrics"
)

// ErrEmptyBody is returned when a successful response carries no content.
var ErrEmptyBody = errors.New("empty response body")

// transientStatuses are retried with backoff.
var transientStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// IsTransient reports whether status is worth retrying.
func IsTransient(status int) bool {
	return transientStatuses[status]
}

// StatusError is a non-2xx response that survived the retry policy.
type StatusError struct {
	URL        string
	StatusCode int
	Attempts   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
}

// Transient reports whether the final status was a retryable one.
func (e *StatusError) Transient() bool {
	return IsTransient(e.StatusCode)
}

// Cache is the subset of cache.FileCache the client needs.
type Cache interface {
	Get(url string) ([]byte, bool)
	Set(url string, payload []byte) error
}

// Admitter gates each outbound request; satisfied by *ratelimit.Window.
type Admitter interface {
	Admit(ctx context.Context) error
}

// Options configures a Client.
type Options struct {
	UserAgent     string
	Delay         time.Duration // minimum spacing between requests; 0 disables pacing
	Timeout       time.Duration // per attempt
	RetryAttempts int           // retries after the first attempt
	RetryWait     time.Duration // initial backoff
	RetryMaxWait  time.Duration // backoff ceiling; defaults to 8x RetryWait
}

// Client fetches and parses pages.
type Client struct {
	http    *resty.Client
	cache   Cache
	window  Admitter
	pacer   *rate.Limiter
	metrics metrics.Recorder
	logger  *slog.Logger
}

// New creates a Client. cache and window may be nil; rec may be nil.
func New(opts Options, cache Cache, window Admitter, rec *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = time.Second
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = 8 * opts.RetryWait
	}

	pacing := rate.Inf
	if opts.Delay > 0 {
		pacing = rate.Every(opts.Delay)
	}

	c := &Client{
		cache:   cache,
		window:  window,
		pacer:   rate.NewLimiter(pacing, 1),
		metrics: rec,
		logger:  logger,
	}

	headers := map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "en-US,en;q=0.5",
		"Upgrade-Insecure-Requests": "1",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	c.http = resty.New().
		SetTimeout(opts.Timeout).
		SetHeaders(headers).
		SetRetryCount(opts.RetryAttempts).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		AddRetryCondition(shouldRetry).
		AddRetryHook(c.onRetry).
		OnBeforeRequest(c.admit)

	return c
}

// shouldRetry retries transport errors and transient statuses.
func shouldRetry(r *resty.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return r != nil && IsTransient(r.StatusCode())
}

func (c *Client) onRetry(r *resty.Response, err error) {
	c.metrics.Retry()
	attrs := []any{"error", err}
	if r != nil {
		attrs = append(attrs, "url", r.Request.URL, "status", r.StatusCode())
	}
	c.logger.Warn("Retrying request", attrs...)
}

// admit runs before every attempt, retries included.
func (c *Client) admit(_ *resty.Client, req *resty.Request) error {
	ctx := req.Context()
	if err := c.pacer.Wait(ctx); err != nil {
		return fmt.Errorf("pacing wait: %w", err)
	}
	if c.window != nil {
		if err := c.window.Admit(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return nil
}

// Fetch returns the parsed page at url. With useCache, a fresh cached copy is
// returned without any network traffic and successful responses are stored.
// Any failure is logged and returned; Fetch never panics.
func (c *Client) Fetch(ctx context.Context, url string, useCache bool) (*goquery.Document, error) {
	body, err := c.Get(ctx, url, useCache)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html %s: %w", url, err)
	}
	return doc, nil
}

// Get is Fetch without the HTML parse.
func (c *Client) Get(ctx context.Context, url string, useCache bool) ([]byte, error) {
	if useCache && c.cache != nil {
		if body, ok := c.cache.Get(url); ok {
			c.metrics.CacheHit()
			c.logger.Info("Using cached page", "url", url)
			return body, nil
		}
		c.metrics.CacheMiss()
	}

	c.logger.Info("Making request", "url", url)
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		c.metrics.Request("error")
		c.logger.Error("Request failed", "url", url, "error", err)
		return nil, fmt.Errorf("http request %s: %w", url, err)
	}

	c.metrics.Request(strconv.Itoa(resp.StatusCode()))
	if !resp.IsSuccess() {
		serr := &StatusError{URL: url, StatusCode: resp.StatusCode(), Attempts: resp.Request.Attempt}
		c.logger.Error("Request failed", "url", url, "status", resp.StatusCode(), "attempts", resp.Request.Attempt)
		return nil, serr
	}

	body := resp.Body()
	if len(bytes.TrimSpace(body)) == 0 {
		c.logger.Error("Request returned empty body", "url", url)
		return nil, fmt.Errorf("GET %s: %w", url, ErrEmptyBody)
	}
	c.logger.Debug("Request complete", "url", url, "bytes", len(body), "duration", time.Since(start).Round(time.Millisecond))

	if useCache && c.cache != nil {
		if err := c.cache.Set(url, body); err != nil {
			c.logger.Warn("Failed to cache page", "url", url, "error", err)
		}
	}
	return body, nil
}

package api

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/albapepper/vlr-scraper/internal/api/respond"
	"github.com/albapepper/vlr-scraper/internal/ratelimit"
)

// --------------------------------------------------------------------------
// Request timing middleware
// --------------------------------------------------------------------------

// timingWriter stamps X-Process-Time just before the status line goes out;
// headers set after WriteHeader are dropped.
type timingWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
}

func (w *timingWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		elapsed := time.Since(w.start)
		w.Header().Set("X-Process-Time", fmt.Sprintf("%.2fms", float64(elapsed.Microseconds())/1000.0))
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *timingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *timingWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// TimingMiddleware adds X-Process-Time header to all responses.
func TimingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(&timingWriter{ResponseWriter: w, start: time.Now()}, r)
	})
}

// --------------------------------------------------------------------------
// Rate limiting middleware (per-client sliding window)
// --------------------------------------------------------------------------

// clientWindows holds one sliding window per client address. Windows with no
// admissions left are dropped at most once per window length.
type clientWindows struct {
	requests int
	window   time.Duration

	mu        sync.Mutex
	clients   map[string]*ratelimit.Window
	lastSweep time.Time
}

func newClientWindows(requests int, window time.Duration) *clientWindows {
	return &clientWindows{
		requests:  requests,
		window:    window,
		clients:   make(map[string]*ratelimit.Window),
		lastSweep: time.Now(),
	}
}

func (c *clientWindows) get(client string) *ratelimit.Window {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now := time.Now(); now.Sub(c.lastSweep) >= c.window {
		for k, w := range c.clients {
			if w.Idle() {
				delete(c.clients, k)
			}
		}
		c.lastSweep = now
	}

	w, ok := c.clients[client]
	if !ok {
		w = ratelimit.New(c.requests, c.window)
		c.clients[client] = w
	}
	return w
}

func (c *clientWindows) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

// clientAddr strips the port from RemoteAddr. chi's RealIP runs first in the
// ops router, so proxied requests are keyed on the forwarded address.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware admits at most requestsPerWindow requests per client in
// any trailing window. Rejected requests get 429 with Retry-After set to the
// seconds until the client's oldest admission expires.
func RateLimitMiddleware(requestsPerWindow int, window time.Duration) func(http.Handler) http.Handler {
	clients := newClientWindows(requestsPerWindow, window)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := clients.get(clientAddr(r)).Allow()
			if !ok {
				secs := max(int(math.Ceil(wait.Seconds())), 1)
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				respond.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

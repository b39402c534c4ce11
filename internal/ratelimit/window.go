// Package ratelimit provides sliding-window admission control for outbound
// requests.
//
// Unlike a token bucket, a Window guarantees that no trailing slice of
// length Window ever contains more than MaxRequests admissions. Workers share
// one Window per scrape run.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// safetyMargin is added to every computed sleep so the oldest admission has
// strictly left the window when the caller wakes up.
const safetyMargin = 100 * time.Millisecond

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Window is a thread-safe sliding-window rate limiter.
type Window struct {
	maxRequests int
	window      time.Duration
	clock       Clock

	mu       sync.Mutex
	requests []time.Time // admission times, oldest first
}

// Option configures a Window.
type Option func(*Window)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(w *Window) { w.clock = c }
}

// New creates a Window admitting at most maxRequests per window.
// maxRequests < 1 is treated as 1.
func New(maxRequests int, window time.Duration, opts ...Option) *Window {
	if maxRequests < 1 {
		maxRequests = 1
	}
	w := &Window{
		maxRequests: maxRequests,
		window:      window,
		clock:       realClock{},
		requests:    make([]time.Time, 0, maxRequests),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Admit blocks until one more request fits in the window, then records it.
// The whole prune/wait/append sequence holds the lock, so callers queue in
// arrival order and the cap can never be exceeded. If ctx is cancelled while
// waiting, no admission is recorded.
func (w *Window) Admit(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)

	for len(w.requests) >= w.maxRequests {
		wait := w.window - now.Sub(w.requests[0]) + safetyMargin
		if wait > 0 {
			if err := w.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
		now = w.clock.Now()
		w.prune(now)
	}

	w.requests = append(w.requests, now)
	return nil
}

// Allow records an admission if one fits right now. Otherwise it records
// nothing and reports how long until the oldest admission leaves the window.
func (w *Window) Allow() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)
	if len(w.requests) >= w.maxRequests {
		return false, w.window - now.Sub(w.requests[0])
	}
	w.requests = append(w.requests, now)
	return true, 0
}

// Idle reports whether the window holds no admissions.
func (w *Window) Idle() bool { return w.InFlight() == 0 }

// InFlight returns the number of admissions inside the current window.
func (w *Window) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.clock.Now())
	return len(w.requests)
}

// prune drops admissions older than the window. Caller holds mu.
func (w *Window) prune(now time.Time) {
	cut := 0
	for cut < len(w.requests) && now.Sub(w.requests[cut]) >= w.window {
		cut++
	}
	if cut > 0 {
		w.requests = append(w.requests[:0], w.requests[cut:]...)
	}
}

package ratelimit

import (
	"sync"
	"time"
)

const (
	DefaultMaxRequests = 10
	DefaultWindow      = 60 * time.Second
)

// Limiter is a sliding-window request limiter keyed by client identifier.
// It is per-process state: under a multi-instance deployment each instance
// enforces its own window, which degrades the global limit to
// instances*MaxRequests. Denial is always explicit and synchronous.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	max     int
	window  time.Duration
}

// New creates a limiter. Non-positive arguments fall back to the defaults
// (10 requests per 60s).
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		windows: make(map[string][]time.Time),
		max:     max,
		window:  window,
	}
}

// Admit reports whether a request from identifier at time now is allowed.
// Timestamps older than now-window are pruned first; when admitted, now is
// recorded against the identifier.
func (l *Limiter) Admit(identifier string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.windows[identifier][:0]
	for _, ts := range l.windows[identifier] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.windows[identifier] = kept
		return false
	}

	l.windows[identifier] = append(kept, now)
	return true
}

// Reset drops all recorded windows.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string][]time.Time)
}

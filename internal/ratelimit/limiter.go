// Package ratelimit provides a per-client sliding-window request limiter.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// WindowLimiter counts requests per string key over a fixed sliding window
// and periodically evicts keys that have gone idle. It is a coarse abuse
// guard: state is process-local and resets on restart.
type WindowLimiter struct {
	window  time.Duration
	max     int
	idleTTL time.Duration

	mu    sync.Mutex
	byKey map[string][]time.Time
	hits  uint64
}

// New creates a limiter allowing max requests per key within window;
// returns nil if args are invalid.
func New(window time.Duration, max int, idleTTL time.Duration) *WindowLimiter {
	if window <= 0 || max <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	if idleTTL < window {
		idleTTL = window
	}
	return &WindowLimiter{
		window:  window,
		max:     max,
		idleTTL: idleTTL,
		byKey:   make(map[string][]time.Time),
	}
}

// Allow reports whether a request for key may proceed at now, recording it
// when accepted. A nil limiter or empty key always allows.
func (l *WindowLimiter) Allow(key string, now time.Time) bool {
	if l == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	recent := l.byKey[key][:0]
	for _, ts := range l.byKey[key] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}

	allowed := len(recent) < l.max
	if allowed {
		recent = append(recent, now)
	}
	if len(recent) == 0 {
		delete(l.byKey, key)
	} else {
		l.byKey[key] = recent
	}

	l.hits++
	if l.hits%512 == 0 {
		l.sweep(now)
	}

	return allowed
}

// sweep drops keys whose newest entry is older than the idle TTL.
// Caller holds the mutex.
func (l *WindowLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.idleTTL)
	for k, entries := range l.byKey {
		if len(entries) == 0 || entries[len(entries)-1].Before(cutoff) {
			delete(l.byKey, k)
		}
	}
}

package handlers

import (
	"strings"
	"sync"
	"time"
)

type rateLimiter interface {
	Allow(key string) bool
}

// fixedWindowLimiter counts order submissions per user inside a fixed
// window. Quotas protect the gateway call in order creation, so per-instance
// counting is enough and no shared store is involved.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]submissionWindow
}

type submissionWindow struct {
	count     int
	expiresAt time.Time
}

func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]submissionWindow),
	}
}

func (l *fixedWindowLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}

	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || now.After(current.expiresAt) {
		l.evictExpired(now)
		l.windows[key] = submissionWindow{count: 1, expiresAt: now.Add(l.window)}
		return true
	}
	if current.count >= l.limit {
		return false
	}
	current.count++
	l.windows[key] = current
	return true
}

// evictExpired runs under l.mu whenever a fresh window opens, which bounds
// the map to users active within the last window.
func (l *fixedWindowLimiter) evictExpired(now time.Time) {
	for key, w := range l.windows {
		if now.After(w.expiresAt) {
			delete(l.windows, key)
		}
	}
}

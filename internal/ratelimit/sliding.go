package ratelimit

import (
	"sync"
	"time"
)

// override is a per-key SetLimit record.
type override struct {
	limit  int
	window time.Duration
}

// SlidingWindowLimiter is an in-memory sliding-window-log limiter: each
// key keeps the timestamps of its recent successful calls and Allow trims
// everything older than `now - window` before counting. O(window-size)
// per call, fine for the per-process default use described in §4.2.
//
// This cannot fail (no network backend), so it never takes the fail-open
// path — that behavior belongs to the Redis-backed variant (redis.go).
type SlidingWindowLimiter struct {
	mu        sync.Mutex
	log       map[string][]time.Time
	overrides map[string]override
	now       func() time.Time
}

// NewSlidingWindowLimiter constructs a limiter using the given clock (time.Now
// in production; injectable for deterministic tests).
func NewSlidingWindowLimiter(now func() time.Time) *SlidingWindowLimiter {
	if now == nil {
		now = time.Now
	}
	return &SlidingWindowLimiter{
		log:       make(map[string][]time.Time),
		overrides: make(map[string]override),
		now:       now,
	}
}

func (l *SlidingWindowLimiter) effective(key string, limit int, window time.Duration) (int, time.Duration) {
	if o, ok := l.overrides[key]; ok {
		return o.limit, o.window
	}
	return limit, window
}

func (l *SlidingWindowLimiter) trim(key string, window time.Duration, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	entries := l.log[key]
	i := 0
	for i < len(entries) && entries[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		entries = entries[i:]
	}
	l.log[key] = entries
	return entries
}

func (l *SlidingWindowLimiter) Allow(key string, limit int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limit, window = l.effective(key, limit, window)
	entries := l.trim(key, window, now)

	if len(entries) >= limit {
		resetAt := entries[0].Add(window)
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	entries = append(entries, now)
	l.log[key] = entries
	remaining := limit - len(entries)
	resetAt := now.Add(window)
	if len(entries) > 0 {
		resetAt = entries[0].Add(window)
	}
	return Decision{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}

func (l *SlidingWindowLimiter) Info(key string, limit int, window time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	limit, window = l.effective(key, limit, window)
	entries := l.trim(key, window, now)
	remaining := limit - len(entries)
	if remaining < 0 {
		remaining = 0
	}
	resetAt := now.Add(window)
	if len(entries) > 0 {
		resetAt = entries[0].Add(window)
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining, ResetAt: resetAt}, nil
}

func (l *SlidingWindowLimiter) Reset(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.log, key)
	return nil
}

func (l *SlidingWindowLimiter) SetLimit(key string, limit int, window time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key] = override{limit: limit, window: window}
	return nil
}

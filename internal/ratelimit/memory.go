package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepThreshold is the store size above which expired entries are purged
const DefaultSweepThreshold = 10000

type entry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps fixed-window counters in process. Counts are not
// shared between instances.
type MemoryLimiter struct {
	mu             sync.Mutex
	entries        map[string]*entry
	now            Clock
	sweepThreshold int
}

// MemoryOption configures a MemoryLimiter
type MemoryOption func(*MemoryLimiter)

// WithClock replaces time.Now
func WithClock(clock Clock) MemoryOption {
	return func(l *MemoryLimiter) { l.now = clock }
}

// WithSweepThreshold sets the store size that triggers a sweep
func WithSweepThreshold(n int) MemoryOption {
	return func(l *MemoryLimiter) {
		if n > 0 {
			l.sweepThreshold = n
		}
	}
}

func NewMemoryLimiter(opts ...MemoryOption) *MemoryLimiter {
	l := &MemoryLimiter{
		entries:        make(map[string]*entry),
		now:            time.Now,
		sweepThreshold: DefaultSweepThreshold,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check never returns an error; the signature matches Limiter.
//
// The first request of a window, or the first after it expired, starts a
// new window with count 1. Later requests are rejected once count reaches
// max and otherwise increment it.
func (l *MemoryLimiter) Check(_ context.Context, key string, max int, window time.Duration) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]

	// !Before so the boundary instant opens a new window
	if !ok || !now.Before(e.resetAt) {
		if len(l.entries) >= l.sweepThreshold {
			l.sweep(now)
		}
		e = &entry{count: 1, resetAt: now.Add(window)}
		l.entries[key] = e
		return Result{Allowed: true, Limit: max, Remaining: remaining(max, e.count), ResetAt: e.resetAt}, nil
	}

	if e.count >= max {
		return Result{Allowed: false, Limit: max, Remaining: 0, ResetAt: e.resetAt}, nil
	}

	e.count++
	return Result{Allowed: true, Limit: max, Remaining: remaining(max, e.count), ResetAt: e.resetAt}, nil
}

// Len reports the number of tracked keys, expired or not
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sweep drops every expired window and reports how many went
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweep(l.now())
}

// sweep must be called with l.mu held
func (l *MemoryLimiter) sweep(now time.Time) int {
	removed := 0
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
			removed++
		}
	}
	return removed
}

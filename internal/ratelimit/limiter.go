// Package ratelimit implements fixed-window request counters keyed by
// client address or user, in process or shared through Redis.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result describes one limiter decision
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets, at least 1
func (r Result) RetryAfter(now time.Time) int {
	secs := int(math.Ceil(r.ResetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter counts a request against key and reports whether it may proceed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	Check(ctx context.Context, key string, max int, window time.Duration) (Result, error)
}

// Clock returns the current time; tests substitute a fixed one
type Clock func() time.Time

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}

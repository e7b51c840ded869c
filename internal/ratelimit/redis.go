package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/toiletmap/toiletmap-api/internal/metrics"
)

const keyPrefix = "ratelimit:"

// RedisLimiter shares fixed-window counters across instances through Redis.
// A Redis failure never rejects a request: it is answered by the fallback
// limiter when one is set, otherwise allowed.
type RedisLimiter struct {
	client   redis.UniversalClient
	fallback Limiter
	logger   *slog.Logger
	now      Clock
}

func NewRedisLimiter(client redis.UniversalClient, fallback Limiter, logger *slog.Logger) *RedisLimiter {
	return &RedisLimiter{
		client:   client,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// NewRedisClient parses a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (l *RedisLimiter) Check(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	res, err := l.check(ctx, keyPrefix+key, max, window)
	if err == nil {
		return res, nil
	}

	metrics.RecordUpstreamFailure("redis", "rate_limit")
	l.logger.Warn("redis rate limit check failed",
		slog.String("key", key),
		slog.Bool("fallback", l.fallback != nil),
		slog.Any("error", err),
	)

	if l.fallback != nil {
		return l.fallback.Check(ctx, key, max, window)
	}
	return Result{Allowed: true, Limit: max, Remaining: max, ResetAt: l.now().Add(window)}, nil
}

func (l *RedisLimiter) check(ctx context.Context, key string, max int, window time.Duration) (Result, error) {
	var incr *redis.IntCmd
	var pttl *redis.DurationCmd

	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pttl = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	count := int(incr.Val())
	ttl := pttl.Val()

	// First hit of the window, or a key left without expiry by a crash
	// between INCR and PEXPIRE
	if count == 1 || ttl < 0 {
		if err := l.client.PExpire(ctx, key, window).Err(); err != nil {
			return Result{}, err
		}
		ttl = window
	}

	resetAt := l.now().Add(ttl)
	return Result{
		Allowed:   count <= max,
		Limit:     max,
		Remaining: remaining(max, count),
		ResetAt:   resetAt,
	}, nil
}

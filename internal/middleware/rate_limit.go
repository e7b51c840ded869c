package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/metrics"
	"github.com/toiletmap/toiletmap-api/internal/ratelimit"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

// Class names a traffic class with its own budget
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
	ClassAdmin Class = "admin"
	ClassAuth  Class = "auth"
)

// Budget is the number of requests a key may make per window
type Budget struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig holds one budget per traffic class
type RateLimitConfig struct {
	Read  Budget
	Write Budget
	Admin Budget
	Auth  Budget
}

// DefaultRateLimitConfig returns the production budgets
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Read:  Budget{Max: 100, Window: time.Minute},
		Write: Budget{Max: 30, Window: time.Minute},
		Admin: Budget{Max: 60, Window: time.Minute},
		Auth:  Budget{Max: 10, Window: time.Minute},
	}
}

func (c RateLimitConfig) budget(class Class) Budget {
	switch class {
	case ClassWrite:
		return c.Write
	case ClassAdmin:
		return c.Admin
	case ClassAuth:
		return c.Auth
	default:
		return c.Read
	}
}

// RateLimiter applies per-class budgets through a ratelimit.Limiter
type RateLimiter struct {
	limiter  ratelimit.Limiter
	config   RateLimitConfig
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewRateLimiter(limiter ratelimit.Limiter, config RateLimitConfig, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter:  limiter,
		config:   config,
		ipConfig: ipConfig,
		logger:   logger,
		now:      time.Now,
	}
}

// Limit returns middleware that counts requests against class's budget.
// Write and admin traffic is keyed by user when the request is
// authenticated, so it must run after auth resolution.
func (rl *RateLimiter) Limit(class Class) func(http.Handler) http.Handler {
	budget := rl.config.budget(class)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.key(class, r)

			result, err := rl.limiter.Check(r.Context(), key, budget.Max, budget.Window)
			if err != nil {
				rl.logger.Warn("rate limiter unavailable, allowing request",
					slog.String("class", string(class)),
					slog.Any("error", err),
				)
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordRateLimit(string(class), result.Allowed)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				pkghttp.WriteTooManyRequests(w, result.RetryAfter(rl.now()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// key is "<class>:user:<sub>" for authenticated write/admin traffic and
// "<class>:ip:<addr>" otherwise
func (rl *RateLimiter) key(class Class, r *http.Request) string {
	if class == ClassWrite || class == ClassAdmin {
		if user := auth.GetUserFromContext(r); user != nil && user.Sub != "" {
			return string(class) + ":user:" + user.Sub
		}
	}
	return string(class) + ":ip:" + pkghttp.ExtractClientIP(r, rl.ipConfig)
}

// FloodGuard is a coarse per-IP limit in front of the router
func FloodGuard(requestsPerMinute int, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, 60)
		}),
	)
}

package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toiletmap/toiletmap-api/internal/auth"
	"github.com/toiletmap/toiletmap-api/internal/models"
	"github.com/toiletmap/toiletmap-api/internal/ratelimit"
	pkghttp "github.com/toiletmap/toiletmap-api/pkg/http"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestRateLimiter(cfg RateLimitConfig) *RateLimiter {
	clock := func() time.Time { return fixedNow }
	rl := NewRateLimiter(ratelimit.NewMemoryLimiter(ratelimit.WithClock(clock)), cfg, nil, discardLogger())
	rl.now = clock
	return rl
}

func withUser(r *http.Request, sub string) *http.Request {
	result := &models.AuthResult{
		User:   &models.RequestUser{Sub: sub},
		Source: models.SourceAuthorizationHeader,
	}
	return r.WithContext(auth.WithAuthResult(r.Context(), result))
}

func TestRateLimiter_EnforcesBudget(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Read = Budget{Max: 3, Window: time.Minute}
	handler := newTestRateLimiter(cfg).Limit(ClassRead)(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/loos/search", nil)
		req.RemoteAddr = "192.168.1.1:8080"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(2-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/loos/search", nil)
	req.RemoteAddr = "192.168.1.1:8080"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, strconv.FormatInt(fixedNow.Add(time.Minute).Unix(), 10), w.Header().Get("X-RateLimit-Reset"))
	assert.JSONEq(t, `{"message":"Too many requests","retryAfter":60}`, w.Body.String())
}

func TestRateLimiter_SeparateKeysPerIP(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Read = Budget{Max: 1, Window: time.Minute}
	handler := newTestRateLimiter(cfg).Limit(ClassRead)(okHandler())

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, addr)
	}
}

func TestRateLimiter_ClassesHaveIndependentBudgets(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	cfg.Read = Budget{Max: 1, Window: time.Minute}
	cfg.Auth = Budget{Max: 1, Window: time.Minute}
	rl := newTestRateLimiter(cfg)

	for _, class := range []Class{ClassRead, ClassAuth} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1"
		w := httptest.NewRecorder()
		rl.Limit(class)(okHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, string(class))
	}
}

func TestRateLimiter_Key(t *testing.T) {
	rl := newTestRateLimiter(DefaultRateLimitConfig())

	anon := httptest.NewRequest(http.MethodPost, "/api/loos", nil)
	anon.RemoteAddr = "203.0.113.7:5000"
	signedIn := withUser(anon, "auth0|42")

	tests := []struct {
		name  string
		class Class
		req   *http.Request
		want  string
	}{
		{"read ignores user", ClassRead, signedIn, "read:ip:203.0.113.7"},
		{"auth ignores user", ClassAuth, signedIn, "auth:ip:203.0.113.7"},
		{"write keyed by user", ClassWrite, signedIn, "write:user:auth0|42"},
		{"admin keyed by user", ClassAdmin, signedIn, "admin:user:auth0|42"},
		{"write falls back to ip", ClassWrite, anon, "write:ip:203.0.113.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rl.key(tt.class, tt.req))
		})
	}
}

func TestRateLimiter_KeyUsesTrustedProxyHeader(t *testing.T) {
	rl := newTestRateLimiter(DefaultRateLimitConfig())
	rl.ipConfig = pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.1.2.3")

	assert.Equal(t, "read:ip:198.51.100.9", rl.key(ClassRead, req))
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (ratelimit.Result, error) {
	return ratelimit.Result{}, errors.New("boom")
}

func TestRateLimiter_FailsOpenOnLimiterError(t *testing.T) {
	rl := NewRateLimiter(failingLimiter{}, DefaultRateLimitConfig(), nil, discardLogger())

	w := httptest.NewRecorder()
	rl.Limit(ClassWrite)(okHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestFloodGuard(t *testing.T) {
	handler := FloodGuard(2, nil)(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

// Package metrics provides Prometheus metrics for the loo API.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "toiletmap"

var (
	// HTTPRequestsTotal counts requests by route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration measures handler latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthResolutionsTotal counts resolver outcomes by credential source.
	AuthResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_resolutions_total",
			Help:      "Total number of request authentications by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// RateLimitDecisionsTotal counts limiter decisions per traffic class.
	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Total number of rate limit decisions",
		},
		[]string{"class", "decision"},
	)

	// UpstreamFailuresTotal counts failed calls to Auth0, Redis and friends.
	UpstreamFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Total number of failed upstream calls",
		},
		[]string{"upstream", "operation"},
	)

	// PermissionCacheTotal counts admin permission cache lookups.
	PermissionCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_cache_total",
			Help:      "Admin permission cache lookups by result",
		},
		[]string{"result"},
	)
)

// RecordRequest records a completed HTTP request.
func RecordRequest(method, route string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuth records how a request was (or was not) authenticated.
func RecordAuth(source, outcome string) {
	AuthResolutionsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordRateLimit records an allow or reject decision.
func RecordRateLimit(class string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}
	RateLimitDecisionsTotal.WithLabelValues(class, decision).Inc()
}

// RecordUpstreamFailure records a failed call to an external dependency.
func RecordUpstreamFailure(upstream, operation string) {
	UpstreamFailuresTotal.WithLabelValues(upstream, operation).Inc()
}

// RecordPermissionCache records a hit, miss or eviction.
func RecordPermissionCache(result string) {
	PermissionCacheTotal.WithLabelValues(result).Inc()
}

// PoolStats is the subset of *pgxpool.Stat exported as gauges
type PoolStats interface {
	TotalConns() int32
	IdleConns() int32
	AcquiredConns() int32
}

// RegisterPoolStats exposes database pool usage, sampled at scrape time.
func RegisterPoolStats(reg prometheus.Registerer, stats func() PoolStats) error {
	gauges := map[string]func(PoolStats) int32{
		"db_pool_total_conns":    PoolStats.TotalConns,
		"db_pool_idle_conns":     PoolStats.IdleConns,
		"db_pool_acquired_conns": PoolStats.AcquiredConns,
	}
	for name, read := range gauges {
		err := reg.Register(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      name,
				Help:      "Database connection pool " + name[len("db_pool_"):],
			},
			func() float64 { return float64(read(stats())) },
		))
		if err != nil {
			return err
		}
	}
	return nil
}

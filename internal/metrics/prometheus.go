// Package metrics defines the Prometheus metrics for the dashboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestErrors   *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Refresh engine metrics
	RefreshesTotal    *prometheus.CounterVec
	RefreshDuration   *prometheus.HistogramVec
	PagesFetchedTotal *prometheus.CounterVec
	RateLimitRetries  *prometheus.CounterVec
	FallbacksTotal    *prometheus.CounterVec

	// Snapshot store metrics
	SnapshotReadFailures  *prometheus.CounterVec
	SnapshotWriteFailures *prometheus.CounterVec
}

var globalMetrics *Metrics

// NewMetrics creates and registers Prometheus metrics. Registration with the
// default registry happens once per process; later calls return the same
// instance.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_requests_total",
				Help: "Total number of dashboard requests processed",
			},
			[]string{"kind", "source"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_request_duration_seconds",
				Help:    "Duration of dashboard request processing",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		RequestErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_request_errors_total",
				Help: "Total number of dashboard request errors",
			},
			[]string{"error_code"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		RefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_refreshes_total",
				Help: "Total number of tenant refresh attempts",
			},
			[]string{"kind", "mode", "status"},
		),

		RefreshDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dashboard_refresh_duration_seconds",
				Help:    "Duration of tenant refresh operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "mode"},
		),

		PagesFetchedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_pages_fetched_total",
				Help: "Total number of remote pages fetched",
			},
			[]string{"kind"},
		),

		RateLimitRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_rate_limit_retries_total",
				Help: "Total number of rate-limit retry sleeps",
			},
			[]string{"kind"},
		),

		FallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_fallbacks_total",
				Help: "Total number of tenants served from stale or empty fallbacks",
			},
			[]string{"kind", "reason"},
		),

		SnapshotReadFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_snapshot_read_failures_total",
				Help: "Total number of snapshot reads treated as absent",
			},
			[]string{"backend"},
		),

		SnapshotWriteFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dashboard_snapshot_write_failures_total",
				Help: "Total number of failed snapshot writes",
			},
			[]string{"backend"},
		),
	}
	return globalMetrics
}

// RecordRequest records a completed dashboard request.
func (m *Metrics) RecordRequest(kind, source string, duration float64) {
	m.RequestsTotal.WithLabelValues(kind, source).Inc()
	m.RequestDuration.WithLabelValues(kind).Observe(duration)
}

// RecordError records a request rejected with the given error code.
func (m *Metrics) RecordError(errorCode string) {
	m.RequestErrors.WithLabelValues(errorCode).Inc()
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordRefresh records a tenant refresh attempt.
func (m *Metrics) RecordRefresh(kind, mode, status string, duration float64) {
	m.RefreshesTotal.WithLabelValues(kind, mode, status).Inc()
	m.RefreshDuration.WithLabelValues(kind, mode).Observe(duration)
}

// RecordRateLimitRetry records one backoff sleep taken after a 429.
func (m *Metrics) RecordRateLimitRetry(kind string) {
	m.RateLimitRetries.WithLabelValues(kind).Inc()
}

// RecordPagesFetched records remote pages fetched during a refresh.
func (m *Metrics) RecordPagesFetched(kind string, pages int) {
	m.PagesFetchedTotal.WithLabelValues(kind).Add(float64(pages))
}

// RecordFallback records a tenant served from a stale or empty fallback.
func (m *Metrics) RecordFallback(kind, reason string) {
	m.FallbacksTotal.WithLabelValues(kind, reason).Inc()
}

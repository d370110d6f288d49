package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the gabelle service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Recorder (usage ingestion) metrics.
	RecorderBufferSize    prometheus.Gauge
	RecorderFlushesTotal  *prometheus.CounterVec
	RecorderFlushDuration prometheus.Histogram
	RecorderRecordsTotal  prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Rate limiting metrics.
	RateLimitRejectionsTotal *prometheus.CounterVec

	// Response cache metrics.
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gabelle_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		RecorderBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_recorder_buffer_size",
			Help: "Current number of buffered usage records.",
		}),

		RecorderFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_recorder_flushes_total",
			Help: "Total number of recorder flushes.",
		}, []string{"status"}),

		RecorderFlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gabelle_recorder_flush_duration_seconds",
			Help:    "Duration of recorder flush operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		RecorderRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_recorder_records_total",
			Help: "Total number of usage records recorded.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gabelle_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"scope"}),

		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_cache_hits_total",
			Help: "Total number of analytics response cache hits.",
		}),

		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gabelle_cache_misses_total",
			Help: "Total number of analytics response cache misses.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gabelle_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RecorderBufferSize,
		m.RecorderFlushesTotal,
		m.RecorderFlushDuration,
		m.RecorderRecordsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.RateLimitRejectionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, fmt.Sprintf("%d", statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(scope string) {
	m.RateLimitRejectionsTotal.WithLabelValues(scope).Inc()
}

// ObserveCacheLookup counts one response cache lookup.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

// SetBufferSize implements usage.FlushObserver.
func (m *Metrics) SetBufferSize(n int) {
	m.RecorderBufferSize.Set(float64(n))
}

// ObserveFlush implements usage.FlushObserver.
func (m *Metrics) ObserveFlush(count int, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RecorderFlushesTotal.WithLabelValues(status).Inc()
	m.RecorderFlushDuration.Observe(d.Seconds())
}

// IncRecorded implements usage.FlushObserver.
func (m *Metrics) IncRecorded() {
	m.RecorderRecordsTotal.Inc()
}

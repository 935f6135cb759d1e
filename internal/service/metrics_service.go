package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	admissions       *prometheus.CounterVec
	cascadeRewrites  *prometheus.CounterVec
	cascadeDuration  *prometheus.HistogramVec
	lockTimeouts     prometheus.Counter
	invalidationLost prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	admissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_admissions_total",
		Help: "Admission decisions by outcome",
	}, []string{"outcome"})

	cascadeRewrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "quota_cascade_rewrites_total",
		Help: "Sibling status rewrites performed by cascades",
	}, []string{"trigger"})

	cascadeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quota_unit_of_work_seconds",
		Help:    "Duration of pair-locked units of work",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	lockTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "quota_lock_timeouts_total",
		Help: "Units of work aborted because the pair lock was not acquired in time",
	})

	invalidationLost := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hours_invalidation_failures_total",
		Help: "Hours cache invalidations that could not be delivered",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		admissions, cascadeRewrites, cascadeDuration, lockTimeouts, invalidationLost, goroutines)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		cacheLatency:     cacheLatency,
		cacheWrite:       cacheWrite,
		cacheLookups:     cacheLookups,
		admissions:       admissions,
		cascadeRewrites:  cascadeRewrites,
		cascadeDuration:  cascadeDuration,
		lockTimeouts:     lockTimeouts,
		invalidationLost: invalidationLost,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAdmission counts an admission by outcome: the resolved status on
// success, the error code otherwise.
func (m *MetricsService) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

// RecordCascade counts sibling rewrites and the unit of work duration.
func (m *MetricsService) RecordCascade(trigger string, rewrites int, duration time.Duration) {
	if m == nil {
		return
	}
	m.cascadeRewrites.WithLabelValues(trigger).Add(float64(rewrites))
	m.cascadeDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// RecordLockTimeout counts a pair lock timeout.
func (m *MetricsService) RecordLockTimeout() {
	if m == nil {
		return
	}
	m.lockTimeouts.Inc()
}

// RecordInvalidationFailure counts an invalidation that was dropped or failed.
func (m *MetricsService) RecordInvalidationFailure() {
	if m == nil {
		return
	}
	m.invalidationLost.Inc()
}

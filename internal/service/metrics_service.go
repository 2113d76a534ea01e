package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/rewear-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry          *prometheus.Registry
	handler           http.Handler
	requestDuration   *prometheus.HistogramVec
	requestTotal      *prometheus.CounterVec
	cacheLatency      prometheus.Observer
	cacheWrite        prometheus.Observer
	cacheHitRatio     prometheus.Gauge
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	dbQueryDuration   *prometheus.HistogramVec
	swapRequests      *prometheus.CounterVec
	swapTransitions   *prometheus.CounterVec
	pointsTransferred prometheus.Counter
	notifications     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	pointsTotal          uint64
	completedSwaps       uint64
}

// NewMetricsService registers core Prometheus collectors.
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
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database units of work",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	swapRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewear_swap_requests_total",
		Help: "Swap requests created, by mode",
	}, []string{"mode"})

	swapTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewear_swap_transitions_total",
		Help: "Swap request status transitions, by target status",
	}, []string{"to"})

	pointsTransferred := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rewear_points_transferred_total",
		Help: "Points moved between members by completed redemptions",
	})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rewear_notifications_total",
		Help: "Notification events by type and outcome",
	}, []string{"type", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, swapRequests, swapTransitions, pointsTransferred, notifications, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:          registry,
		handler:           handler,
		requestDuration:   requestDuration,
		requestTotal:      requestTotal,
		cacheLatency:      cacheLatency,
		cacheWrite:        cacheWrite,
		cacheHitRatio:     cacheHitRatio,
		cacheHits:         cacheHits,
		cacheMisses:       cacheMisses,
		dbQueryDuration:   dbQueryDuration,
		swapRequests:      swapRequests,
		swapTransitions:   swapTransitions,
		pointsTransferred: pointsTransferred,
		notifications:     notifications,
	}
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

// Registry exposes the underlying registry, mostly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records the duration of a labelled database unit of work.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordSwapRequest counts a newly created swap request.
func (m *MetricsService) RecordSwapRequest(mode models.SwapMode) {
	if m == nil {
		return
	}
	m.swapRequests.WithLabelValues(string(mode)).Inc()
}

// RecordSwapTransition counts a committed status change and any points it moved.
func (m *MetricsService) RecordSwapTransition(to models.SwapStatus, points int) {
	if m == nil {
		return
	}
	m.swapTransitions.WithLabelValues(string(to)).Inc()
	if to == models.SwapStatusCompleted {
		atomic.AddUint64(&m.completedSwaps, 1)
	}
	if points > 0 {
		m.pointsTransferred.Add(float64(points))
		atomic.AddUint64(&m.pointsTotal, uint64(points))
	}
}

// RecordNotification counts a notification delivery outcome.
func (m *MetricsService) RecordNotification(eventType models.EventType, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(eventType), outcome).Inc()
}

// Snapshot returns process-local aggregates for the admin stats endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if total := hits + misses; total > 0 {
		cacheRatio = float64(hits) / float64(total)
	}

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		CacheHitRatio:            cacheRatio,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		SwapsCompleted:           atomic.LoadUint64(&m.completedSwaps),
		PointsTransferred:        atomic.LoadUint64(&m.pointsTotal),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}

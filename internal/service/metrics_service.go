package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-curriculum-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the approval workflow.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	eventsAppended  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	appendConflicts prometheus.Counter
	dispatches      *prometheus.CounterVec
	generation      *prometheus.HistogramVec

	cacheHitCount  uint64
	cacheMissCount uint64
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

	eventsAppended := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_events_appended_total",
		Help: "Approval ledger events appended",
	}, []string{"kind", "action"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_status_transitions_total",
		Help: "Status changes produced by appended events",
	}, []string{"kind", "from", "to"})

	appendConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_append_conflicts_total",
		Help: "Appends rejected because of a stale event token",
	})

	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "approval_dispatch_total",
		Help: "Side-effect dispatch outcomes",
	}, []string{"reaction", "outcome"})

	generation := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "generation_request_duration_seconds",
		Help:    "Latency of calls to the generation service",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40},
	}, []string{"operation", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		eventsAppended, transitions, appendConflicts, dispatches, generation, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		eventsAppended:  eventsAppended,
		transitions:     transitions,
		appendConflicts: appendConflicts,
		dispatches:      dispatches,
		generation:      generation,
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
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

// RecordAppend counts a ledger append and, when the projection changed, the transition.
func (m *MetricsService) RecordAppend(kind models.ItemKind, action models.ApprovalAction, from, to models.ApprovalStatus) {
	if m == nil {
		return
	}
	m.eventsAppended.WithLabelValues(string(kind), string(action)).Inc()
	if from != to {
		m.transitions.WithLabelValues(string(kind), string(from), string(to)).Inc()
	}
}

// RecordAppendConflict counts optimistic concurrency rejections.
func (m *MetricsService) RecordAppendConflict() {
	if m == nil {
		return
	}
	m.appendConflicts.Inc()
}

// RecordDispatch counts dispatcher outcomes (fired, duplicate, failed, skipped).
func (m *MetricsService) RecordDispatch(reaction, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(reaction, outcome).Inc()
}

// ObserveGeneration records latency of an external generation call.
func (m *MetricsService) ObserveGeneration(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.generation.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

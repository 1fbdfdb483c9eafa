package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP layer and the scheduling engine.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	transitions     *prometheus.CounterVec
	enrollments     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	eventsDelivered *prometheus.CounterVec
	cascadeFailures prometheus.Counter
	eventsAbandoned *prometheus.CounterVec
	sweepFailures   prometheus.Counter
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
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_transitions_total",
		Help: "Session status transitions by origin",
	}, []string{"from", "to", "source"})

	enrollments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_transitions_total",
		Help: "Enrollment status changes",
	}, []string{"status"})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduling_rejections_total",
		Help: "Requests rejected by conflict, capacity or state checks",
	}, []string{"code"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "status_sweep_duration_seconds",
		Help:    "Duration of status sweeper runs",
		Buckets: prometheus.DefBuckets,
	})

	eventsDelivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_delivered_total",
		Help: "Event deliveries by sink and result",
	}, []string{"type", "sink", "result"})

	cascadeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cascade_cancel_failures_total",
		Help: "Enrollment cancellations that failed during a session cascade",
	})

	eventsAbandoned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_abandoned_total",
		Help: "Events whose queued delivery gave up and were left to the outbox relay",
	}, []string{"type"})

	sweepFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "status_sweep_failures_total",
		Help: "Sessions the status sweeper failed to advance",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses, transitions, enrollments,
		rejections, sweepDuration, eventsDelivered, cascadeFailures, eventsAbandoned, sweepFailures, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		transitions:     transitions,
		enrollments:     enrollments,
		rejections:      rejections,
		sweepDuration:   sweepDuration,
		eventsDelivered: eventsDelivered,
		cascadeFailures: cascadeFailures,
		eventsAbandoned: eventsAbandoned,
		sweepFailures:   sweepFailures,
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

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RequestCounter exposes the request counter, mainly for tests.
func (m *MetricsService) RequestCounter() *prometheus.CounterVec {
	if m == nil {
		return nil
	}
	return m.requestTotal
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

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		return
	}
	m.cacheMisses.Inc()
}

// ObserveSessionTransition counts a session status change. source is "request" or "sweeper".
func (m *MetricsService) ObserveSessionTransition(from, to, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, source).Inc()
}

// ObserveEnrollment counts an enrollment entering status.
func (m *MetricsService) ObserveEnrollment(status string) {
	if m == nil {
		return
	}
	m.enrollments.WithLabelValues(status).Inc()
}

// ObserveRejection counts a domain rejection by error code.
func (m *MetricsService) ObserveRejection(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

// ObserveSweep records one sweeper run.
func (m *MetricsService) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// ObserveEventDelivery counts one event delivery attempt.
func (m *MetricsService) ObserveEventDelivery(eventType, sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsDelivered.WithLabelValues(eventType, sink, result).Inc()
}

// ObserveCascadeFailure counts a failed enrollment cancellation inside a cascade.
func (m *MetricsService) ObserveCascadeFailure() {
	if m == nil {
		return
	}
	m.cascadeFailures.Inc()
}

// ObserveEventAbandoned counts an event whose queued delivery exhausted its retries.
func (m *MetricsService) ObserveEventAbandoned(eventType string) {
	if m == nil {
		return
	}
	m.eventsAbandoned.WithLabelValues(eventType).Inc()
}

// ObserveSweepFailure counts a session the sweeper could not advance.
func (m *MetricsService) ObserveSweepFailure() {
	if m == nil {
		return
	}
	m.sweepFailures.Inc()
}

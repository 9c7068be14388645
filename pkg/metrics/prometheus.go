// Package metrics provides Prometheus metrics for the smile session client.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for detections.
const (
	OutcomeSmile   = "smile"
	OutcomeNoSmile = "no_smile"
	OutcomeFailed  = "failed"
	OutcomeInvalid = "invalid"
)

// Manager owns every collector registered by the client.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Session
	detections     *prometheus.CounterVec
	pointsAwarded  prometheus.Counter
	totalScore     prometheus.Gauge
	currentStreak  prometheus.Gauge
	ledgerSize     prometheus.Gauge
	captureState   *prometheus.GaugeVec
	duplicates     prometheus.Counter
	discardedLate  prometheus.Counter
	requestsIssued *prometheus.CounterVec

	// Detection capability
	detectionLatency prometheus.Histogram
	inFlight         prometheus.Gauge

	// Delivery queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueue     prometheus.Counter
	queueDequeue     prometheus.Counter
	queueErrors      *prometheus.CounterVec

	// Errors and export
	errorsByKind *prometheus.CounterVec
	exports      *prometheus.CounterVec

	// HTTP status surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPauseTime    prometheus.Gauge
}

var globalManager atomic.Pointer[Manager] //nolint:gochecknoglobals // singleton metrics manager

var customRegistry atomic.Pointer[prometheus.Registry] //nolint:gochecknoglobals // avoids default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	Configure()
}

// Configure rebuilds the global collectors with opts on a fresh registry.
// Call it at startup, before the registry is handed to an HTTP handler.
func Configure(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager.Store(NewManager(append([]Option{WithPrometheusRegistry(reg)}, opts...)...))
	customRegistry.Store(reg)
}

func current() *Manager { return globalManager.Load() }

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "smileboard",
		subsystem:        "session",
		histogramBuckets: []float64{25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.detections = m.counterVec("detections_total", "Detection outcomes applied to the session", "outcome")
	m.pointsAwarded = m.counter("points_awarded_total", "Points awarded by smiling detections")
	m.totalScore = m.gauge("total_score", "Current cumulative score")
	m.currentStreak = m.gauge("current_streak", "Current smile streak as reported upstream")
	m.ledgerSize = m.gauge("reward_ledger_size", "Number of entries held in the reward ledger")
	m.captureState = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "capture_state",
		Help: "1 for the current capture lifecycle state", ConstLabels: m.constLabels,
	}, []string{"state"})
	m.duplicates = m.counter("deliveries_duplicate_total", "Deliveries ignored because their request id was already applied")
	m.discardedLate = m.counter("deliveries_discarded_total", "Late deliveries discarded after stop")
	m.requestsIssued = m.counterVec("detection_requests_total", "Detection requests issued by source", "source")

	m.detectionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "detection_latency_milliseconds",
		Help: "Round trip latency of detection requests", Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	})
	m.inFlight = m.gauge("detection_in_flight", "Detection requests awaiting a result")

	m.queueSize = m.gauge("queue_size", "Deliveries waiting to be applied")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the delivery queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Delivery queue size / capacity")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Deliveries enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Deliveries dequeued")
	m.queueErrors = m.counterVec("queue_enqueue_errors_total", "Deliveries refused by the queue", "reason")

	m.errorsByKind = m.counterVec("errors_total", "Errors reported to the observer", "kind")
	m.exports = m.counterVec("exports_total", "Export attempts by result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Status surface requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "Status surface request duration", Buckets: prometheus.DefBuckets, ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.memoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated by the client")
	m.goroutineCount = m.gauge("system_goroutines", "Number of live goroutines")
	m.gcPauseTime = m.gauge("system_gc_pause_milliseconds", "Average GC pause time")
}

// Session metrics.

// RecordDetection counts one applied detection outcome.
func RecordDetection(outcome string) {
	current().detections.WithLabelValues(outcome).Inc()
}

// RecordPointsAwarded adds awarded points.
func RecordPointsAwarded(points int) {
	if points > 0 {
		current().pointsAwarded.Add(float64(points))
	}
}

// UpdateScore sets the score and streak gauges.
func UpdateScore(total, streak int) {
	current().totalScore.Set(float64(total))
	current().currentStreak.Set(float64(streak))
}

// UpdateLedgerSize sets the ledger size gauge.
func UpdateLedgerSize(n int) {
	current().ledgerSize.Set(float64(n))
}

// UpdateCaptureState marks state as the active capture state.
func UpdateCaptureState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		current().captureState.WithLabelValues(s).Set(v)
	}
}

// RecordDuplicateDelivery counts a delivery skipped by dedupe.
func RecordDuplicateDelivery() {
	current().duplicates.Inc()
}

// RecordDiscardedDelivery counts a late delivery dropped by policy.
func RecordDiscardedDelivery() {
	current().discardedLate.Inc()
}

// RecordRequestIssued counts an issued detection request.
func RecordRequestIssued(source string) {
	current().requestsIssued.WithLabelValues(source).Inc()
}

// Detection capability metrics.

// RecordDetectionLatency records a detection round trip in milliseconds.
func RecordDetectionLatency(latencyMs float64) {
	current().detectionLatency.Observe(latencyMs)
}

// UpdateInFlight sets the number of outstanding detection requests.
func UpdateInFlight(n int) {
	current().inFlight.Set(float64(n))
}

// Queue metrics.

// UpdateQueueSize sets the delivery queue size.
func UpdateQueueSize(size int) {
	current().queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the delivery queue capacity.
func UpdateQueueCapacity(capacity int) {
	current().queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the delivery queue utilization.
func UpdateQueueUtilization(utilization float64) {
	current().queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	current().queueEnqueue.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	current().queueDequeue.Inc()
}

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError(reason string) {
	current().queueErrors.WithLabelValues(reason).Inc()
}

// Error and export metrics.

// RecordError counts an error reported to the observer.
func RecordError(kind string) {
	current().errorsByKind.WithLabelValues(kind).Inc()
}

// RecordExport counts an export attempt; result is "ok" or "error".
func RecordExport(result string) {
	current().exports.WithLabelValues(result).Inc()
}

// HTTP metrics.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	current().httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	current().httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// System metrics.

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	current().memoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) {
	current().goroutineCount.Set(float64(n))
}

// RecordSystemGCPauseTime sets the average GC pause in milliseconds.
func RecordSystemGCPauseTime(ms float64) {
	current().gcPauseTime.Set(ms)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry.Load()
}

// Package metrics provides Prometheus metrics for the reelrank pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Aggregator
	samplesObserved    prometheus.Counter
	updatesEnqueued    *prometheus.CounterVec
	updatesDropped     *prometheus.CounterVec
	completionRequeued prometheus.Counter
	flushDuration      prometheus.Histogram
	flushedUpdates     prometheus.Counter
	pendingUpdates     prometheus.Gauge
	activeSessions     prometheus.Gauge
	sessionsExpired    prometheus.Counter

	// Scoring
	scoresComputed prometheus.Counter
	scoringErrors  prometheus.Counter
	similarityUsed *prometheus.CounterVec

	// Remote calls
	remoteAttempts  *prometheus.CounterVec
	remoteFailures  *prometheus.CounterVec
	remoteExhausted *prometheus.CounterVec

	// Feed
	pageLatency        prometheus.Histogram
	pageErrors         prometheus.Counter
	feedbackTotal      *prometheus.CounterVec
	feedbackDuplicates prometheus.Counter
	cacheInvalidations *prometheus.CounterVec

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served on /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "reelrank",
		subsystem:        "feed",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() {
	m.samplesObserved = m.counter("playback_samples_total", "Playback status samples observed")
	m.updatesEnqueued = m.counterVec("pending_updates_enqueued_total", "Pending metric updates enqueued by trigger", "trigger")
	m.updatesDropped = m.counterVec("pending_updates_dropped_total", "Pending metric updates dropped by reason", "reason")
	m.completionRequeued = m.counter("completion_updates_requeued_total", "Completed updates re-enqueued after a failed flush")
	m.flushDuration = m.histogram("flush_duration_milliseconds", "Duration of one flush tick in milliseconds")
	m.flushedUpdates = m.counter("flushed_updates_total", "Metric rows durably upserted")
	m.pendingUpdates = m.gauge("pending_updates", "Pending updates across sessions after the last flush")
	m.activeSessions = m.gauge("active_sessions", "Playback sessions with a running flush ticker")
	m.sessionsExpired = m.counter("sessions_expired_total", "Playback sessions closed after going idle")

	m.scoresComputed = m.counter("scores_computed_total", "Video scores recomputed and persisted")
	m.scoringErrors = m.counter("scoring_errors_total", "Score recomputations that failed")
	m.similarityUsed = m.counterVec("similarity_terms_total", "Score recomputations by similarity availability", "available")

	m.remoteAttempts = m.counterVec("remote_attempts_total", "Remote call attempts by operation", "operation")
	m.remoteFailures = m.counterVec("remote_failures_total", "Remote call failures by operation and class", "operation", "class")
	m.remoteExhausted = m.counterVec("remote_exhausted_total", "Remote calls that exhausted their retry budget", "operation")

	m.pageLatency = m.histogram("page_latency_milliseconds", "Ranked page fetch latency in milliseconds")
	m.pageErrors = m.counter("page_errors_total", "Ranked page fetches that failed")
	m.feedbackTotal = m.counterVec("feedback_total", "Feedback records written by kind", "kind")
	m.feedbackDuplicates = m.counter("feedback_duplicates_total", "Feedback requests skipped as retries of a seen request_id")
	m.cacheInvalidations = m.counterVec("cache_invalidations_total", "Feed cache invalidations by origin", "origin")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Durable store call latency by operation", "operation")
	m.storeErrors = m.counterVec("store_errors_total", "Durable store errors by operation", "operation")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
}

// Aggregator metrics.

// RecordSampleObserved counts one playback status sample.
func RecordSampleObserved() { globalManager.samplesObserved.Inc() }

// RecordUpdateEnqueued counts a pending update by trigger (first, completion, delta).
func RecordUpdateEnqueued(trigger string) {
	globalManager.updatesEnqueued.WithLabelValues(trigger).Inc()
}

// RecordUpdateDropped counts a pending update lost for reason.
func RecordUpdateDropped(reason string) { globalManager.updatesDropped.WithLabelValues(reason).Inc() }

// RecordCompletionRequeued counts a completion retry.
func RecordCompletionRequeued() { globalManager.completionRequeued.Inc() }

// RecordFlushDuration observes one flush tick.
func RecordFlushDuration(ms float64) { globalManager.flushDuration.Observe(ms) }

// RecordFlushedUpdate counts a durable metric upsert.
func RecordFlushedUpdate() { globalManager.flushedUpdates.Inc() }

// UpdatePendingUpdates sets the pending backlog gauge.
func UpdatePendingUpdates(n int) { globalManager.pendingUpdates.Set(float64(n)) }

// UpdateActiveSessions sets the session gauge.
func UpdateActiveSessions(n int) { globalManager.activeSessions.Set(float64(n)) }

// RecordSessionExpired counts a session closed for inactivity.
func RecordSessionExpired() { globalManager.sessionsExpired.Inc() }

// Scoring metrics.

// RecordScoreComputed counts a persisted score; withSimilarity tells whether the similarity term applied.
func RecordScoreComputed(withSimilarity bool) {
	globalManager.scoresComputed.Inc()
	label := "false"
	if withSimilarity {
		label = "true"
	}
	globalManager.similarityUsed.WithLabelValues(label).Inc()
}

// RecordScoringError counts a failed recomputation.
func RecordScoringError() { globalManager.scoringErrors.Inc() }

// Remote call metrics.

// RecordRemoteAttempt counts one attempt of operation.
func RecordRemoteAttempt(operation string) {
	globalManager.remoteAttempts.WithLabelValues(operation).Inc()
}

// RecordRemoteFailure counts one classified failure.
func RecordRemoteFailure(operation, class string) {
	globalManager.remoteFailures.WithLabelValues(operation, class).Inc()
}

// RecordRemoteExhausted counts a call that ran out of attempts.
func RecordRemoteExhausted(operation string) {
	globalManager.remoteExhausted.WithLabelValues(operation).Inc()
}

// Feed metrics.

// RecordPageLatency observes one ranked page fetch.
func RecordPageLatency(ms float64) { globalManager.pageLatency.Observe(ms) }

// RecordPageError counts a failed page fetch.
func RecordPageError() { globalManager.pageErrors.Inc() }

// RecordFeedback counts a feedback write.
func RecordFeedback(kind string) { globalManager.feedbackTotal.WithLabelValues(kind).Inc() }

// RecordFeedbackDuplicate counts a replayed feedback request.
func RecordFeedbackDuplicate() { globalManager.feedbackDuplicates.Inc() }

// RecordCacheInvalidation counts a feed cache invalidation (local, remote).
func RecordCacheInvalidation(origin string) {
	globalManager.cacheInvalidations.WithLabelValues(origin).Inc()
}

// Store metrics.

// RecordStoreLatency observes a durable store call.
func RecordStoreLatency(operation string, ms float64) {
	globalManager.storeLatency.WithLabelValues(operation).Observe(ms)
}

// RecordStoreError counts a failed durable store call.
func RecordStoreError(operation string) { globalManager.storeErrors.WithLabelValues(operation).Inc() }

// HTTP metrics.

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(ms)
}

// System metrics.

// UpdateSystemMemoryUsage sets the memory gauge in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the loader, grouped into runs,
// records, sinks, and sources. All collectors are registered with the default
// registry via promauto, so a namespace may be used only once per process.
type Metrics struct {
	// RunsStarted counts load runs begun.
	RunsStarted prometheus.Counter

	// RunsCompleted counts runs whose sink session committed.
	RunsCompleted prometheus.Counter

	// RunsAborted counts runs rolled back, labeled by reason (parse, cancelled, sink).
	RunsAborted *prometheus.CounterVec

	// RunDuration observes run duration in seconds.
	RunDuration prometheus.Histogram

	// CitationsDecoded counts records emitted by the decoder.
	CitationsDecoded prometheus.Counter

	// RowsPersisted counts rows accepted by a sink, labeled by sink.
	RowsPersisted *prometheus.CounterVec

	// RecordFailures counts records that failed, labeled by stage (flatten, sink).
	RecordFailures *prometheus.CounterVec

	// DateIssues counts dates that could not be composed, labeled by row field.
	DateIssues *prometheus.CounterVec

	// SinkWriteDuration observes per-row persist latency in seconds, labeled by sink.
	SinkWriteDuration *prometheus.HistogramVec

	// SinkThrottleWait observes time spent waiting on the sink rate limiter.
	SinkThrottleWait prometheus.Histogram

	// SourceBytesRead counts compressed or plain bytes read from inputs, labeled by scheme.
	SourceBytesRead *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RunsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of load runs started",
		}),
		RunsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of load runs committed",
		}),
		RunsAborted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_aborted_total",
			Help:      "Total number of load runs rolled back",
		}, []string{"reason"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of load runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		CitationsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "citations_decoded_total",
			Help:      "Total number of citation records decoded",
		}),
		RowsPersisted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_persisted_total",
			Help:      "Total number of rows accepted by a sink",
		}, []string{"sink"}),
		RecordFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_failures_total",
			Help:      "Total number of records that could not be loaded",
		}, []string{"stage"}),
		DateIssues: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_issues_total",
			Help:      "Total number of source dates that did not form a calendar date",
		}, []string{"field"}),
		SinkWriteDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_write_duration_seconds",
			Help:      "Latency of persisting one row",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"sink"}),
		SinkThrottleWait: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_throttle_wait_seconds",
			Help:      "Time spent waiting on the sink rate limiter",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		SourceBytesRead: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_bytes_read_total",
			Help:      "Total bytes read from input sources",
		}, []string{"scheme"}),
	}
}

// RecordRunStarted increments the runs started counter.
func (m *Metrics) RecordRunStarted() {
	m.RunsStarted.Inc()
}

// RecordRunCompleted records a committed run and its duration.
func (m *Metrics) RecordRunCompleted(durationSeconds float64) {
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordRunAborted records a rolled back run and its duration.
func (m *Metrics) RecordRunAborted(reason string, durationSeconds float64) {
	m.RunsAborted.WithLabelValues(reason).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordCitationDecoded increments the decoded records counter.
func (m *Metrics) RecordCitationDecoded() {
	m.CitationsDecoded.Inc()
}

// RecordRowPersisted records one accepted row and its write latency.
func (m *Metrics) RecordRowPersisted(sink string, durationSeconds float64) {
	m.RowsPersisted.WithLabelValues(sink).Inc()
	m.SinkWriteDuration.WithLabelValues(sink).Observe(durationSeconds)
}

// RecordFailure increments the failure counter for a stage.
func (m *Metrics) RecordFailure(stage string) {
	m.RecordFailures.WithLabelValues(stage).Inc()
}

// RecordDateIssue increments the date issue counter for a row field.
func (m *Metrics) RecordDateIssue(field string) {
	m.DateIssues.WithLabelValues(field).Inc()
}

// RecordThrottleWait observes time spent waiting for a rate limiter token.
func (m *Metrics) RecordThrottleWait(durationSeconds float64) {
	m.SinkThrottleWait.Observe(durationSeconds)
}

// RecordBytesRead adds n bytes read from an input of the given scheme.
func (m *Metrics) RecordBytesRead(scheme string, n int) {
	m.SourceBytesRead.WithLabelValues(scheme).Add(float64(n))
}

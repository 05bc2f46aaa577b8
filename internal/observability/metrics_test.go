package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_medline_new")

	assert.NotNil(t, m.RunsStarted)
	assert.NotNil(t, m.RunsCompleted)
	assert.NotNil(t, m.RunsAborted)
	assert.NotNil(t, m.RunDuration)
	assert.NotNil(t, m.CitationsDecoded)
	assert.NotNil(t, m.RowsPersisted)
	assert.NotNil(t, m.RecordFailures)
	assert.NotNil(t, m.DateIssues)
	assert.NotNil(t, m.SinkWriteDuration)
	assert.NotNil(t, m.SinkThrottleWait)
	assert.NotNil(t, m.SourceBytesRead)
}

func TestRecordRunLifecycle(t *testing.T) {
	m := NewMetrics("test_run_lifecycle")

	m.RecordRunStarted()
	m.RecordRunStarted()
	m.RecordRunCompleted(1.5)
	m.RecordRunAborted("parse", 0.2)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RunsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsAborted.WithLabelValues("parse")))

	histCount, err := getHistogramSampleCount(m.RunDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordRowPersisted(t *testing.T) {
	m := NewMetrics("test_row_persisted")

	m.RecordRowPersisted("postgres", 0.003)
	m.RecordRowPersisted("postgres", 0.004)
	m.RecordRowPersisted("kafka", 0.001)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RowsPersisted.WithLabelValues("postgres")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RowsPersisted.WithLabelValues("kafka")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.SinkWriteDuration))
}

func TestRecordFailureAndDateIssue(t *testing.T) {
	m := NewMetrics("test_failures")

	m.RecordCitationDecoded()
	m.RecordFailure("flatten")
	m.RecordFailure("sink")
	m.RecordFailure("sink")
	m.RecordDateIssue("created_on")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CitationsDecoded))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecordFailures.WithLabelValues("flatten")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RecordFailures.WithLabelValues("sink")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DateIssues.WithLabelValues("created_on")))
}

func TestRecordBytesAndThrottle(t *testing.T) {
	m := NewMetrics("test_bytes_throttle")

	m.RecordBytesRead("s3", 1024)
	m.RecordBytesRead("s3", 24)
	m.RecordThrottleWait(0.01)

	assert.Equal(t, float64(1048), testutil.ToFloat64(m.SourceBytesRead.WithLabelValues("s3")))

	histCount, err := getHistogramSampleCount(m.SinkThrottleWait)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAccumulate(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("messages_sent", nil)
	r.IncrementCounter("messages_sent", nil)
	r.AddToCounter("messages_sent", 3, nil)

	snapshot := r.Snapshot()
	counters := snapshot["counters"].(map[string]*Metric)
	require.Contains(t, counters, "messages_sent")
	assert.Equal(t, 5.0, counters["messages_sent"].Value)
}

func TestCountersSplitByLabels(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("http_requests", map[string]string{"method": "GET"})
	r.IncrementCounter("http_requests", map[string]string{"method": "POST"})
	r.IncrementCounter("http_requests", map[string]string{"method": "GET"})

	counters := r.Snapshot()["counters"].(map[string]*Metric)
	assert.Equal(t, 2.0, counters["http_requests,method=GET"].Value)
	assert.Equal(t, 1.0, counters["http_requests,method=POST"].Value)
}

func TestTimerAggregation(t *testing.T) {
	r := NewRegistry()

	r.RecordTimer("send", 10*time.Millisecond, nil)
	r.RecordTimer("send", 30*time.Millisecond, nil)
	r.RecordTimer("send", 20*time.Millisecond, nil)

	timers := r.Snapshot()["timers"].(map[string]*TimerMetric)
	timer := timers["send"]
	require.NotNil(t, timer)
	assert.Equal(t, int64(3), timer.Count)
	assert.Equal(t, 10.0, timer.Min)
	assert.Equal(t, 30.0, timer.Max)
	assert.Equal(t, 20.0, timer.Average)
}

func TestMetricKeyOrdersLabels(t *testing.T) {
	a := metricKey("m", map[string]string{"b": "2", "a": "1"})
	b := metricKey("m", map[string]string{"a": "1", "b": "2"})
	assert.Equal(t, a, b)
	assert.Equal(t, "m,a=1,b=2", a)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("c", nil)

	counters := r.Snapshot()["counters"].(map[string]*Metric)
	counters["c"].Value = 99

	fresh := r.Snapshot()["counters"].(map[string]*Metric)
	assert.Equal(t, 1.0, fresh["c"].Value)
}

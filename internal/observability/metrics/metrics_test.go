package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFinal(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordFinal("question", "neutral", 5)
	m.RecordFinal("question", "neutral", 3)
	m.RecordFinal("command", "positive", 2)

	if got := testutil.ToFloat64(m.TranscriptsFinal); got != 3 {
		t.Errorf("expected 3 finals, got %v", got)
	}
	if got := testutil.ToFloat64(m.Classifications.WithLabelValues("question", "neutral")); got != 2 {
		t.Errorf("expected 2 question/neutral, got %v", got)
	}
}

func TestRecordTick(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTick(10, false)
	m.RecordTick(45, true)

	if got := testutil.ToFloat64(m.AudioTicks); got != 2 {
		t.Errorf("expected 2 ticks, got %v", got)
	}
	if got := testutil.ToFloat64(m.AudioSpeakingTicks); got != 1 {
		t.Errorf("expected 1 speaking tick, got %v", got)
	}
}

func TestRecordPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPublish("kafka", "final", nil, 0.01)
	m.RecordPublish("kafka", "final", errors.New("boom"), 0.02)

	if got := testutil.ToFloat64(m.PublishTotal.WithLabelValues("kafka", "final")); got != 2 {
		t.Errorf("expected 2 publishes, got %v", got)
	}
	if got := testutil.ToFloat64(m.PublishErrors.WithLabelValues("kafka", "final")); got != 1 {
		t.Errorf("expected 1 publish error, got %v", got)
	}
}

func TestMonitorGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordMonitorStart()
	m.RecordMonitorStart()
	m.RecordMonitorStop()

	if got := testutil.ToFloat64(m.AudioMonitorsActive); got != 1 {
		t.Errorf("expected 1 active monitor, got %v", got)
	}
}

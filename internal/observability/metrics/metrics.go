// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "meeting_transcript"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Speech session metrics
	SessionStarts     prometheus.Counter
	SessionRestarts   prometheus.Counter
	SessionState      prometheus.Gauge
	RecognitionErrors *prometheus.CounterVec
	NoSpeechEvents    prometheus.Counter

	// Transcript metrics
	TranscriptsInterim prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	TranscriptsEmpty   prometheus.Counter
	Classifications    *prometheus.CounterVec
	TranscriptWords    prometheus.Histogram

	// Audio activity metrics
	AudioMonitorsActive prometheus.Gauge
	AudioTicks          prometheus.Counter
	AudioSpeakingTicks  prometheus.Counter
	AudioAmplitude      prometheus.Histogram
	AudioDeviceErrors   prometheus.Counter

	// Participant metrics
	Participants prometheus.Gauge

	// Publish metrics
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec

	// gRPC metrics
	RPCDuration *prometheus.HistogramVec
}

// DefaultMetrics is registered with the default Prometheus registry.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Speech session metrics
		SessionStarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Total number of recognition engine starts, including restarts",
		}),
		SessionRestarts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_restarts_total",
			Help:      "Total number of automatic restarts scheduled after an engine end",
		}),
		SessionState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "Current speech session state (0=idle 1=starting 2=listening 3=ending 4=restarting)",
		}),
		RecognitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_errors_total",
			Help:      "Total number of recognition errors forwarded to listeners",
		}, []string{"kind"}),
		NoSpeechEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_no_speech_total",
			Help:      "Total number of absorbed no-speech intervals",
		}),

		// Transcript metrics
		TranscriptsInterim: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_interim_total",
			Help:      "Total number of interim transcripts delivered",
		}),
		TranscriptsFinal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts appended to the ledger",
		}),
		TranscriptsEmpty: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_empty_total",
			Help:      "Total number of final results dropped because their text was empty",
		}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Total number of classified transcripts by type and emotion",
		}, []string{"type", "emotion"}),
		TranscriptWords: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcript_words",
			Help:      "Word count of finalized transcripts",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),

		// Audio activity metrics
		AudioMonitorsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_monitors_active",
			Help:      "Number of audio activity monitors currently capturing",
		}),
		AudioTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_ticks_total",
			Help:      "Total number of audio sampling ticks",
		}),
		AudioSpeakingTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_speaking_ticks_total",
			Help:      "Total number of sampling ticks classified as speaking",
		}),
		AudioAmplitude: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_amplitude",
			Help:      "Mean frequency-bin magnitude per tick (0-255)",
			Buckets:   []float64{5, 10, 20, 30, 50, 80, 120, 180, 255},
		}),
		AudioDeviceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_device_errors_total",
			Help:      "Total number of failed audio device acquisitions",
		}),

		Participants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants",
			Help:      "Number of participants currently registered",
		}),

		// Publish metrics
		PublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Total number of transcript events published",
		}, []string{"backend", "event_type"}),
		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of transcript event publish errors",
		}, []string{"backend", "event_type"}),
		PublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_latency_seconds",
			Help:      "Transcript event publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"backend"}),

		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records an engine start attempt.
func (m *Metrics) RecordSessionStart() {
	m.SessionStarts.Inc()
}

// RecordRestart records an automatic restart being scheduled.
func (m *Metrics) RecordRestart() {
	m.SessionRestarts.Inc()
}

// RecordState records the current session state.
func (m *Metrics) RecordState(state int) {
	m.SessionState.Set(float64(state))
}

// RecordRecognitionError records a forwarded recognition error.
func (m *Metrics) RecordRecognitionError(kind string) {
	m.RecognitionErrors.WithLabelValues(kind).Inc()
}

// RecordNoSpeech records an absorbed no-speech interval.
func (m *Metrics) RecordNoSpeech() {
	m.NoSpeechEvents.Inc()
}

// RecordInterim records an interim transcript.
func (m *Metrics) RecordInterim() {
	m.TranscriptsInterim.Inc()
}

// RecordFinal records a final transcript and its classification.
func (m *Metrics) RecordFinal(utteranceType, emotion string, words int) {
	m.TranscriptsFinal.Inc()
	m.Classifications.WithLabelValues(utteranceType, emotion).Inc()
	m.TranscriptWords.Observe(float64(words))
}

// RecordEmptyFinal records a final result dropped for empty text.
func (m *Metrics) RecordEmptyFinal() {
	m.TranscriptsEmpty.Inc()
}

// RecordMonitorStart records an audio monitor starting capture.
func (m *Metrics) RecordMonitorStart() {
	m.AudioMonitorsActive.Inc()
}

// RecordMonitorStop records an audio monitor stopping capture.
func (m *Metrics) RecordMonitorStop() {
	m.AudioMonitorsActive.Dec()
}

// RecordTick records one audio sampling tick.
func (m *Metrics) RecordTick(amplitude float64, speaking bool) {
	m.AudioTicks.Inc()
	m.AudioAmplitude.Observe(amplitude)
	if speaking {
		m.AudioSpeakingTicks.Inc()
	}
}

// RecordDeviceError records a failed audio device acquisition.
func (m *Metrics) RecordDeviceError() {
	m.AudioDeviceErrors.Inc()
}

// RecordParticipants records the number of registered participants.
func (m *Metrics) RecordParticipants(n int) {
	m.Participants.Set(float64(n))
}

// RecordPublish records a publish attempt.
func (m *Metrics) RecordPublish(backend, eventType string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(backend, eventType).Inc()
	m.PublishLatency.WithLabelValues(backend).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(backend, eventType).Inc()
	}
}

// RecordRPC records a completed gRPC call.
func (m *Metrics) RecordRPC(method, code string, durationSeconds float64) {
	m.RPCDuration.WithLabelValues(method, code).Observe(durationSeconds)
}

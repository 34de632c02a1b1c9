// Package audio samples the local microphone and reports coarse speaking
// activity from its frequency spectrum.
package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"zoom-transcript-service/internal/models"
	"zoom-transcript-service/internal/observability/logging"
	"zoom-transcript-service/internal/observability/metrics"
	"zoom-transcript-service/internal/observer"
)

const (
	DefaultFFTSize           = 2048
	DefaultSpeakingThreshold = 30.0
	DefaultTickInterval      = time.Second / 60
)

// Options configures a Monitor.
type Options struct {
	FFTSize           int
	SpeakingThreshold float64
	TickInterval      time.Duration
	Constraints       Constraints
	Metrics           *metrics.Metrics
}

// DefaultOptions returns the standard voice-activity settings.
func DefaultOptions() Options {
	return Options{
		FFTSize:           DefaultFFTSize,
		SpeakingThreshold: DefaultSpeakingThreshold,
		TickInterval:      DefaultTickInterval,
		Constraints:       DefaultConstraints(),
	}
}

// Monitor owns one acquired stream and its analyser. While capturing, a tick
// task re-arms itself every TickInterval, averages the frequency bins and
// reports the mean when it exceeds the speaking threshold.
//
// Listeners run on the tick goroutine and must not call Stop synchronously.
type Monitor struct {
	device  Device
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger

	capturing atomic.Bool

	// tickMu serializes ticks with Start and Stop, so Stop returns only after
	// any in-flight tick has finished.
	tickMu   sync.Mutex
	stream   Stream
	analyser Analyser
	timer    *time.Timer
	bins     []byte
	// gen identifies the current run; ticks armed by an earlier run exit.
	gen uint64

	levels  observer.Topic[float64]
	samples observer.Topic[models.AudioLevelSample]
}

// NewMonitor creates a stopped monitor. Zero option fields take defaults.
func NewMonitor(device Device, opts Options) *Monitor {
	def := DefaultOptions()
	if opts.FFTSize <= 0 {
		opts.FFTSize = def.FFTSize
	}
	if opts.SpeakingThreshold <= 0 {
		opts.SpeakingThreshold = def.SpeakingThreshold
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Monitor{
		device:  device,
		opts:    opts,
		metrics: m,
		logger:  logging.WithComponent("audio"),
	}
}

// OnLevel subscribes to the mean amplitude of speaking ticks.
func (m *Monitor) OnLevel(fn func(amplitude float64)) func() {
	return m.levels.Subscribe(fn)
}

// OnSample subscribes to every tick's sample, speaking or not.
func (m *Monitor) OnSample(fn func(sample models.AudioLevelSample)) func() {
	return m.samples.Subscribe(fn)
}

// Capturing reports whether the sampling loop is running.
func (m *Monitor) Capturing() bool {
	return m.capturing.Load()
}

// Start acquires the input stream and begins sampling. On failure the
// returned error wraps ErrAudioDevice and no loop is started.
func (m *Monitor) Start(ctx context.Context) error {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if m.capturing.Load() {
		return nil
	}
	if m.device == nil {
		m.metrics.RecordDeviceError()
		return ErrAudioDevice
	}

	stream, err := m.device.Acquire(ctx, m.opts.Constraints)
	if err != nil {
		m.metrics.RecordDeviceError()
		m.logger.Warn().Err(err).Msg("Audio acquisition failed")
		return fmt.Errorf("%w: %v", ErrAudioDevice, err)
	}

	analyser, err := stream.NewAnalyser(m.opts.FFTSize)
	if err != nil {
		stopTracks(stream)
		m.metrics.RecordDeviceError()
		return fmt.Errorf("%w: analyser: %v", ErrAudioDevice, err)
	}

	m.stream = stream
	m.analyser = analyser
	m.bins = make([]byte, analyser.FrequencyBinCount())
	m.capturing.Store(true)
	m.gen++
	m.arm()

	m.metrics.RecordMonitorStart()
	m.logger.Info().
		Int("fftSize", m.opts.FFTSize).
		Float64("threshold", m.opts.SpeakingThreshold).
		Dur("interval", m.opts.TickInterval).
		Msg("Audio monitor started")
	return nil
}

// arm schedules the next tick for the current run. Caller holds tickMu.
func (m *Monitor) arm() {
	gen := m.gen
	m.timer = time.AfterFunc(m.opts.TickInterval, func() { m.tick(gen) })
}

func (m *Monitor) tick(gen uint64) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if gen != m.gen || !m.capturing.Load() {
		return
	}

	m.analyser.ByteFrequencyData(m.bins)
	mean := Mean(m.bins)
	speaking := mean > m.opts.SpeakingThreshold

	m.metrics.RecordTick(mean, speaking)
	m.samples.Emit(models.AudioLevelSample{Amplitude: mean, IsSpeaking: speaking})
	if speaking {
		m.levels.Emit(mean)
	}

	m.arm()
}

// Stop halts sampling, stops every track and closes the analyser. No level
// or sample is delivered after Stop returns.
func (m *Monitor) Stop() {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	if !m.capturing.CompareAndSwap(true, false) {
		return
	}
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	stopTracks(m.stream)
	if err := m.analyser.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to close analyser")
	}
	m.stream, m.analyser, m.bins = nil, nil, nil

	m.metrics.RecordMonitorStop()
	m.logger.Info().Msg("Audio monitor stopped")
}

func stopTracks(s Stream) {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// Mean returns the arithmetic mean of the bins, or 0 when there are none.
func Mean(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum int
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins))
}

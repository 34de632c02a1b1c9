// Package wavdevice replays a WAV recording as a real-time capture device.
// It stands in for a microphone on hosts without one and feeds both the
// activity monitor and streaming recognition engines.
package wavdevice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"zoom-transcript-service/internal/observability/logging"
	"zoom-transcript-service/internal/service/audio"
	"zoom-transcript-service/internal/service/audio/spectrum"
)

// DefaultBlock is the interval at which samples are released.
const DefaultBlock = 20 * time.Millisecond

// ErrInvalidWAV is returned for files the decoder cannot read.
var ErrInvalidWAV = errors.New("invalid wav file")

// Options configures a Device.
type Options struct {
	Path  string
	Loop  bool
	Block time.Duration
}

// Clip is a decoded recording mixed down to mono, samples in [-1, 1].
type Clip struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playback length.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Load decodes the WAV file at path.
func Load(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	depth := buf.SourceBitDepth
	if depth <= 0 {
		depth = int(dec.BitDepth)
	}
	full := float64(int64(1) << (depth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		samples[i] = float64(sum) / float64(channels) / full
	}
	return &Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// Device implements audio.Device over a WAV file.
type Device struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a device for opts.Path.
func New(opts Options) *Device {
	if opts.Block <= 0 {
		opts.Block = DefaultBlock
	}
	return &Device{opts: opts, logger: logging.WithDevice(opts.Path)}
}

// Acquire loads the recording and starts releasing it in real time.
// Voice processing constraints have no effect on a recording.
func (d *Device) Acquire(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	clip, err := Load(d.opts.Path)
	if err != nil {
		return nil, err
	}
	if len(clip.Samples) == 0 || clip.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: empty recording", ErrInvalidWAV)
	}

	d.logger.Debug().
		Bool("echoCancellation", c.EchoCancellation).
		Bool("noiseSuppression", c.NoiseSuppression).
		Bool("autoGainControl", c.AutoGainControl).
		Dur("duration", clip.Duration()).
		Msg("Replaying recording as capture device")

	s := newStream(ctx, clip, d.opts)
	go s.run()
	return s, nil
}

// Open returns the recording as LINEAR16 little-endian PCM released at the
// recording's sample rate. It satisfies the streaming engines' audio source.
func (d *Device) Open(ctx context.Context) (io.ReadCloser, error) {
	clip, err := Load(d.opts.Path)
	if err != nil {
		return nil, err
	}
	return newPCMReader(ctx, clip, d.opts.Loop), nil
}

type stream struct {
	clip  *Clip
	loop  bool
	block time.Duration
	track *track

	mu   sync.Mutex
	taps map[*tap]struct{}
}

func newStream(ctx context.Context, clip *Clip, opts Options) *stream {
	ctx, cancel := context.WithCancel(ctx)
	return &stream{
		clip:  clip,
		loop:  opts.Loop,
		block: opts.Block,
		track: &track{id: opts.Path, ctx: ctx, cancel: cancel},
		taps:  make(map[*tap]struct{}),
	}
}

func (s *stream) Tracks() []audio.Track {
	return []audio.Track{s.track}
}

func (s *stream) NewAnalyser(fftSize int) (audio.Analyser, error) {
	a, err := spectrum.New(fftSize)
	if err != nil {
		return nil, err
	}
	t := &tap{Analyser: a, stream: s}
	s.mu.Lock()
	s.taps[t] = struct{}{}
	s.mu.Unlock()
	return t, nil
}

func (s *stream) run() {
	defer s.track.cancel()

	ticker := time.NewTicker(s.block)
	defer ticker.Stop()

	per := int(float64(s.clip.SampleRate) * s.block.Seconds())
	if per < 1 {
		per = 1
	}
	pos := 0
	for {
		select {
		case <-s.track.ctx.Done():
			return
		case <-ticker.C:
		}

		end := pos + per
		if end > len(s.clip.Samples) {
			end = len(s.clip.Samples)
		}
		s.broadcast(s.clip.Samples[pos:end])
		pos = end

		if pos >= len(s.clip.Samples) {
			if !s.loop {
				return
			}
			pos = 0
		}
	}
}

func (s *stream) broadcast(samples []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t := range s.taps {
		t.Write(samples)
	}
}

// tap is an analyser registered to receive the stream's samples.
type tap struct {
	*spectrum.Analyser
	stream *stream
}

func (t *tap) Close() error {
	t.stream.mu.Lock()
	delete(t.stream.taps, t)
	t.stream.mu.Unlock()
	return t.Analyser.Close()
}

type track struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *track) ID() string { return t.id }

func (t *track) State() audio.TrackState {
	if t.ctx.Err() != nil {
		return audio.TrackEnded
	}
	return audio.TrackLive
}

func (t *track) Stop() { t.cancel() }

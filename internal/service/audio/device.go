package audio

import (
	"context"
	"errors"
)

// ErrAudioDevice is returned by Monitor.Start when no input stream can be
// acquired, either because access was denied or no device exists.
var ErrAudioDevice = errors.New("audio device unavailable")

// Constraints are the processing options requested from the capture device.
type Constraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints enables all voice processing.
func DefaultConstraints() Constraints {
	return Constraints{EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true}
}

// TrackState reports whether a track still delivers audio.
type TrackState int

const (
	TrackLive TrackState = iota
	TrackEnded
)

func (s TrackState) String() string {
	if s == TrackLive {
		return "live"
	}
	return "ended"
}

// Track is one media track of an acquired stream.
type Track interface {
	ID() string
	State() TrackState
	// Stop ends the track and releases its share of the device. Idempotent.
	Stop()
}

// Analyser exposes periodic frequency-bin magnitudes of a stream.
type Analyser interface {
	// FrequencyBinCount is half the transform size.
	FrequencyBinCount() int
	// ByteFrequencyData fills dst with the current magnitudes scaled to 0..255.
	ByteFrequencyData(dst []byte)
	Close() error
}

// Stream is an acquired audio input.
type Stream interface {
	Tracks() []Track
	NewAnalyser(fftSize int) (Analyser, error)
}

// Device acquires audio input streams.
type Device interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

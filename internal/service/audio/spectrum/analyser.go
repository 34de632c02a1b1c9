// Package spectrum computes smoothed frequency-bin magnitudes over the most
// recent block of PCM samples, scaled the way browser analyser nodes do.
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	MinFFTSize = 32
	MaxFFTSize = 32768

	DefaultSmoothing   = 0.8
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
)

// Analyser keeps a ring of the last FFTSize samples. Writers push samples with
// Write; readers pull magnitudes with ByteFrequencyData or FloatFrequencyData.
type Analyser struct {
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64

	mu       sync.Mutex
	size     int
	fft      *fourier.FFT
	window   []float64
	ring     []float64
	pos      int
	frame    []float64
	coeffs   []complex128
	smoothed []float64
	closed   bool
}

// ValidSize reports whether n is a power of two within the supported range.
func ValidSize(n int) bool {
	return n >= MinFFTSize && n <= MaxFFTSize && n&(n-1) == 0
}

// New creates an analyser with a transform of fftSize samples.
func New(fftSize int) (*Analyser, error) {
	if !ValidSize(fftSize) {
		return nil, fmt.Errorf("fft size %d must be a power of two in [%d, %d]", fftSize, MinFFTSize, MaxFFTSize)
	}
	return &Analyser{
		Smoothing:   DefaultSmoothing,
		MinDecibels: DefaultMinDecibels,
		MaxDecibels: DefaultMaxDecibels,
		size:        fftSize,
		fft:         fourier.NewFFT(fftSize),
		window:      blackman(fftSize),
		ring:        make([]float64, fftSize),
		frame:       make([]float64, fftSize),
		coeffs:      make([]complex128, fftSize/2+1),
		smoothed:    make([]float64, fftSize/2),
	}, nil
}

// FFTSize returns the transform size.
func (a *Analyser) FFTSize() int {
	return a.size
}

// FrequencyBinCount is half the transform size.
func (a *Analyser) FrequencyBinCount() int {
	return a.size / 2
}

// Write appends samples in [-1, 1], overwriting the oldest.
func (a *Analyser) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, s := range samples {
		a.ring[a.pos] = s
		a.pos = (a.pos + 1) % a.size
	}
}

// FloatFrequencyData fills dst with the smoothed magnitudes in decibels.
func (a *Analyser) FloatFrequencyData(dst []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyse()
	for i := 0; i < len(dst) && i < len(a.smoothed); i++ {
		dst[i] = decibels(a.smoothed[i])
	}
}

// ByteFrequencyData fills dst with the smoothed magnitudes mapped linearly
// from [MinDecibels, MaxDecibels] onto 0..255.
func (a *Analyser) ByteFrequencyData(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.analyse()
	scale := 255 / (a.MaxDecibels - a.MinDecibels)
	for i := 0; i < len(dst) && i < len(a.smoothed); i++ {
		v := math.Floor(scale * (decibels(a.smoothed[i]) - a.MinDecibels))
		switch {
		case v < 0:
			dst[i] = 0
		case v > 255:
			dst[i] = 255
		default:
			dst[i] = byte(v)
		}
	}
}

// Close releases the analyser. Later writes are ignored.
func (a *Analyser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// analyse windows the ring in time order and folds the new magnitudes into
// the smoothed spectrum. Caller holds a.mu.
func (a *Analyser) analyse() {
	for i := 0; i < a.size; i++ {
		a.frame[i] = a.ring[(a.pos+i)%a.size] * a.window[i]
	}
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	tau := a.Smoothing
	n := float64(a.size)
	for k := range a.smoothed {
		mag := cmplx.Abs(a.coeffs[k]) / n
		a.smoothed[k] = tau*a.smoothed[k] + (1-tau)*mag
	}
}

func decibels(mag float64) float64 {
	if mag <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(mag)
}

// blackman is the periodic form (divides by n) the browser analyser uses;
// gonum's window.Blackman is the symmetric n-1 form.
func blackman(n int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}

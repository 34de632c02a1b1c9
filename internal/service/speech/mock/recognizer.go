// Package mock provides a scripted recognition engine for running the service
// without cloud credentials. Each listening window plays progressive interim
// results and exactly one final per utterance, then reports a no-speech
// interval and ends, the way browser and cloud engines time out.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"zoom-transcript-service/internal/service/speech"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive interim transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample meeting utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"Can we", "Can we start", "Can we start the"},
		Final:      "Can we start the meeting now",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Please", "Please show", "Please show the"},
		Final:      "Please show the quarterly numbers",
		Confidence: 0.92,
	},
	{
		Partials:   []string{"This is", "This is great"},
		Final:      "This is great progress everyone!",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"What time", "What time is"},
		Final:      "What time is the review tomorrow?",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Next", "Next slide"},
		Final:      "Next slide please",
		Confidence: 0.98,
	},
}

// ErrAlreadyRunning is returned by Start while a listening window is open.
var ErrAlreadyRunning = errors.New("mock recognizer already running")

// Options tunes the simulation pace.
type Options struct {
	Utterances []SimulatedUtterance
	Step       time.Duration // Delay before each interim or final result
	Silence    time.Duration // Quiet period closing a window
	PerWindow  int           // Utterances played per listening window
}

// DefaultOptions returns a conversational pace.
func DefaultOptions() Options {
	return Options{
		Utterances: DefaultUtterances,
		Step:       250 * time.Millisecond,
		Silence:    2 * time.Second,
		PerWindow:  2,
	}
}

// Recognizer implements speech.Recognizer with scripted responses.
type Recognizer struct {
	opts Options

	mu     sync.Mutex
	cfg    speech.Config
	cursor int           // Next utterance, cycles through opts.Utterances
	stop   chan struct{} // Non-nil while a window is open
	done   chan struct{}
}

// New creates a mock recognizer. Zero option fields take their defaults.
func New(opts Options) *Recognizer {
	def := DefaultOptions()
	if len(opts.Utterances) == 0 {
		opts.Utterances = def.Utterances
	}
	if opts.Step <= 0 {
		opts.Step = def.Step
	}
	if opts.Silence <= 0 {
		opts.Silence = def.Silence
	}
	if opts.PerWindow <= 0 {
		opts.PerWindow = def.PerWindow
	}
	return &Recognizer{opts: opts, cfg: speech.DefaultConfig()}
}

// Factory returns a speech.Factory producing recognizers with opts.
func Factory(opts Options) speech.Factory {
	return func() (speech.Recognizer, error) {
		return New(opts), nil
	}
}

// Configure records the recognition settings. Interim results are only
// played when InterimResults is set.
func (r *Recognizer) Configure(cfg speech.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	return nil
}

// Start opens a listening window.
func (r *Recognizer) Start(ctx context.Context, cb speech.Callback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop != nil {
		return ErrAlreadyRunning
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	r.stop = stop
	r.done = done

	go r.run(ctx, cb, stop, done)
	return nil
}

// Stop closes the current window. The end event follows asynchronously.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stop == nil {
		return nil
	}
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	return nil
}

// Close stops the recognizer and waits for the window to finish.
func (r *Recognizer) Close() error {
	_ = r.Stop()

	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

func (r *Recognizer) run(ctx context.Context, cb speech.Callback, stop, done chan struct{}) {
	defer close(done)

	wait := func(d time.Duration) bool {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-stop:
			return false
		case <-timer.C:
			return true
		}
	}

	r.mu.Lock()
	interim := r.cfg.InterimResults
	r.mu.Unlock()

	r.play(cb, interim, wait)

	// the window closes before the end event so the listener may restart us
	r.mu.Lock()
	if r.stop == stop {
		r.stop = nil
	}
	r.mu.Unlock()

	cb.OnEnd()
}

func (r *Recognizer) play(cb speech.Callback, interim bool, wait func(time.Duration) bool) {
	for i := 0; i < r.opts.PerWindow; i++ {
		utt := r.next()

		if interim {
			for _, p := range utt.Partials {
				if !wait(r.opts.Step) {
					return
				}
				cb.OnResult(speech.Batch{Results: []speech.Result{{Transcript: p}}})
			}
		}

		if !wait(r.opts.Step) {
			return
		}
		cb.OnResult(speech.Batch{Results: []speech.Result{{
			Transcript: utt.Final,
			Confidence: utt.Confidence,
			IsFinal:    true,
		}}})
	}

	if !wait(r.opts.Silence) {
		return
	}
	cb.OnError(speech.NewRecognitionError(speech.ErrorNoSpeech, "no speech detected"))
}

func (r *Recognizer) next() SimulatedUtterance {
	r.mu.Lock()
	defer r.mu.Unlock()
	utt := r.opts.Utterances[r.cursor%len(r.opts.Utterances)]
	r.cursor++
	return utt
}

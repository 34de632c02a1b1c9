// Package speech manages a continuous recognition engine and turns its raw
// result stream into interim text, ledger transcripts and classifications.
package speech

import (
	"context"
	"errors"
	"fmt"
)

// Config is applied to a recognition engine before its first start.
type Config struct {
	Continuous      bool
	InterimResults  bool
	Locale          string
	MaxAlternatives int
}

// DefaultConfig returns the engine configuration used for meetings.
func DefaultConfig() Config {
	return Config{
		Continuous:      true,
		InterimResults:  true,
		Locale:          "en-US",
		MaxAlternatives: 1,
	}
}

// Result is one segment of a result batch.
type Result struct {
	Transcript string
	Confidence float64
	IsFinal    bool
}

// Batch is delivered by the engine each time results change. Results before
// ResultIndex were already delivered in an earlier batch.
type Batch struct {
	ResultIndex int
	Results     []Result
}

// Callback receives the raw engine event stream. Engines must deliver
// callbacks serially, in order.
type Callback interface {
	// OnResult is called with each new result batch.
	OnResult(batch Batch)

	// OnError is called when the engine reports an error. Use *RecognitionError
	// so the kind can be inspected.
	OnError(err error)

	// OnEnd is called when the engine stops listening, whether requested or not.
	OnEnd()
}

// Recognizer is a continuous speech-to-text engine (Google, mock, ...).
type Recognizer interface {
	// Configure primes the engine. Called once, before the first Start.
	Configure(cfg Config) error

	// Start begins listening. Results flow to cb until OnEnd.
	Start(ctx context.Context, cb Callback) error

	// Stop requests the engine to halt. It must be safe to call more than once;
	// the engine reports completion through OnEnd.
	Stop() error
}

// Factory constructs a recognizer. A nil Factory means the environment has no
// recognition engine.
type Factory func() (Recognizer, error)

// ErrorKind classifies engine errors.
type ErrorKind string

const (
	ErrorNoSpeech            ErrorKind = "no-speech"
	ErrorAborted             ErrorKind = "aborted"
	ErrorAudioCapture        ErrorKind = "audio-capture"
	ErrorNetwork             ErrorKind = "network"
	ErrorNotAllowed          ErrorKind = "not-allowed"
	ErrorServiceNotAllowed   ErrorKind = "service-not-allowed"
	ErrorBadGrammar          ErrorKind = "bad-grammar"
	ErrorLanguageUnsupported ErrorKind = "language-not-supported"
)

// RecognitionError is a non-fatal engine error.
type RecognitionError struct {
	Kind    ErrorKind
	Message string
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition error: %s", e.Kind)
	}
	return fmt.Sprintf("recognition error: %s: %s", e.Kind, e.Message)
}

// NewRecognitionError builds a RecognitionError.
func NewRecognitionError(kind ErrorKind, msg string) *RecognitionError {
	return &RecognitionError{Kind: kind, Message: msg}
}

// IsNoSpeech reports whether err denotes an interval without speech.
func IsNoSpeech(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re) && re.Kind == ErrorNoSpeech
}

// asRecognitionError wraps foreign errors as network failures.
func asRecognitionError(err error) *RecognitionError {
	var re *RecognitionError
	if errors.As(err, &re) {
		return re
	}
	return &RecognitionError{Kind: ErrorNetwork, Message: err.Error()}
}

var (
	// ErrEngineUnavailable is returned by Start when no engine exists.
	ErrEngineUnavailable = errors.New("speech recognition engine unavailable")

	// ErrSessionActive is returned by Start while the session is already listening.
	ErrSessionActive = errors.New("speech session already active")

	// ErrSessionClosed is returned by Start after Close.
	ErrSessionClosed = errors.New("speech session closed")
)

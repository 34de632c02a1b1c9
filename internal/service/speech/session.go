package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"zoom-transcript-service/internal/classifier"
	"zoom-transcript-service/internal/ledger"
	"zoom-transcript-service/internal/models"
	"zoom-transcript-service/internal/observability/logging"
	"zoom-transcript-service/internal/observability/metrics"
	"zoom-transcript-service/internal/observability/tracing"
	"zoom-transcript-service/internal/observer"
)

// DefaultRestartDelay is the pause between an engine end and the automatic restart.
const DefaultRestartDelay = 100 * time.Millisecond

// Options configures a Session.
type Options struct {
	Recognition  Config
	RestartDelay time.Duration
	Metrics      *metrics.Metrics
}

// FinalEvent pairs a ledger transcript with its classification.
type FinalEvent struct {
	Transcript     models.Transcript
	Classification models.Classification
}

// Session owns one recognition engine and keeps it listening until Stop.
//
// Engine callbacks are processed one at a time in delivery order, so final
// transcripts reach the ledger and listeners in the order the engine produced
// them. Listeners run on the engine's callback goroutine and must not block.
type Session struct {
	id         string
	factory    Factory
	ledger     *ledger.Ledger
	classifier *classifier.Classifier
	opts       Options
	metrics    *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	// deliverMu serializes engine callbacks and their listener dispatch.
	deliverMu sync.Mutex

	mu          sync.Mutex
	lifecycle   *Lifecycle
	recognizer  Recognizer
	continuing  bool
	participant string
	interim     string
	timer       *time.Timer
	generation  uint64
	restarts    int
	closed      bool
	logger      zerolog.Logger

	interimTopic observer.Topic[string]
	finalTopic   observer.Topic[FinalEvent]
	errorTopic   observer.Topic[*RecognitionError]
	stateTopic   observer.Topic[StateChange]
}

// New creates an idle session. factory may be nil when the environment has no
// recognition engine; Start then fails with ErrEngineUnavailable.
func New(factory Factory, l *ledger.Ledger, c *classifier.Classifier, opts Options) *Session {
	if opts.RestartDelay < 0 {
		opts.RestartDelay = 0
	}
	if opts.Recognition == (Config{}) {
		opts.Recognition = DefaultConfig()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	return &Session{
		id:         id,
		factory:    factory,
		ledger:     l,
		classifier: c,
		opts:       opts,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		lifecycle:  NewLifecycle(),
		logger:     logging.WithSession(id, ""),
	}
}

// ID returns the session instance id.
func (s *Session) ID() string {
	return s.id
}

// OnInterim subscribes to interim text. The returned func unsubscribes.
func (s *Session) OnInterim(fn func(text string)) func() {
	return s.interimTopic.Subscribe(fn)
}

// OnFinal subscribes to finalized transcripts and their classification.
func (s *Session) OnFinal(fn func(t models.Transcript, c models.Classification)) func() {
	if fn == nil {
		return func() {}
	}
	return s.finalTopic.Subscribe(func(ev FinalEvent) { fn(ev.Transcript, ev.Classification) })
}

// OnError subscribes to forwarded recognition errors. No-speech intervals are
// never delivered.
func (s *Session) OnError(fn func(err *RecognitionError)) func() {
	return s.errorTopic.Subscribe(fn)
}

// OnStateChange subscribes to lifecycle transitions.
func (s *Session) OnStateChange(fn func(change StateChange)) func() {
	return s.stateTopic.Subscribe(fn)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.lifecycle.State()
}

// Participant returns the label transcripts are attributed to.
func (s *Session) Participant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

// CurrentInterim returns the latest non-empty interim text.
func (s *Session) CurrentInterim() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interim
}

// Restarts returns the number of automatic restarts scheduled so far.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Start begins listening and attributes every transcript to participant.
// The engine is created and configured on first use.
func (s *Session) Start(participant string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	switch st := s.lifecycle.State(); st {
	case StateStarting, StateListening, StateEnding:
		s.mu.Unlock()
		return fmt.Errorf("%w: state=%s", ErrSessionActive, st)
	case StateRestarting:
		// the armed restart picks up the new label
		s.continuing = true
		s.setParticipant(participant)
		s.mu.Unlock()
		return nil
	}

	if s.recognizer == nil {
		rec, err := s.acquire()
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.recognizer = rec
	}

	s.continuing = true
	s.setParticipant(participant)
	changes := s.transition(nil, StateStarting)
	rec := s.recognizer
	s.mu.Unlock()

	s.emitStates(changes)
	s.logger.Info().Msg("Speech session starting")
	return s.begin(rec, false)
}

// acquire constructs and configures the engine. Caller holds s.mu.
func (s *Session) acquire() (Recognizer, error) {
	if s.factory == nil {
		return nil, ErrEngineUnavailable
	}
	rec, err := s.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	if rec == nil {
		return nil, ErrEngineUnavailable
	}
	if err := rec.Configure(s.opts.Recognition); err != nil {
		return nil, fmt.Errorf("%w: configure: %v", ErrEngineUnavailable, err)
	}
	return rec, nil
}

func (s *Session) setParticipant(participant string) {
	s.participant = participant
	s.logger = logging.WithSession(s.id, participant)
}

// begin asks the engine to start. automatic marks restarts, whose failures are
// reported through the error topic instead of being returned.
func (s *Session) begin(rec Recognizer, automatic bool) error {
	s.metrics.RecordSessionStart()
	err := rec.Start(s.ctx, engineEvents{s})

	s.mu.Lock()
	var changes []StateChange
	if err != nil {
		if s.lifecycle.State() == StateStarting {
			if automatic && s.continuing {
				changes = s.armRestart(changes)
			} else {
				changes = s.transition(changes, StateIdle)
				s.continuing = false
			}
		}
		logger := s.logger
		s.mu.Unlock()
		s.emitStates(changes)

		logger.Warn().Err(err).Bool("automatic", automatic).Msg("Recognition engine failed to start")
		if automatic {
			rerr := NewRecognitionError(ErrorAborted, err.Error())
			s.metrics.RecordRecognitionError(string(rerr.Kind))
			s.errorTopic.Emit(rerr)
			return nil
		}
		return fmt.Errorf("start recognition: %w", err)
	}

	stopNow := false
	if s.lifecycle.State() == StateStarting {
		changes = s.transition(changes, StateListening)
		// Stop landed while the engine was starting.
		stopNow = !s.continuing
	}
	s.mu.Unlock()
	s.emitStates(changes)

	if stopNow {
		if err := rec.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to stop recognition engine")
		}
	}
	return nil
}

// Stop clears the continuation flag, disarms any pending restart and asks the
// engine to halt. No restart is scheduled after Stop returns.
func (s *Session) Stop() {
	s.mu.Lock()
	s.continuing = false
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	var changes []StateChange
	st := s.lifecycle.State()
	if st == StateRestarting {
		changes = s.transition(changes, StateIdle)
	}
	rec := s.recognizer
	logger := s.logger
	s.mu.Unlock()

	s.emitStates(changes)
	logger.Info().Str("state", st.String()).Msg("Speech session stopping")

	if rec != nil && (st == StateStarting || st == StateListening) {
		if err := rec.Stop(); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop recognition engine")
		}
	}
}

// Close stops the session and releases the engine. The session cannot be
// restarted afterwards.
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	s.closed = true
	rec := s.recognizer
	s.mu.Unlock()

	s.cancel()
	if c, ok := rec.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// engineEvents adapts a Session to the engine Callback interface without
// exposing the callback methods on Session itself.
type engineEvents struct{ s *Session }

func (e engineEvents) OnResult(batch Batch) { e.s.handleResult(batch) }
func (e engineEvents) OnError(err error)    { e.s.handleError(err) }
func (e engineEvents) OnEnd()               { e.s.handleEnd() }

// handleResult splits a batch into final and interim text. Final text is appended
// to the ledger, classified and delivered; interim text is delivered verbatim.
func (s *Session) handleResult(batch Batch) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	final, interim := partition(batch)

	s.mu.Lock()
	participant := s.participant
	if interim != "" {
		s.interim = interim
	}
	logger := s.logger
	s.mu.Unlock()

	if final != "" {
		s.finalize(logger, participant, final)
	}
	if interim != "" {
		s.metrics.RecordInterim()
		s.interimTopic.Emit(interim)
	}
}

func (s *Session) finalize(logger zerolog.Logger, participant, text string) {
	_, span := tracing.Tracer().Start(s.ctx, "speech.final")
	defer span.End()

	tr, err := s.ledger.Append(participant, text)
	if err != nil {
		s.metrics.RecordEmptyFinal()
		logger.Debug().Err(err).Msg("Final result dropped")
		return
	}

	cls := s.classifier.Classify(tr.Text)
	span.SetAttributes(
		attribute.Int64("transcript.id", tr.ID),
		attribute.String("transcript.type", string(cls.Type)),
		attribute.String("transcript.emotion", string(cls.Emotion)),
		attribute.Int("transcript.words", cls.WordCount),
	)
	s.metrics.RecordFinal(string(cls.Type), string(cls.Emotion), cls.WordCount)

	logger.Debug().
		Int64("transcriptId", tr.ID).
		Str("type", string(cls.Type)).
		Str("emotion", string(cls.Emotion)).
		Msg("Final transcript")

	s.finalTopic.Emit(FinalEvent{Transcript: tr, Classification: cls})
}

// handleError absorbs no-speech intervals and forwards everything else. Errors
// never stop or restart the session; the following end event decides that.
func (s *Session) handleError(err error) {
	if err == nil {
		return
	}
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	rerr := asRecognitionError(err)
	if rerr.Kind == ErrorNoSpeech {
		s.metrics.RecordNoSpeech()
		s.logger.Debug().Msg("No speech detected")
		return
	}

	s.metrics.RecordRecognitionError(string(rerr.Kind))
	s.logger.Warn().Str("kind", string(rerr.Kind)).Str("detail", rerr.Message).Msg("Recognition error")
	s.errorTopic.Emit(rerr)
}

// handleEnd settles the session in IDLE, or arms a restart while the continuation
// flag is set.
func (s *Session) handleEnd() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	st := s.lifecycle.State()
	if st != StateListening && st != StateStarting {
		s.mu.Unlock()
		s.logger.Debug().Str("state", st.String()).Msg("Ignoring engine end")
		return
	}

	changes := s.transition(nil, StateEnding)
	restart := s.continuing
	if restart {
		changes = s.armRestart(changes)
	} else {
		changes = s.transition(changes, StateIdle)
	}
	logger := s.logger
	s.mu.Unlock()

	s.emitStates(changes)
	if restart {
		logger.Info().Dur("delay", s.opts.RestartDelay).Msg("Recognition ended, restarting")
	} else {
		logger.Info().Msg("Speech session stopped")
	}
}

// armRestart moves to RESTARTING and schedules restart. Caller holds s.mu.
func (s *Session) armRestart(changes []StateChange) []StateChange {
	changes = s.transition(changes, StateRestarting)
	s.generation++
	gen := s.generation
	s.restarts++
	s.metrics.RecordRestart()
	s.timer = time.AfterFunc(s.opts.RestartDelay, func() { s.restart(gen) })
	return changes
}

func (s *Session) restart(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || !s.continuing || s.closed || s.lifecycle.State() != StateRestarting {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	changes := s.transition(nil, StateStarting)
	rec := s.recognizer
	s.mu.Unlock()

	s.emitStates(changes)
	_ = s.begin(rec, true)
}

// transition applies next and appends the change. Caller holds s.mu.
func (s *Session) transition(changes []StateChange, next State) []StateChange {
	change, err := s.lifecycle.Transition(next)
	if err != nil {
		s.logger.Error().Err(err).Msg("Session state machine violation")
		return changes
	}
	s.metrics.RecordState(int(next))
	return append(changes, change)
}

func (s *Session) emitStates(changes []StateChange) {
	for _, c := range changes {
		s.logger.Debug().Str("from", c.From.String()).Str("to", c.To.String()).Msg("Session state change")
		s.stateTopic.Emit(c)
	}
}

// partition walks the new results in order. Final segments are joined with a
// trailing space each; interim segments are concatenated as-is.
func partition(batch Batch) (final, interim string) {
	start := batch.ResultIndex
	if start < 0 {
		start = 0
	}
	var fb, ib strings.Builder
	for i := start; i < len(batch.Results); i++ {
		r := batch.Results[i]
		if r.IsFinal {
			fb.WriteString(r.Transcript)
			fb.WriteString(" ")
		} else {
			ib.WriteString(r.Transcript)
		}
	}
	return fb.String(), ib.String()
}

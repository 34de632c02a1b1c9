package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"zoom-transcript-service/internal/classifier"
	"zoom-transcript-service/internal/ledger"
	"zoom-transcript-service/internal/models"
	"zoom-transcript-service/internal/observability/metrics"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	cfg      Config
	cb       Callback
	stops    int
	startErr error
	starts   chan struct{}
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{starts: make(chan struct{}, 64)}
}

func (f *fakeRecognizer) Configure(cfg Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = cfg
	return nil
}

func (f *fakeRecognizer) Start(_ context.Context, cb Callback) error {
	f.mu.Lock()
	f.cb = cb
	err := f.startErr
	f.mu.Unlock()

	select {
	case f.starts <- struct{}{}:
	default:
	}
	return err
}

func (f *fakeRecognizer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRecognizer) callback() Callback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeRecognizer) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

func (f *fakeRecognizer) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fixture struct {
	session *Session
	rec     *fakeRecognizer
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, delay time.Duration) *fixture {
	t.Helper()
	rec := newFakeRecognizer()
	l := ledger.New()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	s := New(func() (Recognizer, error) { return rec, nil }, l, classifier.New(), Options{
		RestartDelay: delay,
		Metrics:      m,
	})
	t.Cleanup(func() { _ = s.Close() })
	return &fixture{session: s, rec: rec, ledger: l, metrics: m}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func expectStart(t *testing.T, rec *fakeRecognizer) {
	t.Helper()
	select {
	case <-rec.starts:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the engine to be started")
	}
}

func expectNoStart(t *testing.T, rec *fakeRecognizer, window time.Duration) {
	t.Helper()
	select {
	case <-rec.starts:
		t.Fatal("unexpected engine start")
	case <-time.After(window):
	}
}

func TestSession_StartWithoutEngine(t *testing.T) {
	s := New(nil, ledger.New(), classifier.New(), Options{Metrics: metrics.NewMetrics(prometheus.NewRegistry())})
	defer s.Close()

	if err := s.Start("Alice"); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", s.State())
	}
}

func TestSession_StartFactoryError(t *testing.T) {
	factory := func() (Recognizer, error) { return nil, errors.New("no microphone permission") }
	s := New(factory, ledger.New(), classifier.New(), Options{Metrics: metrics.NewMetrics(prometheus.NewRegistry())})
	defer s.Close()

	if err := s.Start("Alice"); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}

func TestSession_StartConfiguresAndListens(t *testing.T) {
	f := newFixture(t, time.Hour)

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectStart(t, f.rec)

	if f.session.State() != StateListening {
		t.Errorf("expected LISTENING, got %s", f.session.State())
	}
	if f.rec.cfg != DefaultConfig() {
		t.Errorf("expected default recognition config, got %+v", f.rec.cfg)
	}
	if f.session.Participant() != "Alice" {
		t.Errorf("expected participant Alice, got %q", f.session.Participant())
	}
	if err := f.session.Start("Bob"); !errors.Is(err, ErrSessionActive) {
		t.Errorf("expected ErrSessionActive on second start, got %v", err)
	}
	if got := testutil.ToFloat64(f.metrics.SessionStarts); got != 1 {
		t.Errorf("expected 1 session start, got %v", got)
	}
}

func TestSession_StartFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, time.Hour)
	f.rec.setStartErr(errors.New("device busy"))

	if err := f.session.Start("Alice"); err == nil {
		t.Fatal("expected start error")
	}
	if f.session.State() != StateIdle {
		t.Errorf("expected IDLE after failed start, got %s", f.session.State())
	}
}

func TestSession_StateChanges(t *testing.T) {
	f := newFixture(t, time.Hour)

	var mu sync.Mutex
	var seen []State
	f.session.OnStateChange(func(c StateChange) {
		mu.Lock()
		seen = append(seen, c.To)
		mu.Unlock()
	})

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.session.Stop()
	f.rec.callback().OnEnd()

	want := []State{StateStarting, StateListening, StateEnding, StateIdle}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], seen[i])
		}
	}
}

func TestSession_ResultDispatch(t *testing.T) {
	tests := []struct {
		name        string
		batch       Batch
		wantFinal   string
		wantInterim string
	}{
		{
			name: "finals joined and interim verbatim",
			batch: Batch{Results: []Result{
				{Transcript: "hello", IsFinal: true},
				{Transcript: "world", IsFinal: true},
				{Transcript: " how are", IsFinal: false},
			}},
			wantFinal:   "hello world",
			wantInterim: " how are",
		},
		{
			name: "result index skips delivered segments",
			batch: Batch{ResultIndex: 1, Results: []Result{
				{Transcript: "already seen", IsFinal: true},
				{Transcript: "next one", IsFinal: true},
			}},
			wantFinal: "next one",
		},
		{
			name: "interim only",
			batch: Batch{Results: []Result{
				{Transcript: "what ti", IsFinal: false},
			}},
			wantInterim: "what ti",
		},
		{
			name: "whitespace final dropped",
			batch: Batch{Results: []Result{
				{Transcript: "   ", IsFinal: true},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, time.Hour)

			var finals []models.Transcript
			var interims []string
			f.session.OnFinal(func(tr models.Transcript, _ models.Classification) { finals = append(finals, tr) })
			f.session.OnInterim(func(text string) { interims = append(interims, text) })

			if err := f.session.Start("Alice"); err != nil {
				t.Fatalf("start: %v", err)
			}
			f.rec.callback().OnResult(tt.batch)

			if tt.wantFinal == "" {
				if len(finals) != 0 {
					t.Errorf("expected no final, got %+v", finals)
				}
				if f.ledger.Len() != 0 {
					t.Errorf("expected empty ledger, got %d", f.ledger.Len())
				}
			} else {
				if len(finals) != 1 {
					t.Fatalf("expected 1 final, got %d", len(finals))
				}
				if finals[0].Text != tt.wantFinal {
					t.Errorf("expected final %q, got %q", tt.wantFinal, finals[0].Text)
				}
				if finals[0].Participant != "Alice" {
					t.Errorf("expected participant Alice, got %q", finals[0].Participant)
				}
			}

			if tt.wantInterim == "" {
				if len(interims) != 0 {
					t.Errorf("expected no interim, got %v", interims)
				}
			} else {
				if len(interims) != 1 || interims[0] != tt.wantInterim {
					t.Errorf("expected interim %q, got %v", tt.wantInterim, interims)
				}
				if f.session.CurrentInterim() != tt.wantInterim {
					t.Errorf("expected current interim %q, got %q", tt.wantInterim, f.session.CurrentInterim())
				}
			}
		})
	}
}

func TestSession_FinalIsClassified(t *testing.T) {
	f := newFixture(t, time.Hour)

	var got models.Classification
	f.session.OnFinal(func(_ models.Transcript, c models.Classification) { got = c })

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.rec.callback().OnResult(Batch{Results: []Result{{Transcript: "Please start the demo", IsFinal: true}}})

	if got.Type != models.TypeCommand || !got.IsCommand || !got.IsQuestion {
		t.Errorf("expected command overriding question, got %+v", got)
	}
}

func TestSession_RestartsAfterEnd(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond)

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectStart(t, f.rec)

	f.rec.callback().OnEnd()
	expectStart(t, f.rec)
	waitFor(t, "listening after restart", func() bool { return f.session.State() == StateListening })

	if f.session.Restarts() != 1 {
		t.Errorf("expected exactly 1 restart, got %d", f.session.Restarts())
	}
	if f.session.Participant() != "Alice" {
		t.Errorf("expected participant kept across restart, got %q", f.session.Participant())
	}
	expectNoStart(t, f.rec, 30*time.Millisecond)
}

func TestSession_StopBeforeEndDoesNotRestart(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond)

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectStart(t, f.rec)

	f.session.Stop()
	if f.rec.stopCount() != 1 {
		t.Errorf("expected engine stop request, got %d", f.rec.stopCount())
	}
	f.rec.callback().OnEnd()

	expectNoStart(t, f.rec, 50*time.Millisecond)
	if f.session.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", f.session.State())
	}
	if f.session.Restarts() != 0 {
		t.Errorf("expected 0 restarts, got %d", f.session.Restarts())
	}
}

// A stop that lands after the end event has armed a restart retracts it.
func TestSession_StopAfterEndCancelsArmedRestart(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectStart(t, f.rec)

	f.rec.callback().OnEnd()
	if f.session.State() != StateRestarting {
		t.Fatalf("expected RESTARTING, got %s", f.session.State())
	}
	f.session.Stop()

	if f.session.State() != StateIdle {
		t.Errorf("expected IDLE after stop, got %s", f.session.State())
	}
	expectNoStart(t, f.rec, 200*time.Millisecond)
}

func TestSession_IDsIncreaseAcrossRestarts(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	var ids []int64
	var mu sync.Mutex
	f.session.OnFinal(func(tr models.Transcript, _ models.Classification) {
		mu.Lock()
		ids = append(ids, tr.ID)
		mu.Unlock()
	})

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectStart(t, f.rec)

	for i := 0; i < 3; i++ {
		f.rec.callback().OnResult(Batch{Results: []Result{{Transcript: "segment", IsFinal: true}}})
		f.rec.callback().OnEnd()
		expectStart(t, f.rec)
		waitFor(t, "listening", func() bool { return f.session.State() == StateListening })
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ids) != 3 {
		t.Fatalf("expected 3 finals, got %d", len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("ids not increasing: %v", ids)
		}
	}
}

func TestSession_ErrorHandling(t *testing.T) {
	f := newFixture(t, time.Hour)

	var got []*RecognitionError
	f.session.OnError(func(err *RecognitionError) { got = append(got, err) })

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	cb := f.rec.callback()

	cb.OnError(NewRecognitionError(ErrorNoSpeech, "silence"))
	if len(got) != 0 {
		t.Fatalf("no-speech must not be forwarded, got %+v", got)
	}

	cb.OnError(NewRecognitionError(ErrorNetwork, "connection reset"))
	cb.OnError(errors.New("stream broken"))
	if len(got) != 2 {
		t.Fatalf("expected 2 forwarded errors, got %d", len(got))
	}
	if got[0].Kind != ErrorNetwork || got[1].Kind != ErrorNetwork {
		t.Errorf("expected network kinds, got %s and %s", got[0].Kind, got[1].Kind)
	}
	if f.session.State() != StateListening {
		t.Errorf("errors must not stop the session, state=%s", f.session.State())
	}
	if got := testutil.ToFloat64(f.metrics.NoSpeechEvents); got != 1 {
		t.Errorf("expected 1 no-speech event, got %v", got)
	}
}

func TestSession_FailedRestartIsReportedAndRetried(t *testing.T) {
	f := newFixture(t, 5*time.Millisecond)

	errs := make(chan *RecognitionError, 16)
	f.session.OnError(func(err *RecognitionError) {
		select {
		case errs <- err:
		default:
		}
	})

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectStart(t, f.rec)

	f.rec.setStartErr(errors.New("engine busy"))
	f.rec.callback().OnEnd()

	select {
	case err := <-errs:
		if err.Kind != ErrorAborted {
			t.Errorf("expected aborted kind, got %s", err.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected failed restart to be reported")
	}
	waitFor(t, "second restart", func() bool { return f.session.Restarts() >= 2 })

	f.session.Stop()
	waitFor(t, "idle", func() bool { return f.session.State() == StateIdle })
}

func TestSession_StartWhileRestartingUpdatesParticipant(t *testing.T) {
	f := newFixture(t, time.Hour)

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.rec.callback().OnEnd()

	if err := f.session.Start("Bob"); err != nil {
		t.Fatalf("start while restarting: %v", err)
	}
	if f.session.Participant() != "Bob" {
		t.Errorf("expected participant Bob, got %q", f.session.Participant())
	}
	if f.session.State() != StateRestarting {
		t.Errorf("expected RESTARTING, got %s", f.session.State())
	}
}

func TestSession_EndWhileIdleIgnored(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	if err := f.session.Start("Alice"); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.session.Stop()
	cb := f.rec.callback()
	cb.OnEnd()
	cb.OnEnd()

	if f.session.State() != StateIdle {
		t.Errorf("expected IDLE, got %s", f.session.State())
	}
}

func TestSession_Close(t *testing.T) {
	f := newFixture(t, time.Hour)

	if err := f.session.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := f.session.Start("Alice"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

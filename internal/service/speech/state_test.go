package speech

import (
	"errors"
	"testing"
)

func TestLifecycle_InitialState(t *testing.T) {
	lc := NewLifecycle()

	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
	if lc.State().IsActive() {
		t.Error("expected idle to be inactive")
	}
}

func TestLifecycle_FullRestartCycle(t *testing.T) {
	lc := NewLifecycle()

	path := []State{StateStarting, StateListening, StateEnding, StateRestarting, StateStarting, StateListening, StateEnding, StateIdle}
	for _, next := range path {
		from := lc.State()
		change, err := lc.Transition(next)
		if err != nil {
			t.Fatalf("%s -> %s: unexpected error: %v", from, next, err)
		}
		if change.From != from || change.To != next {
			t.Errorf("unexpected change %+v", change)
		}
	}
	if lc.State() != StateIdle {
		t.Errorf("expected StateIdle, got %v", lc.State())
	}
}

func TestLifecycle_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []State
		next  State
	}{
		{"idle to listening", nil, StateListening},
		{"idle to ending", nil, StateEnding},
		{"listening to idle", []State{StateStarting, StateListening}, StateIdle},
		{"listening to starting", []State{StateStarting, StateListening}, StateStarting},
		{"ending to listening", []State{StateStarting, StateListening, StateEnding}, StateListening},
		{"restarting to listening", []State{StateStarting, StateListening, StateEnding, StateRestarting}, StateListening},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := NewLifecycle()
			for _, s := range tt.setup {
				if _, err := lc.Transition(s); err != nil {
					t.Fatalf("setup %s: %v", s, err)
				}
			}
			before := lc.State()
			if lc.canTransition(tt.next) {
				t.Errorf("expected canTransition(%s) false", tt.next)
			}
			if _, err := lc.Transition(tt.next); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if lc.State() != before {
				t.Errorf("state changed on invalid transition: %s -> %s", before, lc.State())
			}
		})
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:       "IDLE",
		StateStarting:   "STARTING",
		StateListening:  "LISTENING",
		StateEnding:     "ENDING",
		StateRestarting: "RESTARTING",
		State(42):       "UNKNOWN(42)",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %s, want %s", int(s), s.String(), want)
		}
	}
}

func TestRecognitionError(t *testing.T) {
	err := NewRecognitionError(ErrorNetwork, "connection reset")
	if err.Error() != "recognition error: network: connection reset" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if IsNoSpeech(err) {
		t.Error("network error is not no-speech")
	}
	if !IsNoSpeech(NewRecognitionError(ErrorNoSpeech, "")) {
		t.Error("expected no-speech to be detected")
	}
	if got := asRecognitionError(errors.New("eof")); got.Kind != ErrorNetwork {
		t.Errorf("expected foreign errors to map to network, got %s", got.Kind)
	}
}

package speech

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a speech session.
type State int

const (
	// StateIdle - no engine activity; waiting for Start.
	StateIdle State = iota
	// StateStarting - the engine has been asked to begin.
	StateStarting
	// StateListening - the engine is delivering results.
	StateListening
	// StateEnding - the engine reported its end; deciding whether to restart.
	StateEnding
	// StateRestarting - a restart is armed and will fire after the restart delay.
	StateRestarting
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateListening:
		return "LISTENING"
	case StateEnding:
		return "ENDING"
	case StateRestarting:
		return "RESTARTING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsActive returns true if the session intends to be listening.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateListening || s == StateRestarting
}

// ErrInvalidTransition is returned for transitions the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid session state transition")

// transitions lists the allowed moves.
//
//	IDLE → STARTING → LISTENING → ENDING → IDLE
//	          │  ▲                   │
//	          │  └──── RESTARTING ◄──┘
//	          └──► IDLE / ENDING / RESTARTING (start failed or ended early)
var transitions = map[State][]State{
	StateIdle:       {StateStarting},
	StateStarting:   {StateListening, StateEnding, StateIdle, StateRestarting},
	StateListening:  {StateEnding},
	StateEnding:     {StateIdle, StateRestarting},
	StateRestarting: {StateStarting, StateIdle},
}

// StateChange describes one transition.
type StateChange struct {
	From State
	To   State
}

// Lifecycle is the session state machine. Thread-safe for concurrent access.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// canTransition reports whether moving to next is allowed from the current state.
func (l *Lifecycle) canTransition(next State) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return allowed(l.state, next)
}

// Transition moves to next, or returns ErrInvalidTransition.
func (l *Lifecycle) Transition(next State) (StateChange, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !allowed(l.state, next) {
		return StateChange{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, next)
	}
	change := StateChange{From: l.state, To: next}
	l.state = next
	return change, nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

package session

import (
	"sync"
	"time"
)

// State is the lifecycle position of one conversation session.
type State int

const (
	// StateConnecting covers the window between transport accept and the
	// session being registered and ready for utterances.
	StateConnecting State = iota
	// StateReady means the session is registered and waiting for the
	// first utterance.
	StateReady
	// StateActive means a reply cycle is in flight.
	StateActive
	// StateIdle means at least one cycle completed and nothing is pending.
	StateIdle
	// StateClosing means teardown has begun; no new cycles start.
	StateClosing
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateActive:
		return "ACTIVE"
	case StateIdle:
		return "IDLE"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// StateChange represents a state transition event.
type StateChange struct {
	FromState State
	ToState   State
	Timestamp time.Time
	Reason    string
}

// StateListener observes session state changes.
type StateListener interface {
	OnStateChange(event StateChange)
}

// InvalidTransitionError represents an invalid state transition attempt.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return "invalid state transition from " + e.From.String() + " to " + e.To.String()
}

// stateMachine implements the session lifecycle finite state machine.
type stateMachine struct {
	currentState State
	mu           sync.RWMutex

	stateChangeListeners []StateListener
}

func newStateMachine() *stateMachine {
	return &stateMachine{currentState: StateConnecting}
}

// State returns the current state.
func (sm *stateMachine) State() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// transitionValid checks if a state transition is valid.
func transitionValid(from, to State) bool {
	validTransitions := map[State][]State{
		StateConnecting: {StateReady, StateClosing},
		StateReady:      {StateActive, StateClosing},
		StateActive:     {StateIdle, StateClosing},
		StateIdle:       {StateActive, StateClosing},
		StateClosing:    {StateClosed},
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves to a new state with validation. Listeners are notified
// outside the lock.
func (sm *stateMachine) Transition(state State, reason string) error {
	sm.mu.Lock()
	if !transitionValid(sm.currentState, state) {
		defer sm.mu.Unlock()
		return &InvalidTransitionError{From: sm.currentState, To: state}
	}

	event := StateChange{
		FromState: sm.currentState,
		ToState:   state,
		Timestamp: time.Now(),
		Reason:    reason,
	}
	sm.currentState = state

	listeners := make([]StateListener, len(sm.stateChangeListeners))
	copy(listeners, sm.stateChangeListeners)
	sm.mu.Unlock()

	for _, listener := range listeners {
		listener.OnStateChange(event)
	}
	return nil
}

// AddListener registers a listener for state change events.
func (sm *stateMachine) AddListener(listener StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.stateChangeListeners = append(sm.stateChangeListeners, listener)
}

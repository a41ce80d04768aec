package capture

import (
	"errors"
	"slices"
	"time"
)

// State is a step of a capture session.
type State string

const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StateSubmitted State = "submitted"
	StateResult    State = "result"
	StateFailed    State = "failed"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// Every state may also return to idle through Cancel.
var ValidTransitions = map[State][]State{
	StateIdle:      {StateCapturing},
	StateCapturing: {StateSubmitted, StateIdle},
	StateSubmitted: {StateResult, StateFailed, StateIdle},
	StateResult:    {StateIdle},
	StateFailed:    {StateSubmitted, StateIdle},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	return slices.Contains(ValidTransitions[from], to)
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateIdle:
		return "Idle - ready to capture"
	case StateCapturing:
		return "Capturing - waiting for the camera"
	case StateSubmitted:
		return "Submitted - recognition in progress"
	case StateResult:
		return "Result - recognition finished"
	case StateFailed:
		return "Failed - recognition could not complete"
	default:
		return "Unknown state"
	}
}

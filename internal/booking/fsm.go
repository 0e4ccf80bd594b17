// Package booking validates booking requests and commits them atomically
// against the appointment registry.
package booking

import (
	"sync"
	"time"
)

// State represents the current state of a booking attempt.
type State string

const (
	StateRequested  State = "requested"
	StateValidating State = "validating"
	StateCommitting State = "committing"
	StateConfirmed  State = "confirmed"
	StateRejected   State = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateRejected
}

// Attempt tracks one Book call through the state machine.
type Attempt struct {
	State     State
	Reason    error
	StartedAt time.Time
	UpdatedAt time.Time
	mu        sync.Mutex
}

// NewAttempt creates an attempt in the requested state.
func NewAttempt() *Attempt {
	now := time.Now()
	return &Attempt{State: StateRequested, StartedAt: now, UpdatedAt: now}
}

// GetState returns current state.
func (a *Attempt) GetState() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.State
}

func (a *Attempt) setState(state State, reason error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.State = state
	a.Reason = reason
	a.UpdatedAt = time.Now()
}

// Elapsed returns the time between the request and the latest transition.
func (a *Attempt) Elapsed() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.UpdatedAt.Sub(a.StartedAt)
}

// FSM manages state transitions for booking attempts.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateRequested:  {StateValidating},
			StateValidating: {StateCommitting, StateRejected},
			StateCommitting: {StateConfirmed, StateRejected},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition moves the attempt to state if allowed. reason is recorded for
// rejections and ignored otherwise.
func (f *FSM) Transition(a *Attempt, to State, reason error) bool {
	if !f.CanTransition(a.GetState(), to) {
		return false
	}
	if to != StateRejected {
		reason = nil
	}
	a.setState(to, reason)
	return true
}

package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition   = errors.New("no transition available")
	ErrRejected       = errors.New("transition rejected by guards")
	ErrActionFailed   = errors.New("transition action failed")
	ErrNoSourceStates = errors.New("at least one source state is required")
)

// TransitionError carries the state and event of a failed Fire.
type TransitionError struct {
	State string
	Event string
	err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: state %q, event %q", e.err, e.State, e.Event)
}

func (e *TransitionError) Unwrap() error { return e.err }

func newNoTransitionError(state, event any) error {
	return &TransitionError{State: fmt.Sprint(state), Event: fmt.Sprint(event), err: ErrNoTransition}
}

func newRejectedError(state, event any) error {
	return &TransitionError{State: fmt.Sprint(state), Event: fmt.Sprint(event), err: ErrRejected}
}

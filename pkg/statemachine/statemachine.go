package statemachine

import "context"

// Guard reports whether a transition may proceed for the given input.
type Guard[S, E comparable] func(ctx context.Context, from S, event E, data any) bool

// Action runs side effects before the state changes. Returning an error
// aborts the transition and leaves the machine in its previous state.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E, data any) error

// Listener observes committed transitions. It runs after the state has
// changed and outside the machine lock, so it may call back into the machine.
type Listener[S, E comparable] func(from, to S, event E)

// Transition defines a state change triggered by an event.
type Transition[S, E comparable] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]  // all must pass
	Actions []Action[S, E] // executed in order before the state change
}

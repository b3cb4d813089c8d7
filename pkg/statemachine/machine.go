package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// Machine is a thread-safe finite state machine over comparable state and
// event types. Transitions are indexed as [from][event].
type Machine[S, E comparable] struct {
	current     S
	transitions map[S]map[E][]Transition[S, E]
	listeners   []Listener[S, E]
	mu          sync.RWMutex
}

func newMachine[S, E comparable](initial S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     initial,
		transitions: make(map[S]map[E][]Transition[S, E]),
	}
}

func (m *Machine[S, E]) addTransition(t Transition[S, E]) {
	byEvent, ok := m.transitions[t.From]
	if !ok {
		byEvent = make(map[E][]Transition[S, E])
		m.transitions[t.From] = byEvent
	}
	// Several transitions per from/event pair allow guard-based branching.
	byEvent[t.Event] = append(byEvent[t.Event], t)
}

// Current returns the current state.
func (m *Machine[S, E]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event to the current state. The first transition whose guards
// all pass wins. Listeners are notified after the state is committed.
func (m *Machine[S, E]) Fire(ctx context.Context, event E, data any) error {
	m.mu.Lock()

	from := m.current
	candidates := m.transitions[from][event]
	if len(candidates) == 0 {
		m.mu.Unlock()
		return newNoTransitionError(from, event)
	}

	t, ok := m.selectTransition(ctx, candidates, from, event, data)
	if !ok {
		m.mu.Unlock()
		return newRejectedError(from, event)
	}

	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("%w: %w", ErrActionFailed, err)
		}
	}

	m.current = t.To
	listeners := m.listeners
	m.mu.Unlock()

	for _, l := range listeners {
		l(from, t.To, event)
	}
	return nil
}

func (m *Machine[S, E]) selectTransition(ctx context.Context, candidates []Transition[S, E], from S, event E, data any) (Transition[S, E], bool) {
	for _, t := range candidates {
		if guardsPass(ctx, t.Guards, from, event, data) {
			return t, true
		}
	}
	return Transition[S, E]{}, false
}

func guardsPass[S, E comparable](ctx context.Context, guards []Guard[S, E], from S, event E, data any) bool {
	for _, g := range guards {
		if !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}

package connectivity

import (
	"context"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
)

// ManualMonitor reports whatever state it was last given.
type ManualMonitor struct {
	state
}

// NewManualMonitor creates a monitor whose state only changes through Set.
func NewManualMonitor(initial State) *ManualMonitor {
	m := &ManualMonitor{state: newState()}
	m.set(context.Background(), initial)
	return m
}

// Set changes the state and notifies subscribers when it differs.
func (m *ManualMonitor) Set(s State) {
	m.set(context.Background(), s)
}

func (m *ManualMonitor) Current() State { return m.current() }

func (m *ManualMonitor) Subscribe(ctx context.Context) broadcast.Subscriber[State] {
	return m.stream.Subscribe(ctx)
}

func (m *ManualMonitor) Check(context.Context) State { return m.current() }

func (m *ManualMonitor) Close() error { return m.stream.Close() }

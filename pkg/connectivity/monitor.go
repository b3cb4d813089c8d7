package connectivity

import (
	"context"

	"github.com/dmitrymomot/arcana/pkg/broadcast"
)

// State is the last known reachability.
type State int

const (
	StateUnknown State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Monitor reports connectivity changes.
type Monitor interface {
	// Current returns the last known state without probing.
	Current() State
	// Subscribe replays the current state, then every change, until ctx ends.
	Subscribe(ctx context.Context) broadcast.Subscriber[State]
	// Check probes now and returns the resulting state.
	Check(ctx context.Context) State
	Close() error
}

// state holds the shared bookkeeping of both monitors.
type state struct {
	stream *broadcast.Replay[State]
}

func newState() state {
	return state{stream: broadcast.NewReplayWith(4, StateUnknown)}
}

func (s state) current() State {
	v, _ := s.stream.Current()
	return v
}

// set publishes v if it differs from the current state and reports whether
// it did.
func (s state) set(ctx context.Context, v State) bool {
	if s.current() == v {
		return false
	}
	_ = s.stream.Publish(ctx, v)
	return true
}

package broadcast

import (
	"context"
	"sync"
)

// Message wraps a value, or an upstream error, for type-safe broadcasting.
type Message[T any] struct {
	Data T
	Err  error
}

// Subscriber receives messages from a Replay.
type Subscriber[T any] interface {
	// Receive returns the channel messages are delivered on. The channel is
	// closed when the subscriber, its context or the broadcaster is closed.
	Receive(ctx context.Context) <-chan Message[T]

	// Close stops delivery. It is idempotent.
	Close() error
}

type subscriber[T any] struct {
	ch     chan Message[T]
	closed bool
	mu     sync.Mutex
}

func newSubscriber[T any](bufferSize int) *subscriber[T] {
	return &subscriber[T]{
		ch: make(chan Message[T], bufferSize),
	}
}

func (s *subscriber[T]) Receive(ctx context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// send delivers msg without blocking. When the buffer is full the oldest
// pending message is dropped. Returns false once the subscriber is closed.
func (s *subscriber[T]) send(msg Message[T]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	for {
		select {
		case s.ch <- msg:
			return true
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Closed returns a subscriber whose channel is already closed.
func Closed[T any]() Subscriber[T] {
	sub := newSubscriber[T](1)
	_ = sub.Close()
	return sub
}

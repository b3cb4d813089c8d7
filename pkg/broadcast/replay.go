package broadcast

import (
	"context"
	"sync"
)

// Replay is a stateful broadcaster: it remembers the last published value
// and replays it to every new subscriber. All methods are safe for
// concurrent use.
type Replay[T any] struct {
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	current     T
	hasCurrent  bool
	closed      bool
	done        chan struct{}
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// NewReplay creates an empty Replay. bufferSize is the per-subscriber
// channel buffer; values below 1 are raised to 1.
func NewReplay[T any](bufferSize int) *Replay[T] {
	return &Replay[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
		done:        make(chan struct{}),
	}
}

// NewReplayWith creates a Replay seeded with an initial value.
func NewReplayWith[T any](bufferSize int, initial T) *Replay[T] {
	r := NewReplay[T](bufferSize)
	r.current = initial
	r.hasCurrent = true
	return r
}

// Subscribe registers a subscriber. The current value, if any, is queued
// before the call returns. The subscription ends when ctx is cancelled.
func (r *Replay[T]) Subscribe(ctx context.Context) Subscriber[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Closed[T]()
	}

	sub := newSubscriber[T](r.bufferSize)
	if r.hasCurrent {
		sub.send(Message[T]{Data: r.current})
	}
	r.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		r.cleanupWg.Add(1)
		go func() {
			defer r.cleanupWg.Done()
			select {
			case <-ctx.Done():
				r.unsubscribe(sub)
			case <-r.done:
			}
		}()
	}

	return sub
}

// Publish stores v as the current value and delivers it to all subscribers.
// Publishing on a closed Replay is a no-op.
func (r *Replay[T]) Publish(ctx context.Context, v T) error {
	return r.Broadcast(ctx, Message[T]{Data: v})
}

// PublishError delivers an error message without touching the current value.
func (r *Replay[T]) PublishError(ctx context.Context, err error) error {
	return r.Broadcast(ctx, Message[T]{Err: err})
}

// Broadcast delivers msg. Messages without an error replace the current value.
func (r *Replay[T]) Broadcast(_ context.Context, msg Message[T]) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	if msg.Err == nil {
		r.current = msg.Data
		r.hasCurrent = true
	}

	var stale []*subscriber[T]
	for sub := range r.subscribers {
		if !sub.send(msg) {
			stale = append(stale, sub)
		}
	}
	for _, sub := range stale {
		delete(r.subscribers, sub)
	}
	r.mu.Unlock()

	return nil
}

// Current returns the last published value.
func (r *Replay[T]) Current() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.hasCurrent
}

// SubscriberCount returns the number of live subscribers.
func (r *Replay[T]) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Close closes every subscriber. Later calls to Subscribe return closed
// subscribers and Publish becomes a no-op. Close is idempotent.
func (r *Replay[T]) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	for sub := range r.subscribers {
		_ = sub.Close()
	}
	clear(r.subscribers)
	r.mu.Unlock()

	r.cleanupWg.Wait()
	return nil
}

func (r *Replay[T]) unsubscribe(sub *subscriber[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.subscribers, sub)
	_ = sub.Close()
}

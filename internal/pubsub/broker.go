// Package pubsub fans issue events out from the GitHub poller to the
// pipeline workers and any other listeners.
package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

// EventType describes the kind of event.
type EventType string

const (
	Created EventType = "created"
	Updated EventType = "updated"
	Closed  EventType = "closed"
)

// Event wraps a typed payload with an event type.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// DefaultBufferSize is the channel buffer size for each subscriber.
const DefaultBufferSize = 64

// Broker is a generic, thread-safe publish/subscribe broker. Publishing
// never blocks: a subscriber whose buffer is full misses the event and the
// drop is counted.
type Broker[T any] struct {
	mu      sync.RWMutex
	subs    map[chan Event[T]]struct{}
	buffer  int
	dropped atomic.Int64
}

// Option configures a Broker.
type Option func(*brokerConfig)

type brokerConfig struct {
	buffer int
}

// WithBufferSize sets the per-subscriber channel buffer.
func WithBufferSize(n int) Option {
	return func(c *brokerConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// NewBroker creates a new Broker.
func NewBroker[T any](opts ...Option) *Broker[T] {
	cfg := brokerConfig{buffer: DefaultBufferSize}
	for _, o := range opts {
		o(&cfg)
	}
	return &Broker[T]{
		subs:   make(map[chan Event[T]]struct{}),
		buffer: cfg.buffer,
	}
}

// Subscribe creates a new subscription. The returned channel receives events
// until the provided context is cancelled, at which point the channel is
// closed and the subscription is removed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], b.buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish broadcasts an event to all active subscribers.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	evt := Event[T]{Type: eventType, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broker[T]) Dropped() int64 {
	return b.dropped.Load()
}

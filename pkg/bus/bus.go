// Package bus implements the in-process publish/subscribe dispatcher that
// decouples webhook ingestion from message handling.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"chatbridge/pkg/message"
)

// Handler consumes one published payload. Handlers receive an independent
// reference to the payload and must not assume exclusive mutation rights
// over shared fields.
type Handler func(context.Context, message.Document)

// Subscription identifies one registered handler for later cancellation.
type Subscription struct {
	topic string
	id    uint64
	bus   *EventBus
	once  sync.Once
}

// Cancel removes the handler from its topic. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.bus == nil {
		return
	}
	s.once.Do(func() {
		s.bus.remove(s.topic, s.id)
	})
}

type subscriber struct {
	id      uint64
	handler Handler
}

// EventBus is a topic-keyed dispatcher. Delivery is at most once per
// currently registered handler, in registration order within a single
// Publish call. No persistence, no replay, no cross-process transport.
type EventBus struct {
	log *slog.Logger

	mu        sync.RWMutex
	topics    map[string][]subscriber
	nextSubID uint64

	done      chan struct{}
	closeOnce sync.Once
}

// New constructs an empty bus.
func New(log *slog.Logger) *EventBus {
	if log == nil {
		log = slog.Default()
	}
	return &EventBus{
		log:    log.With("component", "bus"),
		topics: make(map[string][]subscriber),
		done:   make(chan struct{}),
	}
}

// Subscribe registers handler for topic and returns its subscription handle.
func (b *EventBus) Subscribe(topic string, handler Handler) *Subscription {
	if handler == nil {
		return &Subscription{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	b.topics[topic] = append(b.topics[topic], subscriber{id: id, handler: handler})

	return &Subscription{topic: topic, id: id, bus: b}
}

// Unsubscribe cancels sub. Equivalent to sub.Cancel.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	sub.Cancel()
}

// Publish invokes every handler currently subscribed to topic, in
// registration order. A panicking handler is logged and does not stop
// delivery to later handlers or abort the publisher.
func (b *EventBus) Publish(ctx context.Context, topic string, payload message.Document) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-b.done:
		return false
	case <-ctx.Done():
		return false
	default:
	}

	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.invoke(ctx, topic, sub, payload)
	}
	return true
}

func (b *EventBus) invoke(ctx context.Context, topic string, sub subscriber, payload message.Document) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("Subscriber panicked", "topic", topic, "panic", r)
		}
	}()
	sub.handler(ctx, payload)
}

func (b *EventBus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, sub := range subs {
		if sub.id == id {
			b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Close stops the bus; subsequent publishes are rejected.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)

		b.mu.Lock()
		b.topics = make(map[string][]subscriber)
		b.mu.Unlock()
	})
}

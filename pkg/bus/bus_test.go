package bus

import (
	"context"
	"testing"

	"chatbridge/pkg/message"
)

func TestPublishInvokesSubscribersInRegistrationOrder(t *testing.T) {
	b := New(nil)
	t.Cleanup(b.Close)

	var order []string
	b.Subscribe("topic", func(context.Context, message.Document) {
		order = append(order, "first")
	})
	b.Subscribe("topic", func(context.Context, message.Document) {
		order = append(order, "second")
	})

	if ok := b.Publish(context.Background(), "topic", message.Document{}); !ok {
		t.Fatal("expected publish to succeed")
	}

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestPublishOnlyMatchingTopic(t *testing.T) {
	b := New(nil)
	t.Cleanup(b.Close)

	var calls int
	b.Subscribe("a", func(context.Context, message.Document) { calls++ })

	b.Publish(context.Background(), "b", message.Document{})
	if calls != 0 {
		t.Fatalf("calls = %d, want 0 for unrelated topic", calls)
	}

	b.Publish(context.Background(), "a", message.Document{})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(nil)
	t.Cleanup(b.Close)

	var calls int
	sub := b.Subscribe("topic", func(context.Context, message.Document) { calls++ })
	b.Publish(context.Background(), "topic", message.Document{})

	sub.Cancel()
	sub.Cancel() // repeated cancel is safe
	b.Publish(context.Background(), "topic", message.Document{})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1 after unsubscribe", calls)
	}
}

func TestUnsubscribeKeepsOtherSubscribers(t *testing.T) {
	b := New(nil)
	t.Cleanup(b.Close)

	var first, second int
	subFirst := b.Subscribe("topic", func(context.Context, message.Document) { first++ })
	b.Subscribe("topic", func(context.Context, message.Document) { second++ })

	b.Unsubscribe(subFirst)
	b.Publish(context.Background(), "topic", message.Document{})

	if first != 0 {
		t.Fatalf("first = %d, want 0", first)
	}
	if second != 1 {
		t.Fatalf("second = %d, want 1", second)
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := New(nil)

	var calls int
	b.Subscribe("topic", func(context.Context, message.Document) { calls++ })
	b.Close()

	if ok := b.Publish(context.Background(), "topic", message.Document{}); ok {
		t.Fatal("expected publish to fail after close")
	}
	if calls != 0 {
		t.Fatalf("calls = %d, want 0", calls)
	}
}

func TestPublishCanceledContext(t *testing.T) {
	b := New(nil)
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := b.Publish(ctx, "topic", message.Document{}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
}

func TestPanickingSubscriberDoesNotStopDelivery(t *testing.T) {
	b := New(nil)
	t.Cleanup(b.Close)

	var delivered bool
	b.Subscribe("topic", func(context.Context, message.Document) { panic("boom") })
	b.Subscribe("topic", func(context.Context, message.Document) { delivered = true })

	b.Publish(context.Background(), "topic", message.Document{})

	if !delivered {
		t.Fatal("expected delivery to continue past panicking subscriber")
	}
}

func TestSubscribeNilHandlerIsInert(t *testing.T) {
	b := New(nil)
	t.Cleanup(b.Close)

	sub := b.Subscribe("topic", nil)
	sub.Cancel()

	if ok := b.Publish(context.Background(), "topic", message.Document{}); !ok {
		t.Fatal("expected publish to succeed with no subscribers")
	}
}

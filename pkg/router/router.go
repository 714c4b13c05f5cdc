// Package router resolves delivery addresses and dispatches canonical
// messages between the support desk and the channel adapters.
package router

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"chatbridge/pkg/channel"
	"chatbridge/pkg/message"
)

const eventMessageCreated = "message_created"

// Router connects the support-desk outbound path to channel adapters and
// forwards normalized inbound messages to one application handler.
//
// Every failure is scoped to the single payload being processed: malformed
// input, unroutable events, and delivery errors are logged drops, never
// propagated to the caller.
type Router struct {
	registry *channel.Registry
	log      *slog.Logger

	mu       sync.RWMutex
	incoming channel.Handler
}

// New constructs a router over the given adapter registry.
func New(registry *channel.Registry, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		registry: registry,
		log:      log.With("component", "router"),
	}
}

// OnIncoming registers the application handler for inbound messages. This is
// the extension point for conversational logic; the router itself only
// forwards.
func (r *Router) OnIncoming(handler channel.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incoming = handler
}

// HandleIncoming forwards one normalized inbound message to the registered
// application handler.
func (r *Router) HandleIncoming(ctx context.Context, msg message.UnifiedMessage) {
	r.mu.RLock()
	handler := r.incoming
	r.mu.RUnlock()

	if handler == nil {
		r.log.Warn("No incoming handler registered, dropping message", "channel", msg.Channel, "sender_id", msg.SenderID)
		return
	}

	if err := handler(ctx, msg); err != nil {
		r.log.Error("Incoming handler failed", "channel", msg.Channel, "sender_id", msg.SenderID, "error", err)
	}
}

// HandleOutgoing processes one raw support-desk "message created" webhook
// payload and dispatches its text to the proper channel adapter.
//
// The channel is read from conversation.meta.channel, injected by the
// webhook boundary; the router trusts it completely and performs no
// independent channel detection. The recipient is always derived from the
// payload, never read from the support desk.
func (r *Router) HandleOutgoing(ctx context.Context, payload message.Document) {
	event, ok := payload.Dig("event")
	eventName, isString := event.(string)
	if !ok || !isString {
		r.log.Warn("Invalid support-desk payload, no event field")
		return
	}

	if eventName != eventMessageCreated {
		r.log.Info("Ignored support-desk event", "event", eventName)
		return
	}
	if private, _ := payload.Dig("private"); private == true {
		r.log.Info("Ignored private message")
		return
	}
	if messageType := payload.DigString("message_type"); messageType != "outgoing" {
		r.log.Info("Ignored message type", "message_type", messageType)
		return
	}

	rawChannel := payload.DigString("conversation", "meta", "channel")
	if rawChannel == "" {
		r.log.Warn("Missing channel in payload metadata, dropping message")
		return
	}
	ch := message.ParseChannel(rawChannel)

	recipientID, _ := ResolveRecipient(ch, payload)
	text := strings.TrimSpace(payload.DigString("content"))

	if !ch.Known() || recipientID == "" || text == "" {
		r.log.Warn("Unroutable outgoing message", "channel", rawChannel, "recipient_id", recipientID, "has_text", text != "")
		return
	}

	r.Dispatch(ctx, ch, recipientID, text)
}

// Dispatch sends text to recipientID via the adapter registered for ch. A
// missing adapter is an operator-fixable configuration gap: logged, never
// fatal.
func (r *Router) Dispatch(ctx context.Context, ch message.Channel, recipientID, text string) {
	adapter, ok := r.registry.Get(ch)
	if !ok {
		r.log.Warn("No adapter for channel", "channel", ch)
		return
	}

	if err := adapter.SendText(ctx, recipientID, message.TextContent{Text: text}); err != nil {
		r.log.Error("Adapter send failed", "channel", ch, "recipient_id", recipientID, "error", err)
		return
	}

	r.log.Info("Dispatched outgoing message", "channel", ch, "recipient_id", recipientID)
}

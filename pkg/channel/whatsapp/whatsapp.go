// Package whatsapp implements the WhatsApp channel adapter backed by the
// Wasender API. Inbound traffic arrives through webhook events on the bus;
// outbound text goes through the Wasender REST endpoint.
package whatsapp

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
	"chatbridge/pkg/config"
	"chatbridge/pkg/message"
)

const eventMessagesUpsert = "messages.upsert"

// Adapter normalizes Wasender webhook payloads into canonical messages and
// sends outgoing text through the Wasender API.
type Adapter struct {
	channel.TextOnly

	cfg    config.WasenderConfig
	events *bus.EventBus
	log    *slog.Logger

	mu      sync.RWMutex
	state   channel.State
	handler channel.Handler
	client  *Client
	sub     *bus.Subscription
}

// NewAdapter validates Wasender configuration and constructs an adapter.
func NewAdapter(cfg config.WasenderConfig, events *bus.EventBus, log *slog.Logger) (*Adapter, error) {
	if !cfg.Enabled() {
		return nil, errors.New("channels.wasender requires webhook_id, webhook_secret, and api_key")
	}
	if events == nil {
		return nil, errors.New("event bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:    cfg,
		events: events,
		log:    log.With("component", "channel.whatsapp"),
		state:  channel.StateStopped,
	}, nil
}

// Name returns the channel identifier used in the registry and logs.
func (a *Adapter) Name() message.Channel {
	return message.ChannelWhatsApp
}

// OnMessage registers the inbound handler. Must be called before Start.
func (a *Adapter) OnMessage(handler channel.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = handler
}

// State reports the adapter lifecycle state.
func (a *Adapter) State() channel.State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Start opens the outbound client and subscribes to inbound webhook events.
func (a *Adapter) Start(_ context.Context) error {
	a.mu.Lock()
	a.state = channel.StateStarting
	a.client = NewClient(a.cfg.BaseURL, a.cfg.APIKey)
	a.mu.Unlock()

	sub := a.events.Subscribe(bus.TopicWasenderIncoming, a.handleIncoming)

	a.mu.Lock()
	a.sub = sub
	a.state = channel.StateRunning
	a.mu.Unlock()

	a.log.Info("WhatsApp adapter started")
	return nil
}

// Stop removes the bus subscription and releases the outbound transport.
func (a *Adapter) Stop(_ context.Context) error {
	a.mu.Lock()
	a.state = channel.StateStopping
	sub := a.sub
	client := a.client
	a.sub = nil
	a.client = nil
	a.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if client != nil {
		client.Close()
	}

	a.mu.Lock()
	a.state = channel.StateStopped
	a.mu.Unlock()

	a.log.Info("WhatsApp adapter stopped")
	return nil
}

// handleIncoming normalizes one Wasender messages.upsert payload. Echoes of
// our own sends, non-text content, and payloads without a delivery-capable
// sender reference are dropped here so they never reach the router.
func (a *Adapter) handleIncoming(ctx context.Context, payload message.Document) {
	if event := payload.DigString("event"); event != eventMessagesUpsert {
		a.log.Info("Ignored webhook event", "event", event)
		return
	}

	if fromMe, _ := payload.Dig("data", "messages", "key", "fromMe"); fromMe == true {
		a.log.Debug("Skipping echo of outgoing message")
		return
	}

	text := payload.DigString("data", "messages", "message", "conversation")
	if text == "" {
		text = payload.DigString("data", "messages", "message", "extendedTextMessage", "text")
	}
	if text == "" {
		a.log.Debug("Skipping non-text message")
		return
	}

	remote := payload.DigString("data", "messages", "key", "remoteJid")
	if remote == "" {
		remote = payload.DigString("data", "messages", "key", "participant")
	}
	if remote == "" {
		a.log.Warn("Missing sender reference, dropping message")
		return
	}
	msisdn, _, _ := strings.Cut(remote, "@")

	senderName := payload.DigString("data", "messages", "pushName")
	if senderName == "" {
		senderName = msisdn
	}

	msg := message.UnifiedMessage{
		Channel:     message.ChannelWhatsApp,
		SenderID:    msisdn,
		RecipientID: msisdn,
		SenderName:  senderName,
		MessageID:   payload.DigString("data", "messages", "key", "id"),
		Content:     message.TextContent{Text: text},
		Raw:         payload,
	}

	a.mu.RLock()
	handler := a.handler
	a.mu.RUnlock()

	if handler == nil {
		a.log.Warn("No inbound handler set, dropping message", "sender_id", msisdn)
		return
	}
	if err := handler(ctx, msg); err != nil {
		a.log.Error("Inbound handler failed", "sender_id", msisdn, "error", err)
	}
}

// SendText delivers text to an msisdn via the Wasender API.
func (a *Adapter) SendText(ctx context.Context, recipientID string, content message.TextContent) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	if client == nil {
		return errors.New("whatsapp adapter is not started")
	}

	if err := client.SendText(ctx, recipientID, content.Text); err != nil {
		return err
	}

	a.log.Info("Sent message", "recipient_id", recipientID)
	return nil
}

// Package vk implements the VK community channel adapter over the Callback
// API. Inbound message_new events arrive through the bus; outgoing text is
// delivered with messages.send.
package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"chatbridge/pkg/bus"
	"chatbridge/pkg/channel"
	"chatbridge/pkg/config"
	"chatbridge/pkg/message"
)

const eventMessageNew = "message_new"

// Adapter normalizes VK callback payloads into canonical messages and sends
// outgoing text through messages.send.
type Adapter struct {
	channel.TextOnly

	cfg    config.VKConfig
	events *bus.EventBus
	log    *slog.Logger

	mu         sync.RWMutex
	state      channel.State
	handler    channel.Handler
	client     *Client
	incoming   *bus.Subscription
	confirming *bus.Subscription
}

// NewAdapter validates VK configuration and constructs an adapter.
func NewAdapter(cfg config.VKConfig, events *bus.EventBus, log *slog.Logger) (*Adapter, error) {
	if !cfg.Enabled() {
		return nil, errors.New("channels.vk requires callback_id, group_id, access_token, secret, and confirmation")
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
		log:    log.With("component", "channel.vk"),
		state:  channel.StateStopped,
	}, nil
}

// Name returns the channel identifier used in the registry and logs.
func (a *Adapter) Name() message.Channel {
	return message.ChannelVK
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

// ConfirmationToken returns the token echoed to VK on callback confirmation.
func (a *Adapter) ConfirmationToken() string {
	return a.cfg.Confirmation
}

// Start opens the API client and subscribes to callback events.
func (a *Adapter) Start(_ context.Context) error {
	a.mu.Lock()
	a.state = channel.StateStarting
	a.client = NewClient(a.cfg.AccessToken, a.cfg.APIVersion, "")
	a.mu.Unlock()

	incoming := a.events.Subscribe(bus.TopicVKIncoming, a.handleIncoming)
	confirming := a.events.Subscribe(bus.TopicVKConfirmation, a.handleConfirmation)

	a.mu.Lock()
	a.incoming = incoming
	a.confirming = confirming
	a.state = channel.StateRunning
	a.mu.Unlock()

	a.log.Info("VK adapter started")
	return nil
}

// Stop removes bus subscriptions and releases the outbound transport.
func (a *Adapter) Stop(_ context.Context) error {
	a.mu.Lock()
	a.state = channel.StateStopping
	incoming, confirming, client := a.incoming, a.confirming, a.client
	a.incoming, a.confirming, a.client = nil, nil, nil
	a.mu.Unlock()

	if incoming != nil {
		incoming.Cancel()
	}
	if confirming != nil {
		confirming.Cancel()
	}
	if client != nil {
		client.Close()
	}

	a.mu.Lock()
	a.state = channel.StateStopped
	a.mu.Unlock()

	a.log.Info("VK adapter stopped")
	return nil
}

// handleIncoming normalizes one message_new payload published by the
// webhook boundary.
func (a *Adapter) handleIncoming(ctx context.Context, payload message.Document) {
	if event := payload.DigString("event"); event != eventMessageNew {
		return
	}

	peerID := payload.DigStringable("message", "peer_id")
	if peerID == "" {
		a.log.Debug("Skipping incoming event without peer_id")
		return
	}

	fromID := payload.DigStringable("message", "from_id")
	if fromID == "" {
		fromID = peerID
	}

	raw := payload
	var senderName string
	if profile := a.fetchProfile(ctx, fromID); profile != nil {
		senderName = profileName(profile)
		raw = make(message.Document, len(payload)+1)
		for key, value := range payload {
			raw[key] = value
		}
		raw["profile"] = map[string]any(profile)
	}

	msg := message.UnifiedMessage{
		Channel:     message.ChannelVK,
		SenderID:    fromID,
		RecipientID: peerID,
		SenderName:  senderName,
		MessageID:   payload.DigStringable("message", "id"),
		Content:     message.TextContent{Text: payload.DigString("message", "text")},
		Raw:         raw,
	}

	a.mu.RLock()
	handler := a.handler
	a.mu.RUnlock()

	if handler == nil {
		a.log.Warn("No inbound handler set, dropping message", "peer_id", peerID)
		return
	}
	if err := handler(ctx, msg); err != nil {
		a.log.Error("Inbound handler failed", "peer_id", peerID, "error", err)
	}
}

// fetchProfile looks up the sender through users.get for contact enrichment.
// Best effort: any failure yields nil and the message proceeds unenriched.
func (a *Adapter) fetchProfile(ctx context.Context, userID string) message.Document {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	if client == nil {
		return nil
	}

	params := url.Values{}
	params.Set("user_ids", userID)
	params.Set("fields", "bdate,city,screen_name")

	raw, err := client.Call(ctx, "users.get", params)
	if err != nil {
		a.log.Warn("Profile lookup failed", "user_id", userID, "error", err)
		return nil
	}

	var users []map[string]any
	if err := json.Unmarshal(raw, &users); err != nil || len(users) == 0 {
		return nil
	}
	return message.Document(users[0])
}

// profileName builds a display name from first and last name, falling back
// to the screen name.
func profileName(profile message.Document) string {
	first := profile.DigString("first_name")
	last := profile.DigString("last_name")
	if name := strings.TrimSpace(first + " " + last); name != "" {
		return name
	}
	return profile.DigString("screen_name")
}

func (a *Adapter) handleConfirmation(_ context.Context, payload message.Document) {
	a.log.Info("Callback confirmation acknowledged", "group_id", payload.DigStringable("group_id"))
}

// SendText delivers text to a numeric peer id via messages.send. Each call
// carries a fresh 31-bit random_id so provider-side deduplication never
// collides across retried sends.
func (a *Adapter) SendText(ctx context.Context, recipientID string, content message.TextContent) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()

	if client == nil {
		return errors.New("vk adapter is not started")
	}

	peerID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("recipient %q is not a numeric peer id", recipientID)
	}

	randomID := int64(uuid.New().ID() >> 1)
	params := url.Values{}
	params.Set("peer_id", strconv.FormatInt(peerID, 10))
	params.Set("message", content.Text)
	params.Set("random_id", strconv.FormatInt(randomID, 10))
	params.Set("group_id", strconv.Itoa(a.cfg.GroupID))

	if _, err := client.Call(ctx, "messages.send", params); err != nil {
		return err
	}

	a.log.Info("Sent message", "peer_id", peerID, "random_id", randomID)
	return nil
}

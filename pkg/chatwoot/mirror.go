package chatwoot

import (
	"context"
	"fmt"
	"log/slog"

	"chatbridge/pkg/message"
)

// Inboxes maps each channel to its support-desk inbox id.
type Inboxes map[message.Channel]int

// Mirror is the application-side inbound handler: every normalized channel
// message is reflected into the support desk as an incoming conversation
// message, with per-channel contact enrichment so the recipient resolver can
// later reconstruct a delivery address from the same attributes.
type Mirror struct {
	svc     *Service
	inboxes Inboxes
	log     *slog.Logger
}

// NewMirror constructs a mirror over svc for the configured inboxes.
func NewMirror(svc *Service, inboxes Inboxes, log *slog.Logger) *Mirror {
	if log == nil {
		log = slog.Default()
	}
	return &Mirror{
		svc:     svc,
		inboxes: inboxes,
		log:     log.With("component", "chatwoot.mirror"),
	}
}

// HandleIncoming mirrors one inbound message into the support desk.
func (m *Mirror) HandleIncoming(ctx context.Context, msg message.UnifiedMessage) error {
	text, ok := msg.Content.(message.TextContent)
	if !ok {
		m.log.Debug("Skipping non-text content", "channel", msg.Channel, "kind", msg.Content.Kind())
		return nil
	}

	inboxID, ok := m.inboxes[msg.Channel]
	if !ok || inboxID == 0 {
		return fmt.Errorf("no inbox configured for channel %q", msg.Channel)
	}

	params := ensureParamsFor(msg, inboxID)

	contact, err := m.svc.EnsureContact(ctx, params)
	if err != nil {
		return fmt.Errorf("mirror %s message: %w", msg.Channel, err)
	}

	convID, err := m.svc.EnsureConversation(ctx, inboxID, contact.ID, contact.SourceID)
	if err != nil {
		return fmt.Errorf("mirror %s message: %w", msg.Channel, err)
	}

	if _, err := m.svc.CreateMessage(ctx, convID, text.Text, "incoming"); err != nil {
		return fmt.Errorf("mirror %s message: %w", msg.Channel, err)
	}

	m.log.Info("Mirrored incoming message", "channel", msg.Channel, "conversation_id", convID, "inbox_id", inboxID)
	return nil
}

// ensureParamsFor builds the contact upsert for one channel. The custom
// attributes written here are the exact fields the recipient resolver reads
// on the outbound path.
func ensureParamsFor(msg message.UnifiedMessage, inboxID int) EnsureParams {
	params := EnsureParams{
		InboxID:   inboxID,
		SearchKey: msg.SenderID,
		Name:      msg.SenderName,
	}

	switch msg.Channel {
	case message.ChannelWhatsApp:
		params.Phone = msg.SenderID

	case message.ChannelTelegram:
		custom := map[string]any{"telegram_user_id": msg.SenderID}
		if username := msg.Raw.DigString("username"); username != "" {
			custom["telegram_username"] = username
			params.SearchKey = username
		}
		params.CustomAttributes = custom

	case message.ChannelVK:
		custom := map[string]any{
			"vk_user_id": msg.SenderID,
			"vk_peer_id": msg.RecipientID,
		}
		if bdate := msg.Raw.DigString("profile", "bdate"); bdate != "" {
			custom["vk_bdate"] = bdate
		}
		params.CustomAttributes = custom

		// VK returns city as {"title": ...} or a plain string.
		city := msg.Raw.DigString("profile", "city", "title")
		if city == "" {
			city = msg.Raw.DigString("profile", "city")
		}
		if city != "" {
			params.AdditionalAttributes = map[string]any{"city": city}
		}
	}

	if params.Name == "" {
		params.Name = params.SearchKey
	}
	return params
}

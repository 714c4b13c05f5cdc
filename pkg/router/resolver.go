package router

import (
	"chatbridge/pkg/message"
)

// ResolveRecipient reconstructs a channel-scoped delivery address from a raw
// support-desk payload. The support desk never carries a reliable outbound
// address, so each channel has an ordered fallback chain over whichever
// enrichment fields happen to be populated; the first source yielding a
// non-empty trimmed string wins.
//
// Pure and total: malformed payloads of any shape resolve to absent, never
// an error. Unknown channels resolve to absent; the router does not guess.
func ResolveRecipient(channel message.Channel, payload message.Document) (string, bool) {
	sender := payload.DigDocument("conversation", "meta", "sender")

	switch channel {
	case message.ChannelWhatsApp:
		return present(sender.DigString("phone_number"))

	case message.ChannelTelegram:
		return resolveTelegram(sender)

	case message.ChannelVK:
		return resolveVK(sender)

	default:
		return "", false
	}
}

// resolveTelegram tries, in priority order: the operator-curated username,
// the username the support-desk Telegram bot injects, the raw phone number,
// then the curated and injected numeric user ids rendered as "id:<value>".
func resolveTelegram(sender message.Document) (string, bool) {
	if username := sender.DigString("custom_attributes", "telegram_username"); username != "" {
		return username, true
	}

	if social := sender.DigString("additional_attributes", "social_telegram_user_name"); social != "" {
		return social, true
	}

	if phone := sender.DigString("phone_number"); phone != "" {
		return phone, true
	}

	if userID := sender.DigStringable("custom_attributes", "telegram_user_id"); userID != "" {
		return "id:" + userID, true
	}

	if socialID := sender.DigStringable("additional_attributes", "social_telegram_user_id"); socialID != "" {
		return "id:" + socialID, true
	}

	return "", false
}

// resolveVK prefers the peer id over the user id. Ids are rendered as their
// plain string form; numeric zero counts as present.
func resolveVK(sender message.Document) (string, bool) {
	if peerID := sender.DigStringable("custom_attributes", "vk_peer_id"); peerID != "" {
		return peerID, true
	}

	if userID := sender.DigStringable("custom_attributes", "vk_user_id"); userID != "" {
		return userID, true
	}

	return "", false
}

func present(value string) (string, bool) {
	return value, value != ""
}

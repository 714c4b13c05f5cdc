// Package message defines the canonical message model shared by every
// channel adapter and the routing core.
package message

import "strings"

// Channel identifies one messaging provider integration.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
	ChannelVK       Channel = "vk"
	ChannelUnknown  Channel = ""
)

// ParseChannel maps a raw channel string to a known Channel.
//
// Unrecognized values map to ChannelUnknown; the router never guesses for
// channels it does not know.
func ParseChannel(raw string) Channel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "whatsapp":
		return ChannelWhatsApp
	case "telegram":
		return ChannelTelegram
	case "vk":
		return ChannelVK
	default:
		return ChannelUnknown
	}
}

// String returns the wire form of the channel key.
func (c Channel) String() string {
	return string(c)
}

// Known reports whether the channel is one of the supported providers.
func (c Channel) Known() bool {
	return c == ChannelWhatsApp || c == ChannelTelegram || c == ChannelVK
}

// UnifiedMessage is the canonical representation of one chat event.
//
// It is constructed once at normalization time and treated as immutable
// afterwards. Raw keeps provider fields that did not fit the canonical
// shape, for enrichment and diagnostics.
type UnifiedMessage struct {
	Channel     Channel
	SenderID    string
	RecipientID string
	SenderName  string
	MessageID   string
	Content     Content
	Raw         Document
}

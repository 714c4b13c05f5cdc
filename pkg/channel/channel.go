// Package channel defines the adapter contract every messaging provider
// integration implements, and the registry that owns the channel→adapter
// mapping for the lifetime of the process.
package channel

import (
	"context"

	"chatbridge/pkg/message"
)

// Handler processes one normalized inbound message.
type Handler func(context.Context, message.UnifiedMessage) error

// State is the lifecycle state of an adapter.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Adapter bridges one external provider (WhatsApp, Telegram, VK) into the
// bridge. Start opens the adapter's transport and Stop releases it on every
// exit path. Only SendText is exercised by the current router; the other
// send methods are contract surface for future content kinds.
type Adapter interface {
	Name() message.Channel

	// OnMessage registers the handler invoked for each normalized inbound
	// message. Must be called before Start.
	OnMessage(Handler)

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, recipientID string, content message.TextContent) error
	SendMedia(ctx context.Context, recipientID string, content message.MediaContent) error
	SendSticker(ctx context.Context, recipientID string, content message.StickerContent) error
	SendContact(ctx context.Context, recipientID string, content message.ContactContent) error
	SendLocation(ctx context.Context, recipientID string, content message.LocationContent) error

	// Capabilities reports the content kinds this adapter can send.
	Capabilities() []message.ContentKind
}

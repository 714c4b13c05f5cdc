package channel

import (
	"context"
	"errors"
	"fmt"

	"chatbridge/pkg/message"
)

// ErrUnsupportedContent reports a send for a content kind outside the
// adapter's capability set.
var ErrUnsupportedContent = errors.New("unsupported content kind")

// TextOnly provides the non-text send methods for adapters that currently
// deliver text content only. Embedding it keeps the Adapter surface complete
// while each unsupported send fails with ErrUnsupportedContent.
type TextOnly struct{}

// TextOnlyCapabilities is the capability set reported by text-only adapters.
func TextOnlyCapabilities() []message.ContentKind {
	return []message.ContentKind{message.KindText}
}

func (TextOnly) SendMedia(_ context.Context, _ string, content message.MediaContent) error {
	return unsupported(content.Kind())
}

func (TextOnly) SendSticker(_ context.Context, _ string, content message.StickerContent) error {
	return unsupported(content.Kind())
}

func (TextOnly) SendContact(_ context.Context, _ string, content message.ContactContent) error {
	return unsupported(content.Kind())
}

func (TextOnly) SendLocation(_ context.Context, _ string, content message.LocationContent) error {
	return unsupported(content.Kind())
}

func (TextOnly) Capabilities() []message.ContentKind {
	return TextOnlyCapabilities()
}

func unsupported(kind message.ContentKind) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedContent, kind)
}

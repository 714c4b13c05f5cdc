package message

// ContentKind is the discriminant tag of a Content variant.
type ContentKind string

const (
	KindText     ContentKind = "text"
	KindMedia    ContentKind = "media"
	KindSticker  ContentKind = "sticker"
	KindContact  ContentKind = "contact"
	KindLocation ContentKind = "location"
)

// Content is the tagged union over delivery modalities. Each variant reports
// its own kind; adapters match exhaustively on the concrete type.
type Content interface {
	Kind() ContentKind
}

// TextContent carries a plain text body.
type TextContent struct {
	Text string
}

func (TextContent) Kind() ContentKind { return KindText }

// MediaContent references an image, video, audio, or document by URL.
type MediaContent struct {
	URL      string
	MIMEType string
	Caption  string
	Filename string
}

func (MediaContent) Kind() ContentKind { return KindMedia }

// StickerContent references a provider-scoped sticker.
type StickerContent struct {
	Ref string
}

func (StickerContent) Kind() ContentKind { return KindSticker }

// ContactContent carries a shared contact card.
type ContactContent struct {
	Name  string
	Phone string
	Org   string
}

func (ContactContent) Kind() ContentKind { return KindContact }

// LocationContent carries a geographic point.
type LocationContent struct {
	Latitude  float64
	Longitude float64
	Name      string
}

func (LocationContent) Kind() ContentKind { return KindLocation }

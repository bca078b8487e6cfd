package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CardType identifies the kind of content a card holds.
type CardType string

// Supported card types.
const (
	CardTypeText     CardType = "text"
	CardTypeLink     CardType = "link"
	CardTypeImage    CardType = "image"
	CardTypeVideo    CardType = "video"
	CardTypeAudio    CardType = "audio"
	CardTypeDocument CardType = "document"
	CardTypePalette  CardType = "palette"
	CardTypeQuote    CardType = "quote"
)

// Card-specific validation errors. Each wraps ErrValidation so callers can
// match the whole class with errors.Is.
var (
	// ErrCardIDEmpty is returned when a card ID is empty or nil.
	ErrCardIDEmpty = fmt.Errorf("%w: card ID cannot be empty", ErrValidation)

	// ErrCardOwnerIDEmpty is returned when a card's owner ID is empty or nil.
	ErrCardOwnerIDEmpty = fmt.Errorf("%w: card owner ID cannot be empty", ErrValidation)

	// ErrCardTypeInvalid is returned when a card's type is not a known CardType.
	ErrCardTypeInvalid = fmt.Errorf("%w: invalid card type", ErrValidation)

	// ErrCardPayloadMissing is returned when the primary payload required by
	// the card's type (content, URL, or file reference) is empty.
	ErrCardPayloadMissing = fmt.Errorf("%w: card payload missing for type", ErrValidation)

	// ErrCardTooManyColors is returned when a palette exceeds the maximum length.
	ErrCardTooManyColors = fmt.Errorf("%w: card palette cannot exceed 5 colors", ErrValidation)
)

// MaxPaletteColors bounds the length of a card's extracted color palette.
const MaxPaletteColors = 5

// Card is the unit of saved content processed by the enrichment pipeline.
// A card carries exactly one primary payload depending on its type: text-like
// cards use Content, link cards use URL, and file-backed cards use FileID.
// Derived fields (Colors, AITags, AISummary, AITranscript, ThumbnailID and
// Metadata) are populated asynchronously by pipeline stages.
type Card struct {
	ID      uuid.UUID `json:"id"`
	OwnerID uuid.UUID `json:"owner_id"`
	Type    CardType  `json:"type"`

	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
	FileID  string `json:"file_id,omitempty"`

	// User-owned annotations. The pipeline never writes these.
	Notes string   `json:"notes,omitempty"`
	Tags  []string `json:"tags,omitempty"`

	// Colors holds up to MaxPaletteColors uppercase hex strings in dominance
	// order (most frequent first).
	Colors []string `json:"colors,omitempty"`

	// AI-owned fields, written only by the metadata stage.
	AITags       []string `json:"ai_tags,omitempty"`
	AISummary    string   `json:"ai_summary,omitempty"`
	AITranscript string   `json:"ai_transcript,omitempty"`

	Metadata CardMetadata `json:"metadata"`

	// ProcessingStatus tracks per-stage enrichment state. It is written only
	// by the orchestrator and the stage mutations it invokes.
	ProcessingStatus map[Stage]StageStatus `json:"processing_status,omitempty"`

	ThumbnailID string `json:"thumbnail_id,omitempty"`

	// Revision is bumped on every user-visible content edit. Stage results
	// produced against an older revision are dropped instead of overwriting
	// newer state.
	Revision int64 `json:"revision"`

	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CardMetadata nests enrichment results that are scoped to a sub-concern of
// the card. Each field is patched independently; stages never overwrite the
// whole record.
type CardMetadata struct {
	LinkPreview  *LinkPreview  `json:"link_preview,omitempty"`
	LinkCategory *LinkCategory `json:"link_category,omitempty"`
	FileMetadata *FileMetadata `json:"file_metadata,omitempty"`
}

// FetchStatus describes the state of a link-preview fetch.
type FetchStatus string

// Possible link preview fetch states.
const (
	FetchStatusPending FetchStatus = "pending"
	FetchStatusFetched FetchStatus = "fetched"
	FetchStatusFailed  FetchStatus = "failed"
)

// LinkPreview holds data extracted from a link card's target page.
type LinkPreview struct {
	Title        string      `json:"title,omitempty"`
	Description  string      `json:"description,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	SiteName     string      `json:"site_name,omitempty"`
	CanonicalURL string      `json:"canonical_url,omitempty"`
	FetchStatus  FetchStatus `json:"fetch_status"`

	// ScreenshotStorageID references a captured page screenshot blob. When
	// it is replaced the old blob is deleted only after the new reference is
	// durably written.
	ScreenshotStorageID string     `json:"screenshot_storage_id,omitempty"`
	ScreenshotUpdatedAt *time.Time `json:"screenshot_updated_at,omitempty"`
}

// Fact is a single normalized label/value pair extracted by a provider
// enricher (rating, star count, release date and similar).
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// LinkCategory holds the result of link categorization.
type LinkCategory struct {
	Category   string            `json:"category"`
	Confidence float64           `json:"confidence"`
	Provider   string            `json:"provider,omitempty"`
	Reason     string            `json:"reason"`
	Facts      []Fact            `json:"facts,omitempty"`
	Raw        map[string]string `json:"raw,omitempty"`
}

// FileMetadata describes a file-backed card's source blob.
type FileMetadata struct {
	MimeType        string  `json:"mime_type,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	SizeBytes       int64   `json:"size_bytes,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// NewCard creates a new Card with the given owner, type and payload. It
// generates a new UUID, sets timestamps and validates the result.
func NewCard(ownerID uuid.UUID, cardType CardType, content, rawURL, fileID string) (*Card, error) {
	now := time.Now().UTC()
	card := &Card{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Type:      cardType,
		Content:   content,
		URL:       rawURL,
		FileID:    fileID,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := card.Validate(); err != nil {
		return nil, err
	}

	return card, nil
}

// Validate checks the card's structural invariants.
func (c *Card) Validate() error {
	if c.ID == uuid.Nil {
		return ErrCardIDEmpty
	}
	if c.OwnerID == uuid.Nil {
		return ErrCardOwnerIDEmpty
	}
	if !isValidCardType(c.Type) {
		return ErrCardTypeInvalid
	}
	if c.primaryPayload() == "" {
		return ErrCardPayloadMissing
	}
	if len(c.Colors) > MaxPaletteColors {
		return ErrCardTooManyColors
	}
	return nil
}

// primaryPayload returns the payload field the card's type requires.
func (c *Card) primaryPayload() string {
	switch c.Type {
	case CardTypeLink:
		return c.URL
	case CardTypeImage, CardTypeVideo, CardTypeAudio, CardTypeDocument:
		return c.FileID
	default:
		return c.Content
	}
}

// IsLinkLike reports whether the card should go through link categorization.
func (c *Card) IsLinkLike() bool {
	return c.Type == CardTypeLink
}

// HasVisualAsset reports whether the card has a derivable visual asset and
// should go through renderable generation.
func (c *Card) HasVisualAsset() bool {
	switch c.Type {
	case CardTypeImage, CardTypeVideo, CardTypeDocument:
		return true
	default:
		return false
	}
}

// SingleURLContent returns the card's content trimmed, and true, when the
// content is exactly one URL and nothing else. Used by the classifier to
// promote text cards to link cards.
func (c *Card) SingleURLContent() (string, bool) {
	trimmed := strings.TrimSpace(c.Content)
	if trimmed == "" || strings.ContainsAny(trimmed, " \t\n") {
		return "", false
	}
	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return trimmed, true
}

// Touch updates the card's UpdatedAt timestamp.
func (c *Card) Touch() {
	c.UpdatedAt = time.Now().UTC()
}

// SoftDelete marks the card deleted. Deleted cards are excluded from all
// enrichment scheduling; the retention sweeper removes them permanently
// after the retention window.
func (c *Card) SoftDelete() {
	now := time.Now().UTC()
	c.IsDeleted = true
	c.DeletedAt = &now
	c.UpdatedAt = now
}

// isValidCardType checks if the given type is a known CardType.
func isValidCardType(t CardType) bool {
	switch t {
	case CardTypeText, CardTypeLink, CardTypeImage, CardTypeVideo,
		CardTypeAudio, CardTypeDocument, CardTypePalette, CardTypeQuote:
		return true
	default:
		return false
	}
}

// Package generation defines the boundary between the enrichment pipeline
// and external AI model services.
package generation

import (
	"context"

	"github.com/pinbox/pinbox-api/internal/domain"
)

// Request describes one metadata generation call. Exactly one of Text or
// FileURL is set depending on the card's content type.
type Request struct {
	// CardType selects the content-type-specific generation path.
	CardType domain.CardType

	// Text carries the card content for text-like cards, or the assembled
	// preview text (title, description, URL) for link cards.
	Text string

	// FileURL points at the source blob for image, audio and document cards.
	FileURL string

	// WantTranscript requests a transcript in addition to tags and summary.
	// Only honored for audio cards.
	WantTranscript bool
}

// Result is the AI-generated metadata for one card.
type Result struct {
	// Tags holds 5-6 single-word tags.
	Tags []string

	// Summary is a short natural-language summary of the content.
	Summary string

	// Transcript is set only for audio requests with WantTranscript.
	Transcript string
}

// MetadataGenerator produces tags, summaries and transcripts for cards.
// Implementations dispatch internally on Request.CardType; callers never
// pick a model themselves.
type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, req Request) (*Result, error)
}

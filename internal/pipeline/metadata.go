package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/generation"
	"github.com/pinbox/pinbox-api/internal/store"
)

// MetadataStage produces AI tags, summary and, for audio, a transcript. It
// always runs regardless of categorization's outcome, and it overwrites
// only AI-owned fields: Content, Notes and user Tags are never cleared.
type MetadataStage struct {
	cards     store.CardStore
	blobs     store.BlobStore
	generator generation.MetadataGenerator
	logger    *slog.Logger
}

// NewMetadataStage creates a MetadataStage.
func NewMetadataStage(cards store.CardStore, blobs store.BlobStore, generator generation.MetadataGenerator, logger *slog.Logger) *MetadataStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataStage{
		cards:     cards,
		blobs:     blobs,
		generator: generator,
		logger:    logger.With("component", "metadata_stage"),
	}
}

// Run generates metadata for the card through its content-type-specific
// path and patches the AI fields.
func (s *MetadataStage) Run(ctx context.Context, card *domain.Card) StageOutcome {
	req, err := s.buildRequest(ctx, card)
	if err != nil {
		return Failed(err)
	}

	result, err := s.generator.GenerateMetadata(ctx, req)
	if err != nil {
		return Failed(fmt.Errorf("generate metadata for card %s: %w", card.ID, err))
	}

	patch := store.EnrichmentPatch{
		AITags:    result.Tags,
		AISummary: &result.Summary,
	}
	if req.WantTranscript && result.Transcript != "" {
		patch.AITranscript = &result.Transcript
	}

	if err := s.cards.PatchEnrichment(ctx, card.ID, card.Revision, patch); err != nil {
		return Failed(err)
	}

	s.logger.Info("card metadata generated",
		"card_id", card.ID,
		"card_type", card.Type,
		"tag_count", len(result.Tags),
		"has_transcript", patch.AITranscript != nil)
	return Ready(nil)
}

// buildRequest assembles the generation request for the card's type. Link
// cards get their preview context folded into the text; file-backed cards
// hand the model a fetchable blob URL.
func (s *MetadataStage) buildRequest(ctx context.Context, card *domain.Card) (generation.Request, error) {
	switch card.Type {
	case domain.CardTypeText, domain.CardTypeQuote, domain.CardTypePalette:
		return generation.Request{
			CardType: domain.CardTypeText,
			Text:     card.Content,
		}, nil

	case domain.CardTypeLink:
		return generation.Request{
			CardType: domain.CardTypeLink,
			Text:     linkContext(card),
		}, nil

	case domain.CardTypeImage, domain.CardTypeVideo, domain.CardTypeAudio, domain.CardTypeDocument:
		url, err := s.blobs.GetURL(ctx, card.FileID)
		if err != nil {
			return generation.Request{}, fmt.Errorf("resolve blob URL for card %s: %w", card.ID, err)
		}
		return generation.Request{
			CardType:       card.Type,
			FileURL:        url,
			WantTranscript: card.Type == domain.CardTypeAudio,
		}, nil

	default:
		return generation.Request{}, fmt.Errorf("%w: %s", generation.ErrUnsupportedContent, card.Type)
	}
}

// linkContext folds the URL and whatever preview data landed into one text
// block for the model.
func linkContext(card *domain.Card) string {
	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(card.URL)
	if p := card.Metadata.LinkPreview; p != nil {
		if p.Title != "" {
			b.WriteString("\nTitle: ")
			b.WriteString(p.Title)
		}
		if p.Description != "" {
			b.WriteString("\nDescription: ")
			b.WriteString(p.Description)
		}
		if p.SiteName != "" {
			b.WriteString("\nSite: ")
			b.WriteString(p.SiteName)
		}
	}
	if card.Notes != "" {
		b.WriteString("\nUser notes: ")
		b.WriteString(card.Notes)
	}
	return b.String()
}

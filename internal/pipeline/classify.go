package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/linkmeta"
	"github.com/pinbox/pinbox-api/internal/store"
)

// Classification is the classifier's output: the card's (possibly
// corrected) type and which conditional stages apply downstream.
type Classification struct {
	Type                      domain.CardType
	Confidence                float64
	ShouldCategorize          bool
	ShouldGenerateRenderables bool
}

// Classifier decides a card's type and downstream stage plan. It may patch
// the card's type when reclassification promotes it, and it fetches the
// link preview for link cards so the categorizer has its input ready.
type Classifier struct {
	cards     store.CardStore
	extractor *linkmeta.Extractor
	logger    *slog.Logger
}

// NewClassifier creates a Classifier.
func NewClassifier(cards store.CardStore, extractor *linkmeta.Extractor, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		cards:     cards,
		extractor: extractor,
		logger:    logger.With("component", "classifier"),
	}
}

// Run classifies the card. A text card whose content is a single URL is
// promoted to a link card, persisting the new type and URL. The returned
// classification is derived from the card state after any promotion.
func (c *Classifier) Run(ctx context.Context, card *domain.Card) (Classification, StageOutcome) {
	confidence := 1.0

	if card.Type == domain.CardTypeText {
		if u, ok := card.SingleURLContent(); ok {
			promoted := domain.CardTypeLink
			patch := store.EnrichmentPatch{Type: &promoted, URL: &u}
			if err := c.cards.PatchEnrichment(ctx, card.ID, card.Revision, patch); err != nil {
				return Classification{}, Failed(err)
			}
			card.Type = promoted
			card.URL = u
			confidence = 0.85
			c.logger.Info("promoted text card to link", "card_id", card.ID)
		}
	}

	cls := Classification{
		Type:                      card.Type,
		Confidence:                confidence,
		ShouldCategorize:          card.IsLinkLike(),
		ShouldGenerateRenderables: card.HasVisualAsset(),
	}

	// Kick off the link preview fetch now so categorization finds its
	// prerequisite in place. A failed fetch is recorded as such; the
	// categorizer's resolution chain does not depend on it.
	if cls.ShouldCategorize && card.Metadata.LinkPreview == nil {
		preview, err := c.extractor.Extract(ctx, card.URL)
		if err != nil {
			c.logger.Warn("link preview fetch failed", "card_id", card.ID, "error", err)
			preview = &domain.LinkPreview{FetchStatus: domain.FetchStatusFailed}
			if errors.Is(err, linkmeta.ErrNotHTML) {
				// Non-HTML targets simply have no preview to extract.
				preview.FetchStatus = domain.FetchStatusFetched
			}
		}
		if err := c.cards.PatchEnrichment(ctx, card.ID, card.Revision, store.EnrichmentPatch{
			LinkPreview: preview,
		}); err != nil {
			return Classification{}, Failed(err)
		}
		card.Metadata.LinkPreview = preview
	}

	return cls, Ready(confidenceOf(confidence))
}

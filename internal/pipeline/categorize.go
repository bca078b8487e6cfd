package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pinbox/pinbox-api/internal/category"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/store"
)

// ErrPreviewNotReady signals that categorization needs link-preview data
// that has not landed yet.
var ErrPreviewNotReady = errors.New("link preview not yet available")

// Categorizer resolves a link card's category and merges provider
// enrichment facts into its link-category metadata. It writes only the
// LinkCategory record; the card's AI fields are never touched here.
type Categorizer struct {
	cards    store.CardStore
	registry *category.Registry
	logger   *slog.Logger
}

// NewCategorizer creates a Categorizer.
func NewCategorizer(cards store.CardStore, registry *category.Registry, logger *slog.Logger) *Categorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Categorizer{
		cards:    cards,
		registry: registry,
		logger:   logger.With("component", "categorizer"),
	}
}

// Run categorizes the card's URL. Resolution itself is pure and always
// yields a result; only provider enrichment waits on the link preview and
// reaches out to the provider's page. A provider fetch failure downgrades
// to a result without facts rather than failing the stage.
func (s *Categorizer) Run(ctx context.Context, card *domain.Card) StageOutcome {
	res, err := category.Resolve(card.URL)
	if err != nil {
		return Failed(fmt.Errorf("categorize card %s: %w", card.ID, err))
	}

	linkCategory := &domain.LinkCategory{
		Category:   res.Category,
		Confidence: res.Confidence,
		Provider:   res.Provider,
		Reason:     res.Reason,
	}

	if res.Provider != "" {
		if _, ok := s.registry.Lookup(res.Provider, res.Category); ok {
			// Provider scrapes want the canonical page; wait for the
			// preview fetch to settle before spending the request.
			preview := card.Metadata.LinkPreview
			if preview == nil || preview.FetchStatus == domain.FetchStatusPending {
				return NotReady(ErrPreviewNotReady)
			}

			pageURL := card.URL
			if preview.CanonicalURL != "" {
				pageURL = preview.CanonicalURL
			}

			facts, raw, err := s.registry.Enrich(ctx, res.Provider, res.Category, pageURL)
			if err != nil {
				// Category resolution still stands; only facts are omitted.
				s.logger.Warn("provider enrichment failed",
					"card_id", card.ID,
					"provider", res.Provider,
					"error", err)
			} else {
				linkCategory.Facts = facts
				linkCategory.Raw = raw
			}
		}
	}

	if err := s.cards.PatchEnrichment(ctx, card.ID, card.Revision, store.EnrichmentPatch{
		LinkCategory: linkCategory,
	}); err != nil {
		return Failed(err)
	}

	s.logger.Info("card categorized",
		"card_id", card.ID,
		"category", linkCategory.Category,
		"reason", linkCategory.Reason,
		"provider", linkCategory.Provider,
		"fact_count", len(linkCategory.Facts))
	return Ready(confidenceOf(res.Confidence))
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/palette"
	"github.com/pinbox/pinbox-api/internal/renderable"
	"github.com/pinbox/pinbox-api/internal/store"
)

// RenderableStage generates a card's derived visual assets: a resized
// thumbnail and a dominant-color palette.
type RenderableStage struct {
	cards  store.CardStore
	blobs  store.BlobStore
	logger *slog.Logger
}

// NewRenderableStage creates a RenderableStage.
func NewRenderableStage(cards store.CardStore, blobs store.BlobStore, logger *slog.Logger) *RenderableStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderableStage{
		cards:  cards,
		blobs:  blobs,
		logger: logger.With("component", "renderable_stage"),
	}
}

// Run decodes the card's source blob and derives its renderables. Sources
// that are not decodable images (video containers, PDFs) complete the stage
// with no outputs; the card stays usable either way. Palette extraction is
// write-once: an existing palette is never recomputed here.
func (s *RenderableStage) Run(ctx context.Context, card *domain.Card) StageOutcome {
	rc, err := s.blobs.Open(ctx, card.FileID)
	if err != nil {
		return Failed(fmt.Errorf("open source blob for card %s: %w", card.ID, err))
	}
	defer func() { _ = rc.Close() }()

	img, err := renderable.Decode(rc)
	if err != nil {
		if errors.Is(err, renderable.ErrUndecodable) {
			s.logger.Debug("source not a decodable image, skipping renderables",
				"card_id", card.ID, "card_type", card.Type)
			return Ready(nil)
		}
		return Failed(err)
	}

	bounds := img.Bounds()
	patch := store.EnrichmentPatch{
		FileMetadata: &domain.FileMetadata{
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		},
	}

	// Thumbnails and palettes are write-once per card: a value already on
	// the card survives until an explicit reset clears it.
	if card.ThumbnailID == "" {
		thumb, resized := renderable.Thumbnail(img)
		if resized {
			encoded, err := renderable.EncodeJPEG(thumb)
			if err != nil {
				return Failed(err)
			}
			id, err := s.blobs.Put(ctx, "image/jpeg", encoded)
			if err != nil {
				return Failed(fmt.Errorf("store thumbnail for card %s: %w", card.ID, err))
			}
			patch.ThumbnailID = &id
		}
	}

	if len(card.Colors) == 0 {
		if colors := palette.Extract(img); len(colors) > 0 {
			patch.Colors = colors
		}
	}

	if err := s.cards.PatchEnrichment(ctx, card.ID, card.Revision, patch); err != nil {
		// The new thumbnail reference never committed; drop the blob.
		if patch.ThumbnailID != nil {
			if delErr := s.blobs.Delete(ctx, *patch.ThumbnailID); delErr != nil {
				s.logger.Warn("failed to clean up uncommitted thumbnail",
					"card_id", card.ID, "blob_id", *patch.ThumbnailID, "error", delErr)
			}
		}
		return Failed(err)
	}

	s.logger.Info("card renderables generated",
		"card_id", card.ID,
		"thumbnail", patch.ThumbnailID != nil,
		"palette_size", len(patch.Colors))
	return Ready(nil)
}

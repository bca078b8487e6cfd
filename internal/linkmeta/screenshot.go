package linkmeta

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/store"
)

// ScreenshotWriter stores captured page screenshots for link cards and keeps
// the card's reference consistent with blob storage.
type ScreenshotWriter struct {
	cards  store.CardStore
	blobs  store.BlobStore
	logger *slog.Logger
}

// NewScreenshotWriter creates a ScreenshotWriter.
func NewScreenshotWriter(cards store.CardStore, blobs store.BlobStore, logger *slog.Logger) *ScreenshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScreenshotWriter{
		cards:  cards,
		blobs:  blobs,
		logger: logger.With("component", "screenshot_writer"),
	}
}

// Replace stores a new screenshot blob for the card and patches the card's
// link preview to reference it. The previous blob is deleted only after the
// new reference is durably written, so there is never a dangling pointer
// wider than a single patch. A failed delete of the old blob is logged and
// tolerated; it is orphaned storage, not corrupt state.
func (w *ScreenshotWriter) Replace(ctx context.Context, card *domain.Card, contentType string, r io.Reader) (string, error) {
	newID, err := w.blobs.Put(ctx, contentType, r)
	if err != nil {
		return "", fmt.Errorf("store screenshot blob: %w", err)
	}

	var oldID string
	preview := domain.LinkPreview{FetchStatus: domain.FetchStatusFetched}
	if card.Metadata.LinkPreview != nil {
		preview = *card.Metadata.LinkPreview
		oldID = preview.ScreenshotStorageID
	}

	now := time.Now().UTC()
	preview.ScreenshotStorageID = newID
	preview.ScreenshotUpdatedAt = &now

	if err := w.cards.PatchEnrichment(ctx, card.ID, card.Revision, store.EnrichmentPatch{
		LinkPreview: &preview,
	}); err != nil {
		// The reference was never committed; remove the new blob instead of
		// the old one.
		if delErr := w.blobs.Delete(ctx, newID); delErr != nil {
			w.logger.Warn("failed to clean up uncommitted screenshot blob",
				"card_id", card.ID, "blob_id", newID, "error", delErr)
		}
		return "", fmt.Errorf("commit screenshot reference: %w", err)
	}

	if oldID != "" && oldID != newID {
		if err := w.blobs.Delete(ctx, oldID); err != nil {
			w.logger.Warn("failed to delete replaced screenshot blob",
				"card_id", card.ID, "blob_id", oldID, "error", err)
		}
	}

	w.logger.Info("screenshot replaced",
		"card_id", card.ID, "blob_id", newID, "replaced", oldID != "")
	return newID, nil
}

// Package sweeper implements scheduled maintenance over the card corpus:
// the daily retention sweep of long-soft-deleted cards and the periodic
// backfill scan for cards that never received AI metadata.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinbox/pinbox-api/internal/store"
)

// DefaultRetentionDays is how long a soft-deleted card survives before the
// sweep removes it permanently.
const DefaultRetentionDays = 30

// sweepBatchSize bounds one sweep pass.
const sweepBatchSize = 500

// Sweeper permanently removes cards that have been soft-deleted longer than
// the retention window, together with their blobs.
type Sweeper struct {
	cards         store.CardStore
	blobs         store.BlobStore
	retentionDays int
	logger        *slog.Logger
}

// New creates a Sweeper. retentionDays <= 0 falls back to the default.
func New(cards store.CardStore, blobs store.BlobStore, retentionDays int, logger *slog.Logger) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cards:         cards,
		blobs:         blobs,
		retentionDays: retentionDays,
		logger:        logger.With("component", "retention_sweeper"),
	}
}

// Run performs one sweep pass and returns the number of cards cleaned.
// Blob deletes are best-effort and happen before the record delete, so a
// deleted record never leaves blobs unreachable. One item's failure never
// stops the rest of the batch.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)

	candidates, err := s.cards.ListSweepCandidates(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list sweep candidates: %w", err)
	}

	cleaned := 0
	for _, card := range candidates {
		// Guard against a store returning cards outside the contract.
		if !card.IsDeleted || card.DeletedAt == nil || card.DeletedAt.After(cutoff) {
			s.logger.Error("sweep candidate outside retention contract, skipping",
				"card_id", card.ID)
			continue
		}

		logger := s.logger.With("card_id", card.ID)

		blobIDs := []string{card.FileID, card.ThumbnailID}
		if p := card.Metadata.LinkPreview; p != nil {
			blobIDs = append(blobIDs, p.ScreenshotStorageID)
		}
		for _, blobID := range blobIDs {
			if blobID == "" {
				continue
			}
			if err := s.blobs.Delete(ctx, blobID); err != nil {
				logger.Warn("failed to delete blob during sweep", "blob_id", blobID, "error", err)
			}
		}

		if err := s.cards.HardDelete(ctx, card.ID); err != nil {
			logger.Error("failed to hard-delete card during sweep", "error", err)
			continue
		}
		cleaned++
	}

	s.logger.Info("retention sweep finished",
		"candidates", len(candidates),
		"cleaned", cleaned)
	return cleaned, nil
}

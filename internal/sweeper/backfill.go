package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pinbox/pinbox-api/internal/events"
	"github.com/pinbox/pinbox-api/internal/store"
)

// Backfill defaults. The grace period keeps the scan from racing a card
// whose first enrichment run is still warming up.
const (
	DefaultBackfillBatch = 50
	DefaultBackfillGrace = 5 * time.Minute
)

// Backfill re-enqueues enrichment for cards that slipped through without AI
// metadata, e.g. because the service restarted mid-run.
type Backfill struct {
	cards   store.CardStore
	emitter events.EventEmitter
	batch   int
	grace   time.Duration
	logger  *slog.Logger
}

// NewBackfill creates a Backfill scan. Non-positive batch/grace fall back
// to the defaults.
func NewBackfill(cards store.CardStore, emitter events.EventEmitter, batch int, grace time.Duration, logger *slog.Logger) *Backfill {
	if batch <= 0 {
		batch = DefaultBackfillBatch
	}
	if grace <= 0 {
		grace = DefaultBackfillGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backfill{
		cards:   cards,
		emitter: emitter,
		batch:   batch,
		grace:   grace,
		logger:  logger.With("component", "backfill_scan"),
	}
}

// Run emits one enrichment event per card missing AI metadata, bounded per
// pass, and returns the number of cards re-enqueued. Per-item failures are
// logged and skipped.
func (b *Backfill) Run(ctx context.Context) (int, error) {
	createdBefore := time.Now().UTC().Add(-b.grace)

	cards, err := b.cards.ListMissingAIMetadata(ctx, createdBefore, b.batch)
	if err != nil {
		return 0, fmt.Errorf("list backfill candidates: %w", err)
	}

	enqueued := 0
	for _, card := range cards {
		event, err := events.NewEnrichmentRequested(card.ID)
		if err != nil {
			b.logger.Error("failed to build backfill event", "card_id", card.ID, "error", err)
			continue
		}
		if err := b.emitter.EmitEvent(ctx, event); err != nil {
			b.logger.Error("failed to emit backfill event", "card_id", card.ID, "error", err)
			continue
		}
		enqueued++
	}

	b.logger.Info("backfill scan finished",
		"candidates", len(cards),
		"enqueued", enqueued)
	return enqueued, nil
}

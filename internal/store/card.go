package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pinbox/pinbox-api/internal/domain"
)

// EnrichmentPatch is a field-scoped merge applied to a card by a pipeline
// stage. Nil fields are left untouched, which is what keeps concurrently
// written fields (a categorization landing next to an AI generation) from
// clobbering each other. Stages never issue full-row overwrites.
type EnrichmentPatch struct {
	// Type and URL are set by the classifier when it promotes a card
	// (e.g. a text card holding a single URL becomes a link card).
	Type *domain.CardType
	URL  *string

	// Renderable outputs.
	Colors      []string
	ThumbnailID *string

	// AI-owned fields, written only by the metadata stage.
	AITags       []string
	AISummary    *string
	AITranscript *string

	// Nested metadata records, each replaced as a unit.
	LinkPreview  *domain.LinkPreview
	LinkCategory *domain.LinkCategory
	FileMetadata *domain.FileMetadata
}

// IsZero reports whether the patch would change nothing.
func (p EnrichmentPatch) IsZero() bool {
	return p.Type == nil && p.URL == nil && p.Colors == nil &&
		p.ThumbnailID == nil && p.AITags == nil && p.AISummary == nil &&
		p.AITranscript == nil && p.LinkPreview == nil &&
		p.LinkCategory == nil && p.FileMetadata == nil
}

// CardStore defines the persistence interface for cards.
//
// All enrichment writes carry the card revision they were computed against;
// implementations must reject them with ErrStaleRevision when the card has
// been edited since, so a stale in-flight stage result never overwrites
// newer state.
type CardStore interface {
	// Create saves a new card.
	Create(ctx context.Context, card *domain.Card) error

	// GetByID retrieves a card by its unique ID.
	// Returns ErrCardNotFound if the card does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error)

	// PatchEnrichment applies a field-scoped enrichment merge to the card.
	// Returns ErrStaleRevision when revision no longer matches the card.
	PatchEnrichment(ctx context.Context, id uuid.UUID, revision int64, patch EnrichmentPatch) error

	// SetStageStatus records a stage's processing status on the card.
	// Returns ErrStaleRevision when revision no longer matches the card.
	SetStageStatus(ctx context.Context, id uuid.UUID, revision int64, stage domain.Stage, status domain.StageStatus) error

	// InitStages sets each listed stage to pending if and only if it has no
	// recorded status yet. Idempotent: calling it twice for the same card
	// never resets an already-completed stage.
	InitStages(ctx context.Context, id uuid.UUID, revision int64, stages []domain.Stage) error

	// ResetStages explicitly moves the listed stages back to pending and,
	// when clearAI is set, clears the card's AI-owned fields. Used by
	// superseding edits and manual regeneration.
	ResetStages(ctx context.Context, id uuid.UUID, stages []domain.Stage, clearAI bool) error

	// SoftDelete marks a card deleted, excluding it from enrichment.
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// HardDelete permanently removes a card record. Only the retention
	// sweeper calls this, after its blobs are gone.
	HardDelete(ctx context.Context, id uuid.UUID) error

	// ListSweepCandidates returns cards soft-deleted before the cutoff.
	ListSweepCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Card, error)

	// ListMissingAIMetadata returns up to limit non-deleted cards created
	// before the grace cutoff that still have no AI summary, for the
	// periodic backfill scan.
	ListMissingAIMetadata(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Card, error)

	// WithTx returns a CardStore bound to the provided transaction.
	WithTx(tx *sql.Tx) CardStore
}

// WorkflowStore persists orchestrator runs, including the step cursor that
// makes resumption after a crash reproducible.
type WorkflowStore interface {
	// Create saves a new workflow record.
	Create(ctx context.Context, wf *domain.Workflow) error

	// GetByID retrieves a workflow by its ULID.
	// Returns ErrWorkflowNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)

	// FindRunning returns the running workflow for a card at the given
	// revision, or ErrWorkflowNotFound when none is in flight.
	FindRunning(ctx context.Context, cardID uuid.UUID, cardRevision int64) (*domain.Workflow, error)

	// Update persists the workflow's cursor, attempts and status.
	Update(ctx context.Context, wf *domain.Workflow) error

	// WithTx returns a WorkflowStore bound to the provided transaction.
	WithTx(tx *sql.Tx) WorkflowStore
}

package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrNilOrchestrator = errors.New("orchestrator cannot be nil")
	ErrNilLogger       = errors.New("logger cannot be nil")
	ErrEmptyCardID     = errors.New("card ID cannot be empty")
)

// Orchestrator drives the enrichment run for a single card.
type Orchestrator interface {
	// Start runs or resumes the enrichment workflow for the card and
	// returns the workflow ID.
	Start(ctx context.Context, cardID uuid.UUID) (string, error)
}

// enrichmentPayload represents the serialized data stored in the task
type enrichmentPayload struct {
	CardID uuid.UUID `json:"card_id"`
}

// CardEnrichmentTask implements the Task interface for running the
// enrichment pipeline over a card
type CardEnrichmentTask struct {
	id           uuid.UUID
	cardID       uuid.UUID
	orchestrator Orchestrator
	logger       *slog.Logger
	status       TaskStatus
}

// NewCardEnrichmentTask creates a new card enrichment task
func NewCardEnrichmentTask(
	cardID uuid.UUID,
	orchestrator Orchestrator,
	logger *slog.Logger,
) (*CardEnrichmentTask, error) {
	if orchestrator == nil {
		return nil, ErrNilOrchestrator
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if cardID == uuid.Nil {
		return nil, ErrEmptyCardID
	}

	return &CardEnrichmentTask{
		id:           uuid.New(),
		cardID:       cardID,
		orchestrator: orchestrator,
		logger:       logger.With("task_type", TaskTypeCardEnrichment, "card_id", cardID),
		status:       TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier
func (t *CardEnrichmentTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier
func (t *CardEnrichmentTask) Type() string {
	return TaskTypeCardEnrichment
}

// Payload returns the task data as a byte slice
func (t *CardEnrichmentTask) Payload() []byte {
	data, err := json.Marshal(enrichmentPayload{CardID: t.cardID})
	if err != nil {
		t.logger.Error("failed to marshal task payload", "error", err)
		return []byte{}
	}
	return data
}

// Status returns the current task status
func (t *CardEnrichmentTask) Status() TaskStatus {
	return t.status
}

// Execute runs or resumes the enrichment workflow for the card.
func (t *CardEnrichmentTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing
	t.logger.Info("starting card enrichment task")

	if err := ctx.Err(); err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("task cancelled by context", "error", err)
		return fmt.Errorf("task cancelled by context: %w", err)
	}

	workflowID, err := t.orchestrator.Start(ctx, t.cardID)
	if err != nil {
		t.status = TaskStatusFailed
		t.logger.Error("enrichment run failed", "error", err)
		return fmt.Errorf("enrichment run failed: %w", err)
	}

	t.status = TaskStatusCompleted
	t.logger.Info("card enrichment task completed", "workflow_id", workflowID)
	return nil
}

package task

import (
	"log/slog"

	"github.com/google/uuid"
)

// CardEnrichmentTaskFactory creates CardEnrichmentTask instances with
// shared dependencies.
type CardEnrichmentTaskFactory struct {
	orchestrator Orchestrator
	logger       *slog.Logger
}

// NewCardEnrichmentTaskFactory creates a new factory for card enrichment tasks.
func NewCardEnrichmentTaskFactory(
	orchestrator Orchestrator,
	logger *slog.Logger,
) *CardEnrichmentTaskFactory {
	return &CardEnrichmentTaskFactory{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// CreateTask builds a task that runs the enrichment pipeline for the card.
func (f *CardEnrichmentTaskFactory) CreateTask(cardID uuid.UUID) (Task, error) {
	return NewCardEnrichmentTask(cardID, f.orchestrator, f.logger)
}

var _ TaskFactory = (*CardEnrichmentTaskFactory)(nil)

package domain

import (
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// WorkflowStatus is the overall state of one orchestrator run.
type WorkflowStatus string

// Possible workflow states.
const (
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusAborted   WorkflowStatus = "aborted"
)

// Workflow validation errors
var (
	ErrWorkflowCardIDEmpty = errors.New("workflow card ID cannot be empty")
	ErrWorkflowNoStages    = errors.New("workflow must plan at least one stage")
)

// Workflow is the durable record of one enrichment run for a card. The
// cursor persists which planned stage the run has reached so a crashed run
// resumes at the recorded step instead of starting over. CardRevision pins
// the run to the card content it was started against; results landing after
// the card was edited are dropped.
type Workflow struct {
	ID           string         `json:"id"`
	CardID       uuid.UUID      `json:"card_id"`
	CardRevision int64          `json:"card_revision"`
	Stages       []Stage        `json:"stages"`
	Cursor       int            `json:"cursor"`
	Attempts     map[Stage]int  `json:"attempts,omitempty"`
	Status       WorkflowStatus `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// NewWorkflow creates a running workflow for the card at the given revision
// with the planned stage order. The ID is a ULID so workflow identifiers
// sort by start time in logs and queries.
func NewWorkflow(cardID uuid.UUID, cardRevision int64, stages []Stage) (*Workflow, error) {
	if cardID == uuid.Nil {
		return nil, ErrWorkflowCardIDEmpty
	}
	if len(stages) == 0 {
		return nil, ErrWorkflowNoStages
	}

	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)

	return &Workflow{
		ID:           ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		CardID:       cardID,
		CardRevision: cardRevision,
		Stages:       stages,
		Attempts:     make(map[Stage]int),
		Status:       WorkflowStatusRunning,
		StartedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CurrentStage returns the stage at the cursor, or "" when the run is past
// its last planned stage.
func (w *Workflow) CurrentStage() Stage {
	if w.Cursor < 0 || w.Cursor >= len(w.Stages) {
		return ""
	}
	return w.Stages[w.Cursor]
}

// Advance moves the cursor past the current stage.
func (w *Workflow) Advance() {
	w.Cursor++
	w.UpdatedAt = time.Now().UTC()
}

// RecordAttempt increments and returns the attempt count for a stage.
func (w *Workflow) RecordAttempt(stage Stage) int {
	if w.Attempts == nil {
		w.Attempts = make(map[Stage]int)
	}
	w.Attempts[stage]++
	return w.Attempts[stage]
}

// Complete marks the workflow finished.
func (w *Workflow) Complete() {
	now := time.Now().UTC()
	w.Status = WorkflowStatusCompleted
	w.CompletedAt = &now
	w.UpdatedAt = now
}

// Abort marks the workflow aborted before finishing its planned stages,
// e.g. when classification found the card missing or deleted.
func (w *Workflow) Abort() {
	now := time.Now().UTC()
	w.Status = WorkflowStatusAborted
	w.CompletedAt = &now
	w.UpdatedAt = now
}

// Package task provides the persisted background task runner the
// enrichment pipeline is triggered through.
package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a persisted task.
type TaskStatus string

// Task lifecycle states.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskTypeCardEnrichment is the task type for running a card's enrichment
// workflow.
const TaskTypeCardEnrichment = "card_enrichment"

// Task is one unit of background work. Payload must round-trip through the
// store: a task recovered after a crash is rebuilt from its payload alone.
type Task interface {
	ID() uuid.UUID
	Type() string
	Payload() []byte
	Status() TaskStatus

	// Execute runs the task logic.
	Execute(ctx context.Context) error
}

// TaskStore persists tasks so the runner can recover them across restarts.
type TaskStore interface {
	// SaveTask persists a new task.
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus records a status transition, with an error message
	// for failed tasks.
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// GetPendingTasks returns all tasks awaiting execution.
	GetPendingTasks(ctx context.Context) ([]Task, error)

	// GetProcessingTasks returns in-flight tasks. A non-zero olderThan
	// filters to tasks stuck in processing at least that long.
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]Task, error)

	// WithTx returns a store bound to a caller-managed transaction.
	WithTx(tx *sql.Tx) TaskStore
}

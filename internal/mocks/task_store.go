package mocks

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinbox/pinbox-api/internal/task"
)

// MemTaskStore is an in-memory task.TaskStore. It keeps the Task values it
// was given, so recovered tasks keep their execution logic without needing
// a resolver.
type MemTaskStore struct {
	mu       sync.Mutex
	tasks    map[uuid.UUID]task.Task
	statuses map[uuid.UUID]task.TaskStatus
	updated  map[uuid.UUID]time.Time

	SaveErr   error
	UpdateErr error
}

// NewMemTaskStore returns an empty in-memory task store.
func NewMemTaskStore() *MemTaskStore {
	return &MemTaskStore{
		tasks:    make(map[uuid.UUID]task.Task),
		statuses: make(map[uuid.UUID]task.TaskStatus),
		updated:  make(map[uuid.UUID]time.Time),
	}
}

// SaveTask persists a task.
func (s *MemTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID()] = t
	s.statuses[t.ID()] = t.Status()
	s.updated[t.ID()] = time.Now()
	return nil
}

// UpdateTaskStatus updates the status of a task.
func (s *MemTaskStore) UpdateTaskStatus(
	ctx context.Context,
	taskID uuid.UUID,
	status task.TaskStatus,
	errorMsg string,
) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil
	}
	s.statuses[taskID] = status
	s.updated[taskID] = time.Now()
	return nil
}

// GetPendingTasks retrieves all tasks with pending status.
func (s *MemTaskStore) GetPendingTasks(ctx context.Context) ([]task.Task, error) {
	return s.byStatus(task.TaskStatusPending, 0), nil
}

// GetProcessingTasks retrieves processing tasks, optionally only those not
// updated within olderThan.
func (s *MemTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.Task, error) {
	return s.byStatus(task.TaskStatusProcessing, olderThan), nil
}

// WithTx returns the store itself; the in-memory store has no transactions.
func (s *MemTaskStore) WithTx(tx *sql.Tx) task.TaskStore { return s }

// StatusOf reports the recorded status of a task, for assertions.
func (s *MemTaskStore) StatusOf(taskID uuid.UUID) (task.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[taskID]
	return st, ok
}

func (s *MemTaskStore) byStatus(status task.TaskStatus, olderThan time.Duration) []task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	cutoff := time.Now().Add(-olderThan)
	for id, t := range s.tasks {
		if s.statuses[id] != status {
			continue
		}
		if olderThan > 0 && s.updated[id].After(cutoff) {
			continue
		}
		out = append(out, t)
	}
	return out
}

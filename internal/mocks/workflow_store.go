package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/store"
)

// MemWorkflowStore is an in-memory store.WorkflowStore.
type MemWorkflowStore struct {
	mu        sync.Mutex
	workflows map[string]*domain.Workflow

	CreateErr error
	UpdateErr error
}

// NewMemWorkflowStore returns an empty in-memory workflow store.
func NewMemWorkflowStore() *MemWorkflowStore {
	return &MemWorkflowStore{workflows: make(map[string]*domain.Workflow)}
}

// Create saves a new workflow record.
func (s *MemWorkflowStore) Create(ctx context.Context, wf *domain.Workflow) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; ok {
		return store.ErrDuplicate
	}
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

// GetByID retrieves a copy of the workflow, or store.ErrWorkflowNotFound.
func (s *MemWorkflowStore) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, store.ErrWorkflowNotFound
	}
	return cloneWorkflow(wf), nil
}

// FindRunning returns the most recently started running workflow for the
// card at the given revision.
func (s *MemWorkflowStore) FindRunning(
	ctx context.Context,
	cardID uuid.UUID,
	cardRevision int64,
) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matches []*domain.Workflow
	for _, wf := range s.workflows {
		if wf.CardID == cardID && wf.CardRevision == cardRevision &&
			wf.Status == domain.WorkflowStatusRunning {
			matches = append(matches, wf)
		}
	}
	if len(matches) == 0 {
		return nil, store.ErrWorkflowNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].StartedAt.After(matches[j].StartedAt)
	})
	return cloneWorkflow(matches[0]), nil
}

// Update persists the workflow's cursor, attempts and status.
func (s *MemWorkflowStore) Update(ctx context.Context, wf *domain.Workflow) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; !ok {
		return store.ErrWorkflowNotFound
	}
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

// WithTx returns the store itself; the in-memory store has no transactions.
func (s *MemWorkflowStore) WithTx(tx *sql.Tx) store.WorkflowStore { return s }

// All returns copies of every stored workflow, for assertions.
func (s *MemWorkflowStore) All() []*domain.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		out = append(out, cloneWorkflow(wf))
	}
	return out
}

func cloneWorkflow(wf *domain.Workflow) *domain.Workflow {
	cp := *wf
	cp.Stages = append([]domain.Stage(nil), wf.Stages...)
	if wf.Attempts != nil {
		cp.Attempts = make(map[domain.Stage]int, len(wf.Attempts))
		for k, v := range wf.Attempts {
			cp.Attempts[k] = v
		}
	}
	if wf.CompletedAt != nil {
		t := *wf.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

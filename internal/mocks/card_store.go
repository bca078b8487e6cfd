package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/store"
)

// MemCardStore is an in-memory store.CardStore that enforces the same
// revision guards as the database implementation: enrichment writes against
// a revision that no longer matches return store.ErrStaleRevision, and
// writes against deleted cards are dropped the same way.
type MemCardStore struct {
	mu    sync.Mutex
	cards map[uuid.UUID]*domain.Card

	// Optional per-method error overrides for failure-path tests.
	CreateErr error
	GetErr    error
	PatchErr  error
}

// NewMemCardStore returns an empty in-memory card store.
func NewMemCardStore() *MemCardStore {
	return &MemCardStore{cards: make(map[uuid.UUID]*domain.Card)}
}

// Seed inserts a card directly, bypassing validation. The stored card is a
// copy, so later mutations of the argument do not leak into the store.
func (s *MemCardStore) Seed(card *domain.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := cloneCard(card)
	s.cards[c.ID] = c
}

// Create saves a new card.
func (s *MemCardStore) Create(ctx context.Context, card *domain.Card) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if err := card.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[card.ID]; ok {
		return store.ErrDuplicate
	}
	s.cards[card.ID] = cloneCard(card)
	return nil
}

// GetByID retrieves a copy of the card, or store.ErrCardNotFound.
func (s *MemCardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return cloneCard(c), nil
}

// PatchEnrichment applies a field-scoped merge under the revision guard.
func (s *MemCardStore) PatchEnrichment(
	ctx context.Context,
	id uuid.UUID,
	revision int64,
	patch store.EnrichmentPatch,
) error {
	if s.PatchErr != nil {
		return s.PatchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.writable(id, revision)
	if err != nil {
		return err
	}

	if patch.Type != nil {
		c.Type = *patch.Type
	}
	if patch.URL != nil {
		c.URL = *patch.URL
	}
	if patch.Colors != nil {
		c.Colors = append([]string(nil), patch.Colors...)
	}
	if patch.ThumbnailID != nil {
		c.ThumbnailID = *patch.ThumbnailID
	}
	if patch.AITags != nil {
		c.AITags = append([]string(nil), patch.AITags...)
	}
	if patch.AISummary != nil {
		c.AISummary = *patch.AISummary
	}
	if patch.AITranscript != nil {
		c.AITranscript = *patch.AITranscript
	}
	if patch.LinkPreview != nil {
		lp := *patch.LinkPreview
		c.Metadata.LinkPreview = &lp
	}
	if patch.LinkCategory != nil {
		lc := *patch.LinkCategory
		c.Metadata.LinkCategory = &lc
	}
	if patch.FileMetadata != nil {
		fm := *patch.FileMetadata
		c.Metadata.FileMetadata = &fm
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetStageStatus records a stage status under the revision guard.
func (s *MemCardStore) SetStageStatus(
	ctx context.Context,
	id uuid.UUID,
	revision int64,
	stage domain.Stage,
	status domain.StageStatus,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.writable(id, revision)
	if err != nil {
		return err
	}
	if c.ProcessingStatus == nil {
		c.ProcessingStatus = make(map[domain.Stage]domain.StageStatus)
	}
	c.ProcessingStatus[stage] = status
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// InitStages sets listed stages to pending only where no status exists yet.
func (s *MemCardStore) InitStages(
	ctx context.Context,
	id uuid.UUID,
	revision int64,
	stages []domain.Stage,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.writable(id, revision)
	if err != nil {
		return err
	}
	if c.ProcessingStatus == nil {
		c.ProcessingStatus = make(map[domain.Stage]domain.StageStatus)
	}
	for _, stage := range stages {
		if _, ok := c.ProcessingStatus[stage]; !ok {
			c.ProcessingStatus[stage] = domain.StageStatus{State: domain.StageStatePending}
		}
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetStages forces listed stages back to pending, bumps the revision so
// in-flight results against the old revision are dropped, and optionally
// clears the AI-owned fields.
func (s *MemCardStore) ResetStages(
	ctx context.Context,
	id uuid.UUID,
	stages []domain.Stage,
	clearAI bool,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || c.IsDeleted {
		return store.ErrCardNotFound
	}
	if c.ProcessingStatus == nil {
		c.ProcessingStatus = make(map[domain.Stage]domain.StageStatus)
	}
	for _, stage := range stages {
		c.ProcessingStatus[stage] = domain.StageStatus{State: domain.StageStatePending}
	}
	if clearAI {
		c.AITags = nil
		c.AISummary = ""
		c.AITranscript = ""
	}
	c.Revision++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SoftDelete marks the card deleted.
func (s *MemCardStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok || c.IsDeleted {
		return store.ErrCardNotFound
	}
	now := time.Now().UTC()
	c.IsDeleted = true
	c.DeletedAt = &now
	c.UpdatedAt = now
	return nil
}

// HardDelete removes the card record entirely.
func (s *MemCardStore) HardDelete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[id]; !ok {
		return store.ErrCardNotFound
	}
	delete(s.cards, id)
	return nil
}

// ListSweepCandidates returns soft-deleted cards older than the cutoff,
// oldest deletion first.
func (s *MemCardStore) ListSweepCandidates(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Card
	for _, c := range s.cards {
		if c.IsDeleted && c.DeletedAt != nil && c.DeletedAt.Before(cutoff) {
			out = append(out, cloneCard(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeletedAt.Before(*out[j].DeletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListMissingAIMetadata returns non-deleted cards created before the cutoff
// with no AI summary.
func (s *MemCardStore) ListMissingAIMetadata(
	ctx context.Context,
	createdBefore time.Time,
	limit int,
) ([]*domain.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Card
	for _, c := range s.cards {
		if !c.IsDeleted && c.AISummary == "" && c.CreatedAt.Before(createdBefore) {
			out = append(out, cloneCard(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithTx returns the store itself; the in-memory store has no transactions.
func (s *MemCardStore) WithTx(tx *sql.Tx) store.CardStore { return s }

// Len reports how many card records exist, deleted or not.
func (s *MemCardStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cards)
}

// writable resolves the card for a revision-guarded write. Must be called
// with the mutex held.
func (s *MemCardStore) writable(id uuid.UUID, revision int64) (*domain.Card, error) {
	c, ok := s.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	if c.IsDeleted || c.Revision != revision {
		return nil, store.ErrStaleRevision
	}
	return c, nil
}

func cloneCard(c *domain.Card) *domain.Card {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	cp.Colors = append([]string(nil), c.Colors...)
	cp.AITags = append([]string(nil), c.AITags...)
	if c.ProcessingStatus != nil {
		cp.ProcessingStatus = make(map[domain.Stage]domain.StageStatus, len(c.ProcessingStatus))
		for k, v := range c.ProcessingStatus {
			cp.ProcessingStatus[k] = v
		}
	}
	if c.Metadata.LinkPreview != nil {
		lp := *c.Metadata.LinkPreview
		cp.Metadata.LinkPreview = &lp
	}
	if c.Metadata.LinkCategory != nil {
		lc := *c.Metadata.LinkCategory
		cp.Metadata.LinkCategory = &lc
	}
	if c.Metadata.FileMetadata != nil {
		fm := *c.Metadata.FileMetadata
		cp.Metadata.FileMetadata = &fm
	}
	if c.DeletedAt != nil {
		t := *c.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

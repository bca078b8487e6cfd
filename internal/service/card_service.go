package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/events"
	"github.com/pinbox/pinbox-api/internal/ratelimit"
	"github.com/pinbox/pinbox-api/internal/store"
)

// CardRepository defines the repository surface the service layer needs.
// It is aligned with store.CardStore to keep the layers separated.
type CardRepository interface {
	// Create saves a new card to the store
	Create(ctx context.Context, card *domain.Card) error

	// GetByID retrieves a card by its unique ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error)

	// ResetStages moves the listed stages back to pending and optionally
	// clears AI-derived fields
	ResetStages(ctx context.Context, id uuid.UUID, stages []domain.Stage, clearAI bool) error

	// SoftDelete marks a card deleted
	SoftDelete(ctx context.Context, id uuid.UUID) error

	// WithTx returns a repository bound to the provided transaction
	WithTx(tx *sql.Tx) store.CardStore

	// DB returns the underlying database connection
	DB() *sql.DB
}

// AdmissionLimiter gates card creation per owner.
type AdmissionLimiter interface {
	Check(kind ratelimit.Kind, identifier string, count int) ratelimit.Decision
}

// CardService provides card-related operations
type CardService interface {
	// SaveCard creates a new card and enqueues it for enrichment
	SaveCard(ctx context.Context, ownerID uuid.UUID, input SaveCardInput) (*domain.Card, error)

	// RegenerateAI resets a card's AI metadata and enqueues a fresh
	// enrichment run
	RegenerateAI(ctx context.Context, ownerID, cardID uuid.UUID) error

	// GetCard retrieves a card, enforcing ownership
	GetCard(ctx context.Context, ownerID, cardID uuid.UUID) (*domain.Card, error)

	// DeleteCard soft-deletes a card, enforcing ownership
	DeleteCard(ctx context.Context, ownerID, cardID uuid.UUID) error
}

// SaveCardInput carries the user-provided fields for a new card.
type SaveCardInput struct {
	Type    domain.CardType `json:"type" validate:"required"`
	Content string          `json:"content,omitempty"`
	URL     string          `json:"url,omitempty"`
	FileID  string          `json:"file_id,omitempty"`
	Notes   string          `json:"notes,omitempty"`
	Tags    []string        `json:"tags,omitempty"`
}

// Common sentinel errors for CardService
var (
	// ErrCardNotFound indicates that the card does not exist
	ErrCardNotFound = errors.New("card not found")

	// ErrRateLimited indicates the owner has exceeded the card creation
	// admission limit. RetryAt on the wrapped RateLimitError says when to
	// try again.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitError carries the admission decision alongside ErrRateLimited.
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry at %s", e.Decision.RetryAt.Format("15:04:05.000"))
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// CardServiceError wraps errors from the card service with context.
type CardServiceError struct {
	// Operation is the operation that failed (e.g., "save_card", "regenerate_ai")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for CardServiceError.
func (e *CardServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("card service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("card service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *CardServiceError) Unwrap() error {
	return e.Err
}

// NewCardServiceError creates a new CardServiceError.
// It returns known sentinel errors directly without wrapping.
func NewCardServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrCardNotFound) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrValidation) {
		return err
	}

	if errors.Is(err, store.ErrCardNotFound) || errors.Is(err, store.ErrNotFound) {
		return ErrCardNotFound
	}

	return &CardServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// cardServiceImpl implements the CardService interface
type cardServiceImpl struct {
	cardRepo     CardRepository
	limiter      AdmissionLimiter
	eventEmitter events.EventEmitter
	logger       *slog.Logger
}

// NewCardService creates a new CardService.
// It returns an error if any of the required dependencies are nil.
func NewCardService(
	cardRepo CardRepository,
	limiter AdmissionLimiter,
	eventEmitter events.EventEmitter,
	logger *slog.Logger,
) (CardService, error) {
	if cardRepo == nil {
		return nil, &CardServiceError{
			Operation: "create_service",
			Message:   "cardRepo cannot be nil",
		}
	}
	if limiter == nil {
		return nil, &CardServiceError{
			Operation: "create_service",
			Message:   "limiter cannot be nil",
		}
	}
	if eventEmitter == nil {
		return nil, &CardServiceError{
			Operation: "create_service",
			Message:   "eventEmitter cannot be nil",
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &cardServiceImpl{
		cardRepo:     cardRepo,
		limiter:      limiter,
		eventEmitter: eventEmitter,
		logger:       logger.With("component", "card_service"),
	}, nil
}

// SaveCard runs the admission check, persists the card with all enrichment
// stages pending, and emits an enrichment request event. The card is returned
// immediately; stages fill in asynchronously.
func (s *cardServiceImpl) SaveCard(
	ctx context.Context,
	ownerID uuid.UUID,
	input SaveCardInput,
) (*domain.Card, error) {
	// Admission check happens before any persistence work.
	decision := s.limiter.Check(ratelimit.KindCardCreate, ownerID.String(), 1)
	if !decision.OK {
		s.logger.Info("card creation rejected by admission limiter",
			"owner_id", ownerID,
			"retry_at", decision.RetryAt)
		return nil, &RateLimitError{Decision: decision}
	}

	card, err := domain.NewCard(ownerID, input.Type, input.Content, input.URL, input.FileID)
	if err != nil {
		s.logger.Warn("failed to create card object",
			"error", err,
			"owner_id", ownerID)
		return nil, NewCardServiceError("save_card", "failed to create card object", err)
	}
	card.Notes = input.Notes
	card.Tags = input.Tags

	err = store.RunInTransaction(ctx, s.cardRepo.DB(), func(ctx context.Context, tx *sql.Tx) error {
		txRepo := s.cardRepo.WithTx(tx)
		if err := txRepo.Create(ctx, card); err != nil {
			s.logger.Error("failed to create card in transaction",
				"error", err,
				"owner_id", ownerID,
				"card_id", card.ID)
			return NewCardServiceError("save_card", "failed to save card to database", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("card created successfully with pending stages",
		"card_id", card.ID,
		"owner_id", ownerID,
		"card_type", card.Type)

	if err := s.emitEnrichment(ctx, card.ID, "save_card"); err != nil {
		return nil, err
	}

	return card, nil
}

// RegenerateAI verifies ownership, resets the metadata stage and clears
// AI-derived fields, then enqueues a fresh enrichment run. User-owned fields
// are untouched.
func (s *cardServiceImpl) RegenerateAI(ctx context.Context, ownerID, cardID uuid.UUID) error {
	card, err := s.getOwnedCard(ctx, ownerID, cardID, "regenerate_ai")
	if err != nil {
		return err
	}

	if err := s.cardRepo.ResetStages(ctx, card.ID, []domain.Stage{domain.StageMetadata}, true); err != nil {
		s.logger.Error("failed to reset AI stages",
			"error", err,
			"card_id", cardID)
		return NewCardServiceError("regenerate_ai", "failed to reset stages", err)
	}

	s.logger.Info("AI metadata reset, re-enqueueing enrichment",
		"card_id", cardID,
		"owner_id", ownerID)

	return s.emitEnrichment(ctx, cardID, "regenerate_ai")
}

// GetCard retrieves a card, enforcing ownership.
func (s *cardServiceImpl) GetCard(ctx context.Context, ownerID, cardID uuid.UUID) (*domain.Card, error) {
	return s.getOwnedCard(ctx, ownerID, cardID, "get_card")
}

// DeleteCard soft-deletes a card after an ownership check. The retention
// sweeper reclaims the record and its blobs later.
func (s *cardServiceImpl) DeleteCard(ctx context.Context, ownerID, cardID uuid.UUID) error {
	card, err := s.getOwnedCard(ctx, ownerID, cardID, "delete_card")
	if err != nil {
		return err
	}

	if err := s.cardRepo.SoftDelete(ctx, card.ID); err != nil {
		s.logger.Error("failed to soft-delete card",
			"error", err,
			"card_id", cardID)
		return NewCardServiceError("delete_card", "failed to delete card", err)
	}

	s.logger.Info("card soft-deleted", "card_id", cardID, "owner_id", ownerID)
	return nil
}

// getOwnedCard loads a card and rejects callers that do not own it.
// Ownership failures surface before any scheduling or mutation.
func (s *cardServiceImpl) getOwnedCard(
	ctx context.Context,
	ownerID, cardID uuid.UUID,
	operation string,
) (*domain.Card, error) {
	card, err := s.cardRepo.GetByID(ctx, cardID)
	if err != nil {
		return nil, NewCardServiceError(operation, "failed to retrieve card", err)
	}
	if card.OwnerID != ownerID {
		s.logger.Warn("ownership check failed",
			"card_id", cardID,
			"owner_id", ownerID)
		return nil, domain.ErrUnauthorized
	}
	if card.IsDeleted {
		return nil, ErrCardNotFound
	}
	return card, nil
}

func (s *cardServiceImpl) emitEnrichment(ctx context.Context, cardID uuid.UUID, operation string) error {
	event, err := events.NewEnrichmentRequested(cardID)
	if err != nil {
		s.logger.Error("failed to create enrichment event",
			"error", err,
			"card_id", cardID)
		return NewCardServiceError(operation, "failed to create event", err)
	}

	if err := s.eventEmitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit enrichment event",
			"error", err,
			"card_id", cardID,
			"event_id", event.ID)
		return NewCardServiceError(operation, "failed to emit event", err)
	}

	return nil
}

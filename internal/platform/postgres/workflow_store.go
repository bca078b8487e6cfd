package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/platform/logger"
	"github.com/pinbox/pinbox-api/internal/store"
)

// PostgresWorkflowStore implements the store.WorkflowStore interface using
// PostgreSQL. The persisted cursor and attempt counts are what make a
// crashed run resume at its recorded step.
type PostgresWorkflowStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresWorkflowStore creates a new PostgreSQL implementation of the
// WorkflowStore interface.
func NewPostgresWorkflowStore(db store.DBTX, logger *slog.Logger) *PostgresWorkflowStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresWorkflowStore{
		db:     db,
		logger: logger.With(slog.String("component", "workflow_store")),
	}
}

var _ store.WorkflowStore = (*PostgresWorkflowStore)(nil)

// WithTx returns a WorkflowStore bound to the provided transaction.
func (s *PostgresWorkflowStore) WithTx(tx *sql.Tx) store.WorkflowStore {
	return &PostgresWorkflowStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create saves a new workflow record.
func (s *PostgresWorkflowStore) Create(ctx context.Context, wf *domain.Workflow) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	stages, err := json.Marshal(wf.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}
	attempts, err := json.Marshal(wf.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}

	query := `
		INSERT INTO workflows (id, card_id, card_revision, stages, cursor,
			attempts, status, started_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		wf.ID,
		wf.CardID,
		wf.CardRevision,
		stages,
		wf.Cursor,
		attempts,
		wf.Status,
		wf.StartedAt,
		wf.UpdatedAt,
		wf.CompletedAt,
	)
	if err != nil {
		log.Error("failed to create workflow",
			slog.String("error", err.Error()),
			slog.String("workflow_id", wf.ID),
			slog.String("card_id", wf.CardID.String()))
		return MapError(err)
	}

	log.Info("workflow created",
		slog.String("workflow_id", wf.ID),
		slog.String("card_id", wf.CardID.String()),
		slog.Int64("card_revision", wf.CardRevision))
	return nil
}

// GetByID retrieves a workflow by its ULID.
// Returns store.ErrWorkflowNotFound if it does not exist.
func (s *PostgresWorkflowStore) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	query := `
		SELECT id, card_id, card_revision, stages, cursor, attempts, status,
			started_at, updated_at, completed_at
		FROM workflows
		WHERE id = $1
	`
	return s.getOne(ctx, query, id)
}

// FindRunning returns the running workflow for a card at the given revision,
// or store.ErrWorkflowNotFound when none is in flight.
func (s *PostgresWorkflowStore) FindRunning(
	ctx context.Context,
	cardID uuid.UUID,
	cardRevision int64,
) (*domain.Workflow, error) {
	query := `
		SELECT id, card_id, card_revision, stages, cursor, attempts, status,
			started_at, updated_at, completed_at
		FROM workflows
		WHERE card_id = $1 AND card_revision = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT 1
	`
	return s.getOne(ctx, query, cardID, cardRevision, domain.WorkflowStatusRunning)
}

// Update persists the workflow's cursor, attempts and status.
func (s *PostgresWorkflowStore) Update(ctx context.Context, wf *domain.Workflow) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	attempts, err := json.Marshal(wf.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}

	query := `
		UPDATE workflows
		SET cursor = $1, attempts = $2, status = $3, updated_at = $4, completed_at = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(
		ctx,
		query,
		wf.Cursor,
		attempts,
		wf.Status,
		wf.UpdatedAt,
		wf.CompletedAt,
		wf.ID,
	)
	if err != nil {
		log.Error("failed to update workflow",
			slog.String("error", err.Error()),
			slog.String("workflow_id", wf.ID))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrWorkflowNotFound
	}

	return nil
}

func (s *PostgresWorkflowStore) getOne(
	ctx context.Context,
	query string,
	args ...interface{},
) (*domain.Workflow, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	var (
		wf          domain.Workflow
		stages      []byte
		attempts    []byte
		completedAt sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&wf.ID,
		&wf.CardID,
		&wf.CardRevision,
		&stages,
		&wf.Cursor,
		&attempts,
		&wf.Status,
		&wf.StartedAt,
		&wf.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWorkflowNotFound
		}
		log.Error("failed to get workflow", slog.String("error", err.Error()))
		return nil, err
	}

	if completedAt.Valid {
		t := completedAt.Time
		wf.CompletedAt = &t
	}
	if err := json.Unmarshal(stages, &wf.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
	}
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &wf.Attempts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attempts: %w", err)
		}
	}
	if wf.Attempts == nil {
		wf.Attempts = make(map[domain.Stage]int)
	}

	return &wf, nil
}

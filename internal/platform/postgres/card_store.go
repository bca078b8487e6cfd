package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/platform/logger"
	"github.com/pinbox/pinbox-api/internal/store"
)

// cardColumns is the column list shared by every card SELECT.
const cardColumns = `id, owner_id, type, content, url, file_id, notes, tags,
	colors, ai_tags, ai_summary, ai_transcript, metadata, processing_status,
	thumbnail_id, revision, is_deleted, deleted_at, created_at, updated_at`

// PostgresCardStore implements the store.CardStore interface using a
// PostgreSQL database as the storage backend. Enrichment writes carry the
// revision they were computed against and fail with store.ErrStaleRevision
// when the card has moved on.
type PostgresCardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCardStore creates a new PostgreSQL implementation of the
// CardStore interface. It accepts a database connection or transaction
// managed by the caller. If logger is nil, a default logger is used.
func NewPostgresCardStore(db store.DBTX, logger *slog.Logger) *PostgresCardStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCardStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_store")),
	}
}

var _ store.CardStore = (*PostgresCardStore)(nil)

// WithTx returns a CardStore bound to the provided transaction.
func (s *PostgresCardStore) WithTx(tx *sql.Tx) store.CardStore {
	return &PostgresCardStore{
		db:     tx,
		logger: s.logger,
	}
}

// Create saves a new card, validating it first. Returns
// store.ErrInvalidEntity on constraint violations.
func (s *PostgresCardStore) Create(ctx context.Context, card *domain.Card) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := card.Validate(); err != nil {
		log.Warn("card validation failed during create",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()))
		return err
	}

	tags, err := marshalJSONB(card.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	colors, err := marshalJSONB(card.Colors)
	if err != nil {
		return fmt.Errorf("failed to marshal colors: %w", err)
	}
	aiTags, err := marshalJSONB(card.AITags)
	if err != nil {
		return fmt.Errorf("failed to marshal ai tags: %w", err)
	}
	metadata, err := json.Marshal(card.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	stages, err := json.Marshal(card.ProcessingStatus)
	if err != nil {
		return fmt.Errorf("failed to marshal processing status: %w", err)
	}

	query := `
		INSERT INTO cards (id, owner_id, type, content, url, file_id, notes,
			tags, colors, ai_tags, ai_summary, ai_transcript, metadata,
			processing_status, thumbnail_id, revision, is_deleted, deleted_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20)
	`
	_, err = s.db.ExecContext(
		ctx,
		query,
		card.ID,
		card.OwnerID,
		card.Type,
		card.Content,
		card.URL,
		card.FileID,
		card.Notes,
		tags,
		colors,
		aiTags,
		card.AISummary,
		card.AITranscript,
		metadata,
		stages,
		card.ThumbnailID,
		card.Revision,
		card.IsDeleted,
		card.DeletedAt,
		card.CreatedAt,
		card.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create card",
			slog.String("error", err.Error()),
			slog.String("card_id", card.ID.String()),
			slog.String("owner_id", card.OwnerID.String()))
		return MapError(err)
	}

	log.Info("card created successfully",
		slog.String("card_id", card.ID.String()),
		slog.String("owner_id", card.OwnerID.String()),
		slog.String("type", string(card.Type)))
	return nil
}

// GetByID retrieves a card by its unique ID.
// Returns store.ErrCardNotFound if the card does not exist.
func (s *PostgresCardStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`SELECT %s FROM cards WHERE id = $1`, cardColumns)

	card, err := scanCard(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("card not found", slog.String("card_id", id.String()))
			return nil, store.ErrCardNotFound
		}
		log.Error("failed to get card by ID",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return nil, err
	}

	return card, nil
}

// PatchEnrichment applies a field-scoped enrichment merge to the card.
// Nested metadata records are merged with jsonb concatenation so fields
// written by other stages are left intact. Returns store.ErrStaleRevision
// when revision no longer matches the card.
func (s *PostgresCardStore) PatchEnrichment(
	ctx context.Context,
	id uuid.UUID,
	revision int64,
	patch store.EnrichmentPatch,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if patch.IsZero() {
		return nil
	}

	sets := []string{"updated_at = $1"}
	args := []interface{}{time.Now().UTC()}
	next := 2
	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if patch.Type != nil {
		add("type", *patch.Type)
	}
	if patch.URL != nil {
		add("url", *patch.URL)
	}
	if patch.ThumbnailID != nil {
		add("thumbnail_id", *patch.ThumbnailID)
	}
	if patch.AISummary != nil {
		add("ai_summary", *patch.AISummary)
	}
	if patch.AITranscript != nil {
		add("ai_transcript", *patch.AITranscript)
	}
	if patch.Colors != nil {
		b, err := marshalJSONB(patch.Colors)
		if err != nil {
			return fmt.Errorf("failed to marshal colors: %w", err)
		}
		add("colors", b)
	}
	if patch.AITags != nil {
		b, err := marshalJSONB(patch.AITags)
		if err != nil {
			return fmt.Errorf("failed to marshal ai tags: %w", err)
		}
		add("ai_tags", b)
	}

	// Metadata sub-records replace as units but never clobber siblings.
	meta := map[string]interface{}{}
	if patch.LinkPreview != nil {
		meta["link_preview"] = patch.LinkPreview
	}
	if patch.LinkCategory != nil {
		meta["link_category"] = patch.LinkCategory
	}
	if patch.FileMetadata != nil {
		meta["file_metadata"] = patch.FileMetadata
	}
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata patch: %w", err)
		}
		sets = append(sets, fmt.Sprintf("metadata = metadata || $%d::jsonb", next))
		args = append(args, b)
		next++
	}

	query := fmt.Sprintf(
		`UPDATE cards SET %s WHERE id = $%d AND revision = $%d AND NOT is_deleted`,
		strings.Join(sets, ", "), next, next+1,
	)
	args = append(args, id, revision)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to patch card enrichment",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return MapError(err)
	}

	return s.checkRevisionWrite(ctx, result, id, revision, "enrichment patch")
}

// SetStageStatus records a stage's processing status on the card.
// Returns store.ErrStaleRevision when revision no longer matches the card.
func (s *PostgresCardStore) SetStageStatus(
	ctx context.Context,
	id uuid.UUID,
	revision int64,
	stage domain.Stage,
	status domain.StageStatus,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	b, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal stage status: %w", err)
	}

	query := `
		UPDATE cards
		SET processing_status = processing_status || jsonb_build_object($1::text, $2::jsonb),
		    updated_at = $3
		WHERE id = $4 AND revision = $5 AND NOT is_deleted
	`
	result, err := s.db.ExecContext(ctx, query, string(stage), b, time.Now().UTC(), id, revision)
	if err != nil {
		log.Error("failed to set stage status",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()),
			slog.String("stage", string(stage)))
		return MapError(err)
	}

	return s.checkRevisionWrite(ctx, result, id, revision, "stage status write")
}

// InitStages sets each listed stage to pending if and only if it has no
// recorded status yet. An already-recorded stage is left untouched, which is
// what makes double-triggered runs safe.
func (s *PostgresCardStore) InitStages(
	ctx context.Context,
	id uuid.UUID,
	revision int64,
	stages []domain.Stage,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(stages) == 0 {
		return nil
	}

	pending := make(map[domain.Stage]domain.StageStatus, len(stages))
	for _, stage := range stages {
		pending[stage] = domain.StageStatus{State: domain.StageStatePending}
	}
	b, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending stages: %w", err)
	}

	// Existing keys win in the concatenation, so a completed stage is never
	// reset back to pending.
	query := `
		UPDATE cards
		SET processing_status = $1::jsonb || processing_status,
		    updated_at = $2
		WHERE id = $3 AND revision = $4 AND NOT is_deleted
	`
	result, err := s.db.ExecContext(ctx, query, b, time.Now().UTC(), id, revision)
	if err != nil {
		log.Error("failed to init stages",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return MapError(err)
	}

	return s.checkRevisionWrite(ctx, result, id, revision, "stage init")
}

// ResetStages moves the listed stages back to pending and, when clearAI is
// set, clears the card's AI-owned fields. The revision is bumped so any
// in-flight result computed against the old state is dropped on write.
func (s *PostgresCardStore) ResetStages(
	ctx context.Context,
	id uuid.UUID,
	stages []domain.Stage,
	clearAI bool,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(stages) == 0 {
		return nil
	}

	pending := make(map[domain.Stage]domain.StageStatus, len(stages))
	for _, stage := range stages {
		pending[stage] = domain.StageStatus{State: domain.StageStatePending}
	}
	b, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending stages: %w", err)
	}

	sets := `processing_status = processing_status || $1::jsonb,
		revision = revision + 1,
		updated_at = $2`
	if clearAI {
		sets += `,
		ai_tags = NULL,
		ai_summary = NULL,
		ai_transcript = NULL`
	}

	query := fmt.Sprintf(`
		UPDATE cards
		SET %s
		WHERE id = $3 AND NOT is_deleted
	`, sets)

	result, err := s.db.ExecContext(ctx, query, b, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to reset stages",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrCardNotFound
	}

	log.Info("stages reset",
		slog.String("card_id", id.String()),
		slog.Bool("cleared_ai", clearAI))
	return nil
}

// SoftDelete marks a card deleted, excluding it from enrichment.
func (s *PostgresCardStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	now := time.Now().UTC()
	query := `
		UPDATE cards
		SET is_deleted = TRUE, deleted_at = $1, updated_at = $1
		WHERE id = $2 AND NOT is_deleted
	`
	result, err := s.db.ExecContext(ctx, query, now, id)
	if err != nil {
		log.Error("failed to soft-delete card",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrCardNotFound
	}

	log.Info("card soft-deleted", slog.String("card_id", id.String()))
	return nil
}

// HardDelete permanently removes a card record. Only the retention sweeper
// calls this, after the card's blobs are gone.
func (s *PostgresCardStore) HardDelete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to hard-delete card",
			slog.String("error", err.Error()),
			slog.String("card_id", id.String()))
		return MapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrCardNotFound
	}

	log.Info("card permanently deleted", slog.String("card_id", id.String()))
	return nil
}

// ListSweepCandidates returns cards soft-deleted before the cutoff, oldest
// deletion first.
func (s *PostgresCardStore) ListSweepCandidates(
	ctx context.Context,
	cutoff time.Time,
	limit int,
) ([]*domain.Card, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM cards
		WHERE is_deleted AND deleted_at < $1
		ORDER BY deleted_at ASC
		LIMIT $2
	`, cardColumns)

	return s.queryCards(ctx, query, cutoff, limit)
}

// ListMissingAIMetadata returns up to limit non-deleted cards created before
// the grace cutoff that still have no AI summary.
func (s *PostgresCardStore) ListMissingAIMetadata(
	ctx context.Context,
	createdBefore time.Time,
	limit int,
) ([]*domain.Card, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM cards
		WHERE NOT is_deleted
		  AND created_at < $1
		  AND (ai_summary IS NULL OR ai_summary = '')
		ORDER BY created_at ASC
		LIMIT $2
	`, cardColumns)

	return s.queryCards(ctx, query, createdBefore, limit)
}

// checkRevisionWrite distinguishes why a revision-guarded UPDATE matched no
// rows: a missing card is ErrCardNotFound, everything else (revision moved
// on, card deleted meanwhile) is ErrStaleRevision.
func (s *PostgresCardStore) checkRevisionWrite(
	ctx context.Context,
	result sql.Result,
	id uuid.UUID,
	revision int64,
	operation string,
) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var current int64
	err = s.db.QueryRowContext(ctx, `SELECT revision FROM cards WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrCardNotFound
	}
	if err != nil {
		return err
	}

	log.Debug("dropping stale write",
		slog.String("operation", operation),
		slog.String("card_id", id.String()),
		slog.Int64("write_revision", revision),
		slog.Int64("current_revision", current))
	return store.ErrStaleRevision
}

func (s *PostgresCardStore) queryCards(
	ctx context.Context,
	query string,
	args ...interface{},
) ([]*domain.Card, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query cards", slog.String("error", err.Error()))
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cards []*domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			log.Error("failed to scan card row", slog.String("error", err.Error()))
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating card rows", slog.String("error", err.Error()))
		return nil, err
	}

	return cards, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var (
		card         domain.Card
		content      sql.NullString
		url          sql.NullString
		fileID       sql.NullString
		notes        sql.NullString
		tags         []byte
		colors       []byte
		aiTags       []byte
		aiSummary    sql.NullString
		aiTranscript sql.NullString
		metadata     []byte
		stages       []byte
		thumbnailID  sql.NullString
		deletedAt    sql.NullTime
	)

	err := row.Scan(
		&card.ID,
		&card.OwnerID,
		&card.Type,
		&content,
		&url,
		&fileID,
		&notes,
		&tags,
		&colors,
		&aiTags,
		&aiSummary,
		&aiTranscript,
		&metadata,
		&stages,
		&thumbnailID,
		&card.Revision,
		&card.IsDeleted,
		&deletedAt,
		&card.CreatedAt,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	card.Content = content.String
	card.URL = url.String
	card.FileID = fileID.String
	card.Notes = notes.String
	card.AISummary = aiSummary.String
	card.AITranscript = aiTranscript.String
	card.ThumbnailID = thumbnailID.String
	if deletedAt.Valid {
		t := deletedAt.Time
		card.DeletedAt = &t
	}

	if err := unmarshalJSONB(tags, &card.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	if err := unmarshalJSONB(colors, &card.Colors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal colors: %w", err)
	}
	if err := unmarshalJSONB(aiTags, &card.AITags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ai tags: %w", err)
	}
	if err := unmarshalJSONB(metadata, &card.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if err := unmarshalJSONB(stages, &card.ProcessingStatus); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processing status: %w", err)
	}

	return &card, nil
}

// marshalJSONB marshals a slice for a jsonb column, mapping nil to SQL NULL.
func marshalJSONB(v []string) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalJSONB(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

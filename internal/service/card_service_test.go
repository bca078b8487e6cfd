package service_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/events"
	"github.com/pinbox/pinbox-api/internal/mocks"
	"github.com/pinbox/pinbox-api/internal/ratelimit"
	"github.com/pinbox/pinbox-api/internal/service"
)

// stubLimiter admits or rejects everything.
type stubLimiter struct {
	allow   bool
	retryAt time.Time
	checks  int
}

func (l *stubLimiter) Check(kind ratelimit.Kind, identifier string, count int) ratelimit.Decision {
	l.checks++
	if l.allow {
		return ratelimit.Decision{OK: true}
	}
	return ratelimit.Decision{OK: false, RetryAt: l.retryAt}
}

func newTestService(t *testing.T, repo *mocks.MemCardRepository, limiter *stubLimiter, emitter *mocks.MockEventEmitter) service.CardService {
	t.Helper()
	svc, err := service.NewCardService(repo, limiter, emitter, slog.Default())
	require.NoError(t, err)
	return svc
}

func TestNewCardServiceRejectsNilDependencies(t *testing.T) {
	t.Parallel()
	repo := mocks.NewMemCardRepository()
	limiter := &stubLimiter{allow: true}
	emitter := &mocks.MockEventEmitter{}

	_, err := service.NewCardService(nil, limiter, emitter, slog.Default())
	assert.Error(t, err)
	_, err = service.NewCardService(repo, nil, emitter, slog.Default())
	assert.Error(t, err)
	_, err = service.NewCardService(repo, limiter, nil, slog.Default())
	assert.Error(t, err)
	_, err = service.NewCardService(repo, limiter, emitter, nil)
	assert.NoError(t, err)
}

func TestSaveCard(t *testing.T) {
	t.Parallel()

	t.Run("persists card and emits enrichment event", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		emitter := &mocks.MockEventEmitter{}
		svc := newTestService(t, repo, &stubLimiter{allow: true}, emitter)

		ownerID := uuid.New()
		card, err := svc.SaveCard(context.Background(), ownerID, service.SaveCardInput{
			Type:    domain.CardTypeText,
			Content: "a saved thought",
			Notes:   "remember this",
			Tags:    []string{"ideas"},
		})
		require.NoError(t, err)
		assert.Equal(t, ownerID, card.OwnerID)
		assert.Equal(t, int64(1), card.Revision)
		assert.Equal(t, "remember this", card.Notes)

		stored, err := repo.GetByID(context.Background(), card.ID)
		require.NoError(t, err)
		assert.Equal(t, card.ID, stored.ID)

		emitted := emitter.Events()
		require.Len(t, emitted, 1)
		assert.Equal(t, events.TypeCardEnrichment, emitted[0].Type)

		var payload events.EnrichmentPayload
		require.NoError(t, emitted[0].UnmarshalPayload(&payload))
		assert.Equal(t, card.ID, payload.CardID)
	})

	t.Run("admission limiter rejects before any persistence", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		emitter := &mocks.MockEventEmitter{}
		retryAt := time.Now().Add(30 * time.Second)
		svc := newTestService(t, repo, &stubLimiter{allow: false, retryAt: retryAt}, emitter)

		_, err := svc.SaveCard(context.Background(), uuid.New(), service.SaveCardInput{
			Type:    domain.CardTypeText,
			Content: "rejected",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, service.ErrRateLimited)

		var rle *service.RateLimitError
		require.True(t, errors.As(err, &rle))
		assert.Equal(t, retryAt, rle.Decision.RetryAt)

		assert.Equal(t, 0, repo.Len(), "nothing may be persisted on rejection")
		assert.Equal(t, 0, emitter.EventCount())
	})

	t.Run("invalid input is rejected without event", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		emitter := &mocks.MockEventEmitter{}
		svc := newTestService(t, repo, &stubLimiter{allow: true}, emitter)

		_, err := svc.SaveCard(context.Background(), uuid.New(), service.SaveCardInput{
			Type: domain.CardTypeLink, // no URL
		})
		require.Error(t, err)
		assert.Equal(t, 0, repo.Len())
		assert.Equal(t, 0, emitter.EventCount())
	})

	t.Run("emit failure surfaces", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		emitter := &mocks.MockEventEmitter{Err: errors.New("bus down")}
		svc := newTestService(t, repo, &stubLimiter{allow: true}, emitter)

		_, err := svc.SaveCard(context.Background(), uuid.New(), service.SaveCardInput{
			Type:    domain.CardTypeText,
			Content: "note",
		})
		assert.Error(t, err)
	})
}

func TestGetCard(t *testing.T) {
	t.Parallel()
	ownerID := uuid.New()

	seed := func(t *testing.T) (*mocks.MemCardRepository, *domain.Card) {
		t.Helper()
		repo := mocks.NewMemCardRepository()
		card, err := domain.NewCard(ownerID, domain.CardTypeText, "note", "", "")
		require.NoError(t, err)
		repo.Seed(card)
		return repo, card
	}

	t.Run("owner retrieves card", func(t *testing.T) {
		t.Parallel()
		repo, card := seed(t)
		svc := newTestService(t, repo, &stubLimiter{allow: true}, &mocks.MockEventEmitter{})

		got, err := svc.GetCard(context.Background(), ownerID, card.ID)
		require.NoError(t, err)
		assert.Equal(t, card.ID, got.ID)
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		t.Parallel()
		repo, card := seed(t)
		svc := newTestService(t, repo, &stubLimiter{allow: true}, &mocks.MockEventEmitter{})

		_, err := svc.GetCard(context.Background(), uuid.New(), card.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("missing card", func(t *testing.T) {
		t.Parallel()
		repo, _ := seed(t)
		svc := newTestService(t, repo, &stubLimiter{allow: true}, &mocks.MockEventEmitter{})

		_, err := svc.GetCard(context.Background(), ownerID, uuid.New())
		assert.ErrorIs(t, err, service.ErrCardNotFound)
	})

	t.Run("soft-deleted card reads as missing", func(t *testing.T) {
		t.Parallel()
		repo, card := seed(t)
		require.NoError(t, repo.SoftDelete(context.Background(), card.ID))
		svc := newTestService(t, repo, &stubLimiter{allow: true}, &mocks.MockEventEmitter{})

		_, err := svc.GetCard(context.Background(), ownerID, card.ID)
		assert.ErrorIs(t, err, service.ErrCardNotFound)
	})
}

func TestRegenerateAI(t *testing.T) {
	t.Parallel()
	ownerID := uuid.New()

	t.Run("resets metadata stage, clears AI fields and re-enqueues", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		emitter := &mocks.MockEventEmitter{}
		svc := newTestService(t, repo, &stubLimiter{allow: true}, emitter)

		card, err := domain.NewCard(ownerID, domain.CardTypeText, "note", "", "")
		require.NoError(t, err)
		card.AITags = []string{"old"}
		card.AISummary = "old summary"
		now := time.Now().UTC()
		require.NoError(t, card.CompleteStage(domain.StageMetadata, nil, now))
		repo.Seed(card)

		require.NoError(t, svc.RegenerateAI(context.Background(), ownerID, card.ID))

		updated, err := repo.GetByID(context.Background(), card.ID)
		require.NoError(t, err)
		assert.Empty(t, updated.AITags)
		assert.Empty(t, updated.AISummary)
		assert.Equal(t, domain.StageStatePending, updated.StageState(domain.StageMetadata))
		// The revision bump drops any in-flight results from the old run.
		assert.Equal(t, card.Revision+1, updated.Revision)

		assert.Equal(t, 1, emitter.EventCount())
	})

	t.Run("non-owner is rejected", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		svc := newTestService(t, repo, &stubLimiter{allow: true}, &mocks.MockEventEmitter{})

		card, err := domain.NewCard(ownerID, domain.CardTypeText, "note", "", "")
		require.NoError(t, err)
		repo.Seed(card)

		err = svc.RegenerateAI(context.Background(), uuid.New(), card.ID)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestDeleteCard(t *testing.T) {
	t.Parallel()
	ownerID := uuid.New()

	t.Run("owner soft-deletes", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		svc := newTestService(t, repo, &stubLimiter{allow: true}, &mocks.MockEventEmitter{})

		card, err := domain.NewCard(ownerID, domain.CardTypeText, "note", "", "")
		require.NoError(t, err)
		repo.Seed(card)

		require.NoError(t, svc.DeleteCard(context.Background(), ownerID, card.ID))

		// Deleted cards read as missing through the service.
		_, err = svc.GetCard(context.Background(), ownerID, card.ID)
		assert.ErrorIs(t, err, service.ErrCardNotFound)

		// The record itself survives for the retention sweeper.
		assert.Equal(t, 1, repo.Len())
	})

	t.Run("deleting twice reads as missing", func(t *testing.T) {
		t.Parallel()
		repo := mocks.NewMemCardRepository()
		svc := newTestService(t, repo, &stubLimiter{allow: true}, &mocks.MockEventEmitter{})

		card, err := domain.NewCard(ownerID, domain.CardTypeText, "note", "", "")
		require.NoError(t, err)
		repo.Seed(card)

		require.NoError(t, svc.DeleteCard(context.Background(), ownerID, card.ID))
		err = svc.DeleteCard(context.Background(), ownerID, card.ID)
		assert.ErrorIs(t, err, service.ErrCardNotFound)
	})
}

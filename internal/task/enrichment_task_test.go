package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubOrchestrator implements Orchestrator with a function field.
type stubOrchestrator struct {
	startFn func(ctx context.Context, cardID uuid.UUID) (string, error)
	calls   []uuid.UUID
}

func (s *stubOrchestrator) Start(ctx context.Context, cardID uuid.UUID) (string, error) {
	s.calls = append(s.calls, cardID)
	if s.startFn != nil {
		return s.startFn(ctx, cardID)
	}
	return "wf-1", nil
}

func TestNewCardEnrichmentTask(t *testing.T) {
	t.Parallel()
	logger := slog.Default()
	orch := &stubOrchestrator{}

	task, err := NewCardEnrichmentTask(uuid.New(), orch, logger)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, task.ID())
	assert.Equal(t, TaskTypeCardEnrichment, task.Type())
	assert.Equal(t, TaskStatusPending, task.Status())

	_, err = NewCardEnrichmentTask(uuid.Nil, orch, logger)
	assert.ErrorIs(t, err, ErrEmptyCardID)

	_, err = NewCardEnrichmentTask(uuid.New(), nil, logger)
	assert.ErrorIs(t, err, ErrNilOrchestrator)

	_, err = NewCardEnrichmentTask(uuid.New(), orch, nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestCardEnrichmentTaskPayload(t *testing.T) {
	t.Parallel()
	cardID := uuid.New()
	task, err := NewCardEnrichmentTask(cardID, &stubOrchestrator{}, slog.Default())
	require.NoError(t, err)

	var payload struct {
		CardID uuid.UUID `json:"card_id"`
	}
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, cardID, payload.CardID)
}

func TestCardEnrichmentTaskExecute(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		cardID := uuid.New()
		orch := &stubOrchestrator{}
		task, err := NewCardEnrichmentTask(cardID, orch, slog.Default())
		require.NoError(t, err)

		require.NoError(t, task.Execute(context.Background()))
		assert.Equal(t, TaskStatusCompleted, task.Status())
		require.Len(t, orch.calls, 1)
		assert.Equal(t, cardID, orch.calls[0])
	})

	t.Run("orchestrator failure", func(t *testing.T) {
		t.Parallel()
		orch := &stubOrchestrator{
			startFn: func(ctx context.Context, cardID uuid.UUID) (string, error) {
				return "", errors.New("stage blew up")
			},
		}
		task, err := NewCardEnrichmentTask(uuid.New(), orch, slog.Default())
		require.NoError(t, err)

		err = task.Execute(context.Background())
		require.Error(t, err)
		assert.Equal(t, TaskStatusFailed, task.Status())
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()
		orch := &stubOrchestrator{}
		task, err := NewCardEnrichmentTask(uuid.New(), orch, slog.Default())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err = task.Execute(ctx)
		require.Error(t, err)
		assert.Equal(t, TaskStatusFailed, task.Status())
		assert.Empty(t, orch.calls, "cancelled task must not reach the orchestrator")
	})
}

func TestCardEnrichmentTaskFactory(t *testing.T) {
	t.Parallel()
	factory := NewCardEnrichmentTaskFactory(&stubOrchestrator{}, slog.Default())

	cardID := uuid.New()
	task, err := factory.CreateTask(cardID)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeCardEnrichment, task.Type())

	_, err = factory.CreateTask(uuid.Nil)
	assert.ErrorIs(t, err, ErrEmptyCardID)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinbox/pinbox-api/internal/api/shared"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/mocks"
	"github.com/pinbox/pinbox-api/internal/ratelimit"
	"github.com/pinbox/pinbox-api/internal/service"
)

// newCardRouter mounts the handler the way the server does, with an
// optional authenticated user injected into the request context.
func newCardRouter(svc service.CardService, userID uuid.UUID) http.Handler {
	handler := NewCardHandler(svc)

	r := chi.NewRouter()
	if userID != uuid.Nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := context.WithValue(req.Context(), shared.UserIDContextKey, userID)
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
	}
	r.Post("/cards", handler.CreateCard)
	r.Get("/cards/{id}", handler.GetCard)
	r.Get("/cards/{id}/status", handler.GetCardStatus)
	r.Post("/cards/{id}/regenerate", handler.RegenerateAI)
	r.Delete("/cards/{id}", handler.DeleteCard)
	return r
}

func newTestCard(t *testing.T, ownerID uuid.UUID) *domain.Card {
	t.Helper()
	card, err := domain.NewCard(ownerID, domain.CardTypeText, "some saved text", "", "")
	require.NoError(t, err)
	return card
}

func TestCreateCard(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		var gotInput service.SaveCardInput
		svc := &mocks.MockCardService{
			SaveCardFn: func(ctx context.Context, ownerID uuid.UUID, input service.SaveCardInput) (*domain.Card, error) {
				assert.Equal(t, userID, ownerID)
				gotInput = input
				return newTestCard(t, ownerID), nil
			},
		}
		router := newCardRouter(svc, userID)

		body := `{"type":"text","content":"some saved text","notes":"keep this"}`
		req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, domain.CardTypeText, gotInput.Type)
		assert.Equal(t, "keep this", gotInput.Notes)

		var resp CardResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "text", resp.Type)
		assert.Equal(t, userID.String(), resp.OwnerID)
		assert.Equal(t, int64(1), resp.Revision)
	})

	t.Run("malformed body", func(t *testing.T) {
		t.Parallel()
		router := newCardRouter(&mocks.MockCardService{}, userID)
		req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing type", func(t *testing.T) {
		t.Parallel()
		router := newCardRouter(&mocks.MockCardService{}, userID)
		req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewBufferString(`{"content":"x"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid card payload", func(t *testing.T) {
		t.Parallel()
		svc := &mocks.MockCardService{
			SaveCardFn: func(ctx context.Context, ownerID uuid.UUID, input service.SaveCardInput) (*domain.Card, error) {
				return nil, domain.ErrCardPayloadMissing
			},
		}
		router := newCardRouter(svc, userID)
		req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewBufferString(`{"type":"link"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		t.Parallel()
		retryAt := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
		svc := &mocks.MockCardService{
			SaveCardFn: func(ctx context.Context, ownerID uuid.UUID, input service.SaveCardInput) (*domain.Card, error) {
				return nil, &service.RateLimitError{Decision: ratelimit.Decision{RetryAt: retryAt}}
			},
		}
		router := newCardRouter(svc, userID)
		req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewBufferString(`{"type":"text","content":"x"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, retryAt.Format(http.TimeFormat), rec.Header().Get("Retry-After"))
	})

	t.Run("no authenticated user", func(t *testing.T) {
		t.Parallel()
		router := newCardRouter(&mocks.MockCardService{}, uuid.Nil)
		req := httptest.NewRequest(http.MethodPost, "/cards", bytes.NewBufferString(`{"type":"text","content":"x"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetCard(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		card := newTestCard(t, userID)
		card.AISummary = "a summary"
		card.ProcessingStatus = map[domain.Stage]domain.StageStatus{
			domain.StageMetadata: {State: domain.StageStateCompleted},
		}
		svc := &mocks.MockCardService{
			GetCardFn: func(ctx context.Context, ownerID, cardID uuid.UUID) (*domain.Card, error) {
				assert.Equal(t, card.ID, cardID)
				return card, nil
			},
		}
		router := newCardRouter(svc, userID)
		req := httptest.NewRequest(http.MethodGet, "/cards/"+card.ID.String(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp CardResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "a summary", resp.AISummary)
		assert.Equal(t, "completed", resp.ProcessingStatus["metadata"].State)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		router := newCardRouter(&mocks.MockCardService{}, userID)
		req := httptest.NewRequest(http.MethodGet, "/cards/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("not the owner", func(t *testing.T) {
		t.Parallel()
		svc := &mocks.MockCardService{
			GetCardFn: func(ctx context.Context, ownerID, cardID uuid.UUID) (*domain.Card, error) {
				return nil, domain.ErrUnauthorized
			},
		}
		router := newCardRouter(svc, userID)
		req := httptest.NewRequest(http.MethodGet, "/cards/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		t.Parallel()
		router := newCardRouter(&mocks.MockCardService{}, userID)
		req := httptest.NewRequest(http.MethodGet, "/cards/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetCardStatus(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	card := newTestCard(t, userID)
	confidence := 0.85
	card.ProcessingStatus = map[domain.Stage]domain.StageStatus{
		domain.StageClassify: {State: domain.StageStateCompleted, Confidence: &confidence},
		domain.StageMetadata: {State: domain.StageStatePending},
	}
	svc := &mocks.MockCardService{
		GetCardFn: func(ctx context.Context, ownerID, cardID uuid.UUID) (*domain.Card, error) {
			return card, nil
		},
	}
	router := newCardRouter(svc, userID)

	req := httptest.NewRequest(http.MethodGet, "/cards/"+card.ID.String()+"/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, card.ID.String(), resp.ID)
	assert.Equal(t, int64(1), resp.Revision)
	assert.Equal(t, "completed", resp.ProcessingStatus["classify"].State)
	require.NotNil(t, resp.ProcessingStatus["classify"].Confidence)
	assert.InDelta(t, 0.85, *resp.ProcessingStatus["classify"].Confidence, 0.001)
	assert.Equal(t, "pending", resp.ProcessingStatus["metadata"].State)

	// Clients key on "status" inside each stage entry.
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)
	assert.NotContains(t, rec.Body.String(), `"state"`)

	// The status endpoint never carries card content.
	assert.NotContains(t, rec.Body.String(), "some saved text")
}

func TestRegenerateAI(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		cardID := uuid.New()
		called := false
		svc := &mocks.MockCardService{
			RegenerateAIFn: func(ctx context.Context, ownerID, id uuid.UUID) error {
				called = true
				assert.Equal(t, cardID, id)
				return nil
			},
		}
		router := newCardRouter(svc, userID)
		req := httptest.NewRequest(http.MethodPost, "/cards/"+cardID.String()+"/regenerate", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.True(t, called)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		router := newCardRouter(&mocks.MockCardService{}, userID)
		req := httptest.NewRequest(http.MethodPost, "/cards/"+uuid.NewString()+"/regenerate", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteCard(t *testing.T) {
	t.Parallel()
	userID := uuid.New()

	t.Run("deleted", func(t *testing.T) {
		t.Parallel()
		svc := &mocks.MockCardService{
			DeleteCardFn: func(ctx context.Context, ownerID, cardID uuid.UUID) error {
				return nil
			},
		}
		router := newCardRouter(svc, userID)
		req := httptest.NewRequest(http.MethodDelete, "/cards/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("already gone", func(t *testing.T) {
		t.Parallel()
		router := newCardRouter(&mocks.MockCardService{}, userID)
		req := httptest.NewRequest(http.MethodDelete, "/cards/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

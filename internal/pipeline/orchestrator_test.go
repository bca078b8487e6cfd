package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinbox/pinbox-api/internal/category"
	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/generation"
	"github.com/pinbox/pinbox-api/internal/linkmeta"
	"github.com/pinbox/pinbox-api/internal/mocks"
	"github.com/pinbox/pinbox-api/internal/store"
)

// orchestratorEnv wires an orchestrator over in-memory stores with real
// stages, tight retry policies and no real backoff sleeps.
type orchestratorEnv struct {
	cards     *mocks.MemCardStore
	workflows *mocks.MemWorkflowStore
	blobs     *mocks.MemBlobStore
	gen       *mocks.MockMetadataGenerator
	sleeps    int
	o         *Orchestrator
}

func newOrchestratorEnv(t *testing.T, client *http.Client) *orchestratorEnv {
	t.Helper()

	env := &orchestratorEnv{
		cards:     mocks.NewMemCardStore(),
		workflows: mocks.NewMemWorkflowStore(),
		blobs:     mocks.NewMemBlobStore(),
		gen: &mocks.MockMetadataGenerator{
			Result: &generation.Result{
				Tags:    []string{"notes", "reading"},
				Summary: "a short summary",
			},
		},
	}

	logger := slog.Default()
	policies := map[domain.Stage]RetryPolicy{
		domain.StageClassify:    {MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffBase: 2},
		domain.StageCategorize:  {MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffBase: 2},
		domain.StageMetadata:    {MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffBase: 2},
		domain.StageRenderables: {MaxAttempts: 2, InitialBackoff: time.Millisecond, BackoffBase: 2},
	}

	env.o = NewOrchestrator(
		env.cards,
		env.workflows,
		NewClassifier(env.cards, linkmeta.NewExtractor(client, "pinbox-test", logger), logger),
		NewCategorizer(env.cards, category.NewRegistry(client, "pinbox-test", logger), logger),
		NewMetadataStage(env.cards, env.blobs, env.gen, logger),
		NewRenderableStage(env.cards, env.blobs, logger),
		policies,
		logger,
	)
	env.o.sleep = func(ctx context.Context, d time.Duration) error {
		env.sleeps++
		return nil
	}
	return env
}

func seedCard(t *testing.T, cards *mocks.MemCardStore, cardType domain.CardType, content, rawURL, fileID string) *domain.Card {
	t.Helper()
	card, err := domain.NewCard(uuid.New(), cardType, content, rawURL, fileID)
	require.NoError(t, err)
	cards.Seed(card)
	return card
}

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestStartEnrichesTextCard(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	card := seedCard(t, env.cards, domain.CardTypeText, "notes from the reading group last night", "", "")

	wfID, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)
	require.NotEmpty(t, wfID)

	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CardTypeText, got.Type)
	assert.Equal(t, domain.StageStateCompleted, got.StageState(domain.StageClassify))
	assert.Equal(t, domain.StageStateCompleted, got.StageState(domain.StageMetadata))
	assert.Equal(t, []string{"notes", "reading"}, got.AITags)
	assert.Equal(t, "a short summary", got.AISummary)

	// A plain text card has no link or visual asset, so the conditional
	// stages are never planned.
	_, hasCategorize := got.ProcessingStatus[domain.StageCategorize]
	_, hasRenderables := got.ProcessingStatus[domain.StageRenderables]
	assert.False(t, hasCategorize)
	assert.False(t, hasRenderables)

	wf, err := env.workflows.GetByID(context.Background(), wfID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, wf.Status)
	require.NotNil(t, wf.CompletedAt)

	require.Equal(t, 1, env.gen.CallCount())
	req := env.gen.Requests()[0]
	assert.Equal(t, domain.CardTypeText, req.CardType)
	assert.Contains(t, req.Text, "reading group")
}

func TestStartPromotesSingleURLTextCard(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><head>
			<meta property="og:title" content="Example Article">
			<meta property="og:site_name" content="Example Blog">
			<title>fallback</title>
		</head><body></body></html>`)
	}))
	defer server.Close()

	env := newOrchestratorEnv(t, server.Client())
	pageURL := server.URL + "/article"
	card := seedCard(t, env.cards, domain.CardTypeText, pageURL, "", "")

	_, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)

	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CardTypeLink, got.Type)
	assert.Equal(t, pageURL, got.URL)

	classify := got.ProcessingStatus[domain.StageClassify]
	assert.Equal(t, domain.StageStateCompleted, classify.State)
	require.NotNil(t, classify.Confidence)
	assert.InDelta(t, 0.85, *classify.Confidence, 0.001)

	require.NotNil(t, got.Metadata.LinkPreview)
	assert.Equal(t, domain.FetchStatusFetched, got.Metadata.LinkPreview.FetchStatus)
	assert.Equal(t, "Example Article", got.Metadata.LinkPreview.Title)

	// The promoted card is link-like, so categorization was planned and ran.
	// A loopback host matches no rule and lands on the fallback category.
	assert.Equal(t, domain.StageStateCompleted, got.StageState(domain.StageCategorize))
	require.NotNil(t, got.Metadata.LinkCategory)
	assert.Equal(t, "other", got.Metadata.LinkCategory.Category)
	assert.Equal(t, category.ReasonFallback, got.Metadata.LinkCategory.Reason)

	// Preview context reaches the generator for link cards.
	require.Equal(t, 1, env.gen.CallCount())
	req := env.gen.Requests()[0]
	assert.Equal(t, domain.CardTypeLink, req.CardType)
	assert.True(t, strings.Contains(req.Text, "Example Article"))
}

func TestStartGeneratesRenderablesForImageCard(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	env.blobs.SeedBlob("img-src", pngBytes(t, 800, 600, color.RGBA{R: 200, G: 30, B: 30, A: 255}))
	card := seedCard(t, env.cards, domain.CardTypeImage, "", "", "img-src")

	_, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)

	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStateCompleted, got.StageState(domain.StageRenderables))

	require.NotNil(t, got.Metadata.FileMetadata)
	assert.Equal(t, 800, got.Metadata.FileMetadata.Width)
	assert.Equal(t, 600, got.Metadata.FileMetadata.Height)

	// 800px exceeds the thumbnail edge, so a resized copy was stored.
	require.NotEmpty(t, got.ThumbnailID)
	assert.True(t, env.blobs.Has(got.ThumbnailID))

	require.NotEmpty(t, got.Colors)
	assert.Equal(t, "#C81818", got.Colors[0])

	// Images are not link-like; categorization stays out of the plan.
	_, hasCategorize := got.ProcessingStatus[domain.StageCategorize]
	assert.False(t, hasCategorize)
}

func TestStartRecordsMetadataFailureWithoutBlockingRun(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	env.gen.Result = nil
	env.gen.Err = errors.New("model unavailable")
	card := seedCard(t, env.cards, domain.CardTypeText, "some text", "", "")

	wfID, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)

	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStateCompleted, got.StageState(domain.StageClassify))
	assert.Equal(t, domain.StageStateFailed, got.StageState(domain.StageMetadata))
	assert.Empty(t, got.AISummary)

	// A failed sibling does not abort the run.
	wf, err := env.workflows.GetByID(context.Background(), wfID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, wf.Status)

	// Two attempts with one backoff between them.
	assert.Equal(t, 2, env.gen.CallCount())
	assert.Equal(t, 1, env.sleeps)
	assert.Equal(t, 2, wf.Attempts[domain.StageMetadata])
}

func TestStartAbortsWhenClassificationFails(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	card := seedCard(t, env.cards, domain.CardTypeText, "https://example.com/page", "", "")
	env.cards.PatchErr = errors.New("db down")

	wfID, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)

	wf, err := env.workflows.GetByID(context.Background(), wfID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusAborted, wf.Status)

	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStateFailed, got.StageState(domain.StageClassify))

	// Nothing downstream of a failed classification runs.
	assert.Equal(t, 0, env.gen.CallCount())
}

func TestStartRetriesNotReadyCategorization(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	card := seedCard(t, env.cards, domain.CardTypeLink, "", "https://github.com/pinbox/pinbox-api", "")
	card.Metadata.LinkPreview = &domain.LinkPreview{FetchStatus: domain.FetchStatusPending}
	env.cards.Seed(card)

	wfID, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)

	// The preview never settles, so categorization exhausts its budget and
	// is recorded failed while metadata still completes.
	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStateFailed, got.StageState(domain.StageCategorize))
	assert.Equal(t, domain.StageStateCompleted, got.StageState(domain.StageMetadata))
	assert.Nil(t, got.Metadata.LinkCategory)

	wf, err := env.workflows.GetByID(context.Background(), wfID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, wf.Status)
	assert.Equal(t, 2, wf.Attempts[domain.StageCategorize])
	assert.Equal(t, 1, env.sleeps)
}

func TestStartAbandonsRunWhenCardEditedMidFlight(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	card := seedCard(t, env.cards, domain.CardTypeText, "draft text", "", "")

	// The user edit lands while generation is in flight, bumping the
	// revision before the stage gets to write its result.
	env.gen.GenerateMetadataFn = func(ctx context.Context, req generation.Request) (*generation.Result, error) {
		err := env.cards.ResetStages(ctx, card.ID, []domain.Stage{domain.StageMetadata}, false)
		require.NoError(t, err)
		return &generation.Result{Tags: []string{"stale"}, Summary: "stale summary"}, nil
	}

	wfID, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)
	require.NotEmpty(t, wfID)

	// The stale result was dropped, not written.
	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AISummary)
	assert.Empty(t, got.AITags)

	wf, err := env.workflows.GetByID(context.Background(), wfID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusAborted, wf.Status)

	// A stale write is not retried.
	assert.Equal(t, 1, env.gen.CallCount())
}

func TestStartResumesRunningWorkflow(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	card := seedCard(t, env.cards, domain.CardTypeText, "resumable text", "", "")

	// Simulate a run that classified the card and then crashed.
	now := time.Now().UTC()
	card.ProcessingStatus = map[domain.Stage]domain.StageStatus{
		domain.StageClassify: {State: domain.StageStateCompleted, CompletedAt: &now},
		domain.StageMetadata: {State: domain.StageStatePending},
	}
	env.cards.Seed(card)

	wf, err := domain.NewWorkflow(card.ID, card.Revision, domain.AllStages())
	require.NoError(t, err)
	require.NoError(t, env.workflows.Create(context.Background(), wf))

	wfID, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, wfID)
	assert.Len(t, env.workflows.All(), 1)

	got, err := env.cards.GetByID(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageStateCompleted, got.StageState(domain.StageMetadata))
	assert.Equal(t, 1, env.gen.CallCount())

	resumed, err := env.workflows.GetByID(context.Background(), wfID)
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatusCompleted, resumed.Status)
}

func TestStartIsIdempotentAfterCompletion(t *testing.T) {
	t.Parallel()
	env := newOrchestratorEnv(t, nil)
	card := seedCard(t, env.cards, domain.CardTypeText, "already enriched", "", "")

	_, err := env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)
	require.Equal(t, 1, env.gen.CallCount())

	// A re-trigger gets a fresh workflow but re-runs no completed stage.
	_, err = env.o.Start(context.Background(), card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, env.gen.CallCount())

	all := env.workflows.All()
	require.Len(t, all, 2)
	for _, wf := range all {
		assert.Equal(t, domain.WorkflowStatusCompleted, wf.Status)
	}
}

func TestStartRejectsMissingAndDeletedCards(t *testing.T) {
	t.Parallel()

	t.Run("missing card", func(t *testing.T) {
		t.Parallel()
		env := newOrchestratorEnv(t, nil)
		_, err := env.o.Start(context.Background(), uuid.New())
		assert.ErrorIs(t, err, store.ErrCardNotFound)
		assert.Empty(t, env.workflows.All())
	})

	t.Run("deleted card", func(t *testing.T) {
		t.Parallel()
		env := newOrchestratorEnv(t, nil)
		card := seedCard(t, env.cards, domain.CardTypeText, "gone", "", "")
		card.IsDeleted = true
		env.cards.Seed(card)

		_, err := env.o.Start(context.Background(), card.ID)
		assert.ErrorIs(t, err, domain.ErrCardDeleted)
		assert.Empty(t, env.workflows.All())
		assert.Equal(t, 0, env.gen.CallCount())
	})
}

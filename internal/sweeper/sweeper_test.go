package sweeper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinbox/pinbox-api/internal/domain"
	"github.com/pinbox/pinbox-api/internal/mocks"
)

// seedDeletedCard stores a card soft-deleted at the given time whose blobs
// exist in the blob store.
func seedDeletedCard(cards *mocks.MemCardStore, blobs *mocks.MemBlobStore, deletedAt time.Time) *domain.Card {
	card := &domain.Card{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Type:        domain.CardTypeImage,
		FileID:      "file-" + uuid.NewString(),
		ThumbnailID: "thumb-" + uuid.NewString(),
		Revision:    1,
		IsDeleted:   true,
		DeletedAt:   &deletedAt,
		CreatedAt:   deletedAt.Add(-time.Hour),
	}
	blobs.SeedBlob(card.FileID, []byte("file"))
	blobs.SeedBlob(card.ThumbnailID, []byte("thumb"))
	cards.Seed(card)
	return card
}

func TestSweepRemovesExpiredCards(t *testing.T) {
	t.Parallel()
	cards := mocks.NewMemCardStore()
	blobs := mocks.NewMemBlobStore()

	old := time.Now().UTC().AddDate(0, 0, -40)
	card := seedDeletedCard(cards, blobs, old)

	s := New(cards, blobs, 30, slog.Default())
	cleaned, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	// Record and blobs are gone.
	assert.Equal(t, 0, cards.Len())
	assert.False(t, blobs.Has(card.FileID))
	assert.False(t, blobs.Has(card.ThumbnailID))
}

func TestSweepRemovesScreenshotBlob(t *testing.T) {
	t.Parallel()
	cards := mocks.NewMemCardStore()
	blobs := mocks.NewMemBlobStore()

	old := time.Now().UTC().AddDate(0, 0, -40)
	card := &domain.Card{
		ID:        uuid.New(),
		OwnerID:   uuid.New(),
		Type:      domain.CardTypeLink,
		URL:       "https://example.com",
		Revision:  1,
		IsDeleted: true,
		DeletedAt: &old,
		Metadata: domain.CardMetadata{
			LinkPreview: &domain.LinkPreview{ScreenshotStorageID: "shot-1"},
		},
	}
	blobs.SeedBlob("shot-1", []byte("png"))
	cards.Seed(card)

	s := New(cards, blobs, 30, slog.Default())
	cleaned, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)
	assert.False(t, blobs.Has("shot-1"))
}

func TestSweepLeavesRecentAndLiveCards(t *testing.T) {
	t.Parallel()
	cards := mocks.NewMemCardStore()
	blobs := mocks.NewMemBlobStore()

	// Deleted only yesterday: inside the retention window.
	recent := seedDeletedCard(cards, blobs, time.Now().UTC().AddDate(0, 0, -1))

	// Never deleted.
	live := &domain.Card{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Type:     domain.CardTypeImage,
		FileID:   "live-file",
		Revision: 1,
	}
	blobs.SeedBlob("live-file", []byte("file"))
	cards.Seed(live)

	s := New(cards, blobs, 30, slog.Default())
	cleaned, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)

	assert.Equal(t, 2, cards.Len())
	assert.True(t, blobs.Has(recent.FileID))
	assert.True(t, blobs.Has("live-file"))
}

func TestSweepBlobFailureDoesNotStopRecordDelete(t *testing.T) {
	t.Parallel()
	cards := mocks.NewMemCardStore()
	blobs := mocks.NewMemBlobStore()
	blobs.DeleteErr = assert.AnError

	old := time.Now().UTC().AddDate(0, 0, -40)
	seedDeletedCard(cards, blobs, old)

	s := New(cards, blobs, 30, slog.Default())
	cleaned, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)
	assert.Equal(t, 0, cards.Len())
}

func TestSweepDefaultsRetentionWindow(t *testing.T) {
	t.Parallel()
	s := New(mocks.NewMemCardStore(), mocks.NewMemBlobStore(), 0, nil)
	assert.Equal(t, DefaultRetentionDays, s.retentionDays)
}

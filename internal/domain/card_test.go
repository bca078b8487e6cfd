package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewCard(t *testing.T) {
	t.Parallel()
	ownerID := uuid.New()

	card, err := NewCard(ownerID, CardTypeText, "some saved thought", "", "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if card.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}
	if card.OwnerID != ownerID {
		t.Errorf("Expected owner ID %s, got %s", ownerID, card.OwnerID)
	}
	if card.Revision != 1 {
		t.Errorf("Expected revision 1, got %d", card.Revision)
	}
	if card.CreatedAt.IsZero() {
		t.Error("Expected non-zero CreatedAt time")
	}
	if card.IsDeleted {
		t.Error("Expected new card to not be deleted")
	}

	// Owner is required.
	_, err = NewCard(uuid.Nil, CardTypeText, "content", "", "")
	if !errors.Is(err, ErrCardOwnerIDEmpty) {
		t.Errorf("Expected error %v, got %v", ErrCardOwnerIDEmpty, err)
	}

	// Unknown type is rejected.
	_, err = NewCard(ownerID, CardType("bookmark"), "content", "", "")
	if !errors.Is(err, ErrCardTypeInvalid) {
		t.Errorf("Expected error %v, got %v", ErrCardTypeInvalid, err)
	}
}

func TestCardValidatePayloadByType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		typ     CardType
		content string
		url     string
		fileID  string
		wantErr error
	}{
		{name: "text with content", typ: CardTypeText, content: "note"},
		{name: "text without content", typ: CardTypeText, wantErr: ErrCardPayloadMissing},
		{name: "link with url", typ: CardTypeLink, url: "https://example.com"},
		{name: "link without url", typ: CardTypeLink, content: "has content but no url", wantErr: ErrCardPayloadMissing},
		{name: "image with file", typ: CardTypeImage, fileID: "blob-1"},
		{name: "image without file", typ: CardTypeImage, wantErr: ErrCardPayloadMissing},
		{name: "audio with file", typ: CardTypeAudio, fileID: "blob-2"},
		{name: "quote with content", typ: CardTypeQuote, content: "said someone"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			card := Card{
				ID:      uuid.New(),
				OwnerID: uuid.New(),
				Type:    tc.typ,
				Content: tc.content,
				URL:     tc.url,
				FileID:  tc.fileID,
			}
			err := card.Validate()
			if tc.wantErr == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected error %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCardValidatePaletteBound(t *testing.T) {
	t.Parallel()
	card := Card{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Type:    CardTypeText,
		Content: "note",
		Colors:  []string{"#111111", "#222222", "#333333", "#444444", "#555555", "#666666"},
	}
	if err := card.Validate(); !errors.Is(err, ErrCardTooManyColors) {
		t.Errorf("Expected error %v, got %v", ErrCardTooManyColors, err)
	}

	card.Colors = card.Colors[:MaxPaletteColors]
	if err := card.Validate(); err != nil {
		t.Errorf("Expected no error with %d colors, got %v", MaxPaletteColors, err)
	}
}

func TestSingleURLContent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		wantURL string
		wantOK  bool
	}{
		{name: "bare url", content: "https://example.com/page", wantURL: "https://example.com/page", wantOK: true},
		{name: "url with whitespace around", content: "  https://example.com  ", wantURL: "https://example.com", wantOK: true},
		{name: "url inside prose", content: "check out https://example.com later", wantOK: false},
		{name: "two urls", content: "https://a.com https://b.com", wantOK: false},
		{name: "not a url", content: "just a note", wantOK: false},
		{name: "ftp scheme", content: "ftp://example.com/file", wantOK: false},
		{name: "empty", content: "", wantOK: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			card := Card{Content: tc.content}
			got, ok := card.SingleURLContent()
			if ok != tc.wantOK {
				t.Fatalf("Expected ok=%v, got %v", tc.wantOK, ok)
			}
			if ok && got != tc.wantURL {
				t.Errorf("Expected URL %q, got %q", tc.wantURL, got)
			}
		})
	}
}

func TestCardTypePredicates(t *testing.T) {
	t.Parallel()

	link := Card{Type: CardTypeLink}
	if !link.IsLinkLike() {
		t.Error("Expected link card to be link-like")
	}
	if link.HasVisualAsset() {
		t.Error("Expected link card to have no visual asset")
	}

	for _, typ := range []CardType{CardTypeImage, CardTypeVideo, CardTypeDocument} {
		c := Card{Type: typ}
		if !c.HasVisualAsset() {
			t.Errorf("Expected %s card to have a visual asset", typ)
		}
	}
	for _, typ := range []CardType{CardTypeText, CardTypeAudio, CardTypePalette, CardTypeQuote} {
		c := Card{Type: typ}
		if c.HasVisualAsset() {
			t.Errorf("Expected %s card to have no visual asset", typ)
		}
	}
}

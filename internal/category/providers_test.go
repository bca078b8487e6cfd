package category

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinbox/pinbox-api/internal/domain"
)

func TestRegistryLookup(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, "test-agent", slog.Default())

	t.Run("registered provider with applicable category", func(t *testing.T) {
		t.Parallel()
		e, ok := r.Lookup(ProviderGitHub, CategorySoftware)
		require.True(t, ok)
		assert.Equal(t, ProviderGitHub, e.Provider)
	})

	t.Run("registered provider with wrong category", func(t *testing.T) {
		t.Parallel()
		_, ok := r.Lookup(ProviderGitHub, CategoryRecipe)
		assert.False(t, ok)
	})

	t.Run("unregistered provider", func(t *testing.T) {
		t.Parallel()
		_, ok := r.Lookup(ProviderVimeo, CategoryVideo)
		assert.False(t, ok)
	})

	t.Run("amazon applies to product and book", func(t *testing.T) {
		t.Parallel()
		_, ok := r.Lookup(ProviderAmazon, CategoryProduct)
		assert.True(t, ok)
		_, ok = r.Lookup(ProviderAmazon, CategoryBook)
		assert.True(t, ok)
	})
}

func TestRegistryEnrichGitHub(t *testing.T) {
	t.Parallel()

	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotUserAgent = req.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<meta property="og:description" content="A fast widget library">
		</head><body>
			<span id="repo-stars-counter-star">1.2k</span>
			<span id="repo-network-counter">87</span>
			<span itemprop="programmingLanguage">Go</span>
		</body></html>`))
	}))
	defer server.Close()

	r := NewRegistry(server.Client(), "test-agent", slog.Default())
	facts, raw, err := r.Enrich(context.Background(), ProviderGitHub, CategorySoftware, server.URL)
	require.NoError(t, err)
	assert.Equal(t, "test-agent", gotUserAgent)

	assert.Equal(t, "A fast widget library", raw["description"])
	assert.Contains(t, facts, domain.Fact{Label: "stars", Value: "1.2k"})
	assert.Contains(t, facts, domain.Fact{Label: "forks", Value: "87"})
	assert.Contains(t, facts, domain.Fact{Label: "language", Value: "Go"})
}

func TestRegistryEnrichSkipsWhenNotApplicable(t *testing.T) {
	t.Parallel()

	// No HTTP call is made for a provider/category pair with no enricher.
	r := NewRegistry(nil, "test-agent", slog.Default())
	facts, raw, err := r.Enrich(context.Background(), ProviderVimeo, CategoryVideo, "http://127.0.0.1:0/unreachable")
	require.NoError(t, err)
	assert.Nil(t, facts)
	assert.Nil(t, raw)
}

func TestRegistryEnrichFetchFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := NewRegistry(server.Client(), "test-agent", slog.Default())
	_, _, err := r.Enrich(context.Background(), ProviderGitHub, CategorySoftware, server.URL)
	assert.True(t, errors.Is(err, ErrProviderFetch), "expected ErrProviderFetch, got %v", err)
}

func TestRegistryEnrichIMDBLinkedData(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<script type="application/ld+json">{
				"name": "Some Film",
				"datePublished": "1994-09-23",
				"genre": ["Drama", "Crime"],
				"aggregateRating": {"ratingValue": 9.3, "ratingCount": 2700000}
			}</script>
		</head><body></body></html>`))
	}))
	defer server.Close()

	r := NewRegistry(server.Client(), "test-agent", slog.Default())
	facts, raw, err := r.Enrich(context.Background(), ProviderIMDB, CategoryMovie, server.URL)
	require.NoError(t, err)

	assert.NotEmpty(t, raw["linked_data"])
	assert.Contains(t, facts, domain.Fact{Label: "rating", Value: "9.3"})
	assert.Contains(t, facts, domain.Fact{Label: "released", Value: "1994-09-23"})
	assert.Contains(t, facts, domain.Fact{Label: "genre", Value: "Drama, Crime"})
}

func TestEnricherAppliesTo(t *testing.T) {
	t.Parallel()
	e := Enricher{Provider: "p", ApplicableCategories: []string{CategoryBook, CategoryProduct}}
	assert.True(t, e.AppliesTo(CategoryBook))
	assert.True(t, e.AppliesTo(CategoryProduct))
	assert.False(t, e.AppliesTo(CategoryMovie))
}

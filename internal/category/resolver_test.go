package category

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		url          string
		wantCategory string
		wantProvider string
		wantReason   string
	}{
		{
			name:         "github repo via domain rule",
			url:          "https://github.com/org/repo",
			wantCategory: CategorySoftware,
			wantProvider: ProviderGitHub,
			wantReason:   ReasonDomainRule,
		},
		{
			name:         "subdomain matches registrable domain rule",
			url:          "https://gist.github.com/someone/abc123",
			wantCategory: CategorySoftware,
			wantProvider: ProviderGitHub,
			wantReason:   ReasonDomainRule,
		},
		{
			name:         "www prefix is stripped",
			url:          "https://www.imdb.com/title/tt0111161/",
			wantCategory: CategoryMovie,
			wantProvider: ProviderIMDB,
			wantReason:   ReasonDomainRule,
		},
		{
			name:         "recipe path heuristic",
			url:          "https://unknownkitchen.example/recipes/soup",
			wantCategory: CategoryRecipe,
			wantReason:   ReasonPathRule,
		},
		{
			name:         "path fragment matches at end of path",
			url:          "https://somesite.example/blog",
			wantCategory: CategoryArticle,
			wantReason:   ReasonPathRule,
		},
		{
			name:         "country storefront via provider mapping",
			url:          "https://amazon.com.au/dp/B000000",
			wantCategory: CategoryProduct,
			wantProvider: ProviderAmazon,
			wantReason:   ReasonProviderMapping,
		},
		{
			name:         "unknown host falls back to other",
			url:          "https://totally-unknown.example/page",
			wantCategory: CategoryOther,
			wantReason:   ReasonFallback,
		},
		{
			name:         "domain rule beats path heuristic",
			url:          "https://github.com/org/repo/blog/post",
			wantCategory: CategorySoftware,
			wantProvider: ProviderGitHub,
			wantReason:   ReasonDomainRule,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			res, err := Resolve(tc.url)
			require.NoError(t, err)
			assert.Equal(t, tc.wantCategory, res.Category)
			assert.Equal(t, tc.wantProvider, res.Provider)
			assert.Equal(t, tc.wantReason, res.Reason)
			assert.Greater(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
		})
	}
}

func TestResolveConfidenceOrdering(t *testing.T) {
	t.Parallel()

	domain, err := Resolve("https://github.com/org/repo")
	require.NoError(t, err)
	path, err := Resolve("https://unknownkitchen.example/recipes/soup")
	require.NoError(t, err)
	fallback, err := Resolve("https://totally-unknown.example/")
	require.NoError(t, err)

	assert.Greater(t, domain.Confidence, 0.9)
	assert.Greater(t, domain.Confidence, path.Confidence)
	assert.Greater(t, path.Confidence, fallback.Confidence)
}

func TestResolveDeterministic(t *testing.T) {
	t.Parallel()

	first, err := Resolve("https://unknownkitchen.example/recipes/soup?utm=x")
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Resolve("https://unknownkitchen.example/recipes/soup?utm=x")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolveRejectsUnparseableURLs(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "not a url", "ftp://example.com/file", "//missing-scheme.example", "https://"} {
		_, err := Resolve(raw)
		assert.True(t, errors.Is(err, ErrUnresolvableURL), "expected ErrUnresolvableURL for %q, got %v", raw, err)
	}
}

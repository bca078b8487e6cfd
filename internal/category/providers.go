package category

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pinbox/pinbox-api/internal/domain"
)

// ErrProviderFetch is returned when a provider-specific page fetch or parse
// fails. Category resolution still stands; only the enrichment facts are
// omitted.
var ErrProviderFetch = errors.New("provider page fetch failed")

// EnrichFunc extracts normalized facts from a parsed provider page.
// Implementations must be pure functions of the document.
type EnrichFunc func(doc *html.Node) ([]domain.Fact, map[string]string)

// Enricher is one registered provider scraper.
type Enricher struct {
	Provider             string
	ApplicableCategories []string
	Enrich               EnrichFunc
}

// AppliesTo reports whether the enricher handles the resolved category.
func (e Enricher) AppliesTo(category string) bool {
	for _, c := range e.ApplicableCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Registry dispatches provider enrichment by provider key lookup. There is
// no type switching: a provider either has a registered enricher for the
// resolved category or enrichment is skipped.
type Registry struct {
	enrichers map[string]Enricher
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewRegistry builds a registry with the built-in provider scrapers
// registered. A nil client falls back to a timeout-bounded default.
func NewRegistry(client *http.Client, userAgent string, logger *slog.Logger) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		enrichers: make(map[string]Enricher),
		client:    client,
		userAgent: userAgent,
		logger:    logger.With("component", "provider_registry"),
	}

	r.Register(Enricher{
		Provider:             ProviderGitHub,
		ApplicableCategories: []string{CategorySoftware},
		Enrich:               enrichGitHub,
	})
	r.Register(Enricher{
		Provider:             ProviderGoodreads,
		ApplicableCategories: []string{CategoryBook},
		Enrich:               enrichGoodreads,
	})
	r.Register(Enricher{
		Provider:             ProviderIMDB,
		ApplicableCategories: []string{CategoryMovie},
		Enrich:               enrichIMDB,
	})
	r.Register(Enricher{
		Provider:             ProviderAmazon,
		ApplicableCategories: []string{CategoryProduct, CategoryBook},
		Enrich:               enrichAmazon,
	})

	return r
}

// Register adds or replaces an enricher under its provider key.
func (r *Registry) Register(e Enricher) {
	r.enrichers[e.Provider] = e
}

// Lookup returns the enricher for a provider when one is registered and
// applicable to the category.
func (r *Registry) Lookup(provider, category string) (Enricher, bool) {
	e, ok := r.enrichers[provider]
	if !ok || !e.AppliesTo(category) {
		return Enricher{}, false
	}
	return e, true
}

// Enrich fetches the page and runs the provider's extractor. Errors are
// wrapped in ErrProviderFetch so the categorizer can fall through without
// failing the stage.
func (r *Registry) Enrich(ctx context.Context, provider, category, pageURL string) ([]domain.Fact, map[string]string, error) {
	e, ok := r.Lookup(provider, category)
	if !ok {
		return nil, nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProviderFetch, err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProviderFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("%w: status %d", ErrProviderFetch, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrProviderFetch, err)
	}

	facts, raw := e.Enrich(doc)
	r.logger.Debug("provider enrichment extracted",
		"provider", provider,
		"category", category,
		"fact_count", len(facts))
	return facts, raw, nil
}

// --- provider scrapers ---

func enrichGitHub(doc *html.Node) ([]domain.Fact, map[string]string) {
	raw := make(map[string]string)
	var facts []domain.Fact

	if v := metaContent(doc, "og:description"); v != "" {
		raw["description"] = v
	}
	if v := textByID(doc, "repo-stars-counter-star"); v != "" {
		raw["stars"] = v
		facts = append(facts, domain.Fact{Label: "stars", Value: v})
	}
	if v := textByID(doc, "repo-network-counter"); v != "" {
		raw["forks"] = v
		facts = append(facts, domain.Fact{Label: "forks", Value: v})
	}
	if v := textByItemprop(doc, "programmingLanguage"); v != "" {
		raw["language"] = v
		facts = append(facts, domain.Fact{Label: "language", Value: v})
	}
	return facts, raw
}

func enrichGoodreads(doc *html.Node) ([]domain.Fact, map[string]string) {
	raw := make(map[string]string)
	var facts []domain.Fact

	if v := textByItemprop(doc, "ratingValue"); v != "" {
		raw["rating"] = v
		facts = append(facts, domain.Fact{Label: "rating", Value: v})
	}
	if v := textByItemprop(doc, "ratingCount"); v != "" {
		raw["rating_count"] = v
		facts = append(facts, domain.Fact{Label: "ratings", Value: v})
	}
	if v := textByItemprop(doc, "numberOfPages"); v != "" {
		raw["pages"] = v
		facts = append(facts, domain.Fact{Label: "pages", Value: v})
	}
	if v := metaContent(doc, "books:author"); v != "" {
		raw["author"] = v
		facts = append(facts, domain.Fact{Label: "author", Value: v})
	}
	return facts, raw
}

// imdbLinkedData is the subset of the schema.org Movie record embedded in
// IMDB title pages.
type imdbLinkedData struct {
	Name            string   `json:"name"`
	DatePublished   string   `json:"datePublished"`
	Genre           []string `json:"genre"`
	AggregateRating struct {
		RatingValue float64 `json:"ratingValue"`
		RatingCount int     `json:"ratingCount"`
	} `json:"aggregateRating"`
}

func enrichIMDB(doc *html.Node) ([]domain.Fact, map[string]string) {
	raw := make(map[string]string)
	var facts []domain.Fact

	ld := findLinkedData(doc)
	if ld == "" {
		return nil, nil
	}
	raw["linked_data"] = ld

	var movie imdbLinkedData
	if err := json.Unmarshal([]byte(ld), &movie); err != nil {
		return nil, raw
	}

	if movie.AggregateRating.RatingValue > 0 {
		v := fmt.Sprintf("%.1f", movie.AggregateRating.RatingValue)
		facts = append(facts, domain.Fact{Label: "rating", Value: v})
	}
	if movie.DatePublished != "" {
		facts = append(facts, domain.Fact{Label: "released", Value: movie.DatePublished})
	}
	if len(movie.Genre) > 0 {
		facts = append(facts, domain.Fact{Label: "genre", Value: strings.Join(movie.Genre, ", ")})
	}
	return facts, raw
}

func enrichAmazon(doc *html.Node) ([]domain.Fact, map[string]string) {
	raw := make(map[string]string)
	var facts []domain.Fact

	if v := textByClass(doc, "a-offscreen"); v != "" {
		raw["price"] = v
		facts = append(facts, domain.Fact{Label: "price", Value: v})
	}
	if v := attrByID(doc, "acrPopover", "title"); v != "" {
		raw["rating"] = v
		facts = append(facts, domain.Fact{Label: "rating", Value: v})
	}
	if v := textByID(doc, "availability"); v != "" {
		raw["availability"] = v
		facts = append(facts, domain.Fact{Label: "availability", Value: v})
	}
	return facts, raw
}

// --- html walking helpers ---

func walk(n *html.Node, visit func(*html.Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// metaContent returns the content of the first <meta> whose property or name
// attribute equals key.
func metaContent(doc *html.Node, key string) string {
	var content string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			if attrVal(n, "property") == key || attrVal(n, "name") == key {
				content = strings.TrimSpace(attrVal(n, "content"))
				return false
			}
		}
		return content == ""
	})
	return content
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func elementByID(doc *html.Node, id string) *html.Node {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attrVal(n, "id") == id {
			found = n
			return false
		}
		return found == nil
	})
	return found
}

func textByID(doc *html.Node, id string) string {
	if n := elementByID(doc, id); n != nil {
		return textContent(n)
	}
	return ""
}

func attrByID(doc *html.Node, id, key string) string {
	if n := elementByID(doc, id); n != nil {
		return strings.TrimSpace(attrVal(n, key))
	}
	return ""
}

func textByItemprop(doc *html.Node, prop string) string {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attrVal(n, "itemprop") == prop {
			found = n
			return false
		}
		return found == nil
	})
	if found == nil {
		return ""
	}
	if found.Data == "meta" {
		return strings.TrimSpace(attrVal(found, "content"))
	}
	return textContent(found)
}

func textByClass(doc *html.Node, class string) string {
	var found *html.Node
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			for _, c := range strings.Fields(attrVal(n, "class")) {
				if c == class {
					found = n
					return false
				}
			}
		}
		return found == nil
	})
	if found == nil {
		return ""
	}
	return textContent(found)
}

// findLinkedData returns the body of the first application/ld+json script.
func findLinkedData(doc *html.Node) string {
	var body string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "script" &&
			attrVal(n, "type") == "application/ld+json" && n.FirstChild != nil {
			body = strings.TrimSpace(n.FirstChild.Data)
			return false
		}
		return body == ""
	})
	return body
}

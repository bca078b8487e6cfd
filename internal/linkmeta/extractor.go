// Package linkmeta fetches a link card's target page and extracts preview
// metadata: title, description, image, site name and canonical URL.
package linkmeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/pinbox/pinbox-api/internal/domain"
)

// DefaultUserAgent identifies preview fetches to origin servers.
const DefaultUserAgent = "pinbox-linkbot/1.0 (+https://pinbox.app/bot)"

// maxBodyBytes bounds how much of a page is read when parsing metadata.
const maxBodyBytes = 2 << 20

// Extraction errors
var (
	// ErrFetchFailed is returned when the page cannot be retrieved.
	ErrFetchFailed = errors.New("link preview fetch failed")

	// ErrNotHTML is returned when the target is not an HTML document.
	ErrNotHTML = errors.New("link target is not an HTML document")
)

// Extractor fetches pages and turns them into LinkPreview records.
type Extractor struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewExtractor creates an Extractor. A nil client falls back to a
// timeout-bounded default.
func NewExtractor(client *http.Client, userAgent string, logger *slog.Logger) *Extractor {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		client:    client,
		userAgent: userAgent,
		logger:    logger.With("component", "linkmeta_extractor"),
	}
}

// Extract fetches pageURL and returns its preview metadata. Fields are
// filled from a priority-ordered source list: social preview tags (og:*,
// twitter:*) first, then generic meta tags, then the page title. Every URL
// field is sanitized; data: URIs are tolerated only for the image field.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (*domain.LinkPreview, error) {
	base, err := url.Parse(pageURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrFetchFailed, pageURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "html") {
		return nil, fmt.Errorf("%w: content type %q", ErrNotHTML, contentType)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrFetchFailed, err)
	}

	// The page may redirect; resolve relative URLs against where we landed.
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}

	preview := e.fromDocument(doc, base)
	preview.FetchStatus = domain.FetchStatusFetched

	e.logger.Debug("link preview extracted",
		"url", pageURL,
		"has_title", preview.Title != "",
		"has_image", preview.ImageURL != "")
	return preview, nil
}

// fromDocument builds a preview from a parsed page. Exposed through Extract;
// split out so tests can exercise the priority order without a server.
func (e *Extractor) fromDocument(doc *html.Node, base *url.URL) *domain.LinkPreview {
	meta := collectMeta(doc)

	preview := &domain.LinkPreview{
		Title:       firstOf(meta, "og:title", "twitter:title", "title"),
		Description: firstOf(meta, "og:description", "twitter:description", "description"),
		SiteName:    firstOf(meta, "og:site_name", "application-name"),
	}

	if preview.Title == "" {
		preview.Title = pageTitle(doc)
	}

	if img := firstOf(meta, "og:image", "og:image:url", "twitter:image", "twitter:image:src"); img != "" {
		if clean, ok := SanitizeURL(img, base, true); ok {
			preview.ImageURL = clean
		}
	}

	canonical := linkRel(doc, "canonical")
	if canonical == "" {
		canonical = firstOf(meta, "og:url")
	}
	if canonical != "" {
		if clean, ok := SanitizeURL(canonical, base, false); ok {
			preview.CanonicalURL = clean
		}
	}

	return preview
}

// collectMeta gathers all meta tag name/property -> content pairs. The first
// occurrence of a key wins, matching the priority-ordered lookups above.
func collectMeta(doc *html.Node) map[string]string {
	meta := make(map[string]string)
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "meta" {
			key := attrVal(n, "property")
			if key == "" {
				key = attrVal(n, "name")
			}
			content := strings.TrimSpace(attrVal(n, "content"))
			if key != "" && content != "" {
				if _, seen := meta[key]; !seen {
					meta[key] = content
				}
			}
		}
		return true
	})
	return meta
}

func firstOf(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok {
			return v
		}
	}
	return ""
}

func pageTitle(doc *html.Node) string {
	var title string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return false
		}
		return title == ""
	})
	return title
}

func linkRel(doc *html.Node, rel string) string {
	var href string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "link" && attrVal(n, "rel") == rel {
			href = strings.TrimSpace(attrVal(n, "href"))
			return false
		}
		return href == ""
	})
	return href
}

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

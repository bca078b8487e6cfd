package category

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Resolution reasons, exactly one of which is produced per resolution.
const (
	ReasonDomainRule      = "domain_rule"
	ReasonPathRule        = "path_rule"
	ReasonProviderMapping = "provider_mapping"
	ReasonFallback        = "fallback"
)

// Confidence assigned per resolution reason. Domain rules are near-certain;
// the fallback is a guess.
const (
	confidenceDomainRule      = 0.95
	confidencePathRule        = 0.7
	confidenceProviderMapping = 0.6
	confidenceFallback        = 0.3
)

// ErrUnresolvableURL is returned when the input cannot be parsed as an
// absolute http(s) URL.
var ErrUnresolvableURL = errors.New("URL cannot be parsed for categorization")

// Resolution is the outcome of categorizing a URL. Resolve is a pure
// function of the URL: identical input always yields an identical
// Resolution.
type Resolution struct {
	Category   string
	Provider   string
	Reason     string
	Confidence float64
}

// Resolve categorizes a URL. The fallback chain is, first match wins:
// domain rule on the hostname or its registrable-domain suffix, then path
// heuristics, then provider mapping inferred from the hostname, then the
// default "other" category.
func Resolve(rawURL string) (Resolution, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return Resolution{}, fmt.Errorf("%w: %q", ErrUnresolvableURL, rawURL)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	// 1. domain_rule: exact hostname or registrable-domain suffix.
	if rule, ok := lookupDomainRule(host); ok {
		return Resolution{
			Category:   rule.Category,
			Provider:   rule.Provider,
			Reason:     ReasonDomainRule,
			Confidence: confidenceDomainRule,
		}, nil
	}

	// 2. path_rule: heuristic fragments in the URL path.
	path := strings.ToLower(u.EscapedPath())
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, rule := range pathRules {
		if strings.Contains(path, rule.Fragment) {
			return Resolution{
				Category:   rule.Category,
				Reason:     ReasonPathRule,
				Confidence: confidencePathRule,
			}, nil
		}
	}

	// 3. provider_mapping: hostname implies a known provider without an
	// explicit domain rule (e.g. a country storefront of a marketplace).
	if provider, ok := inferProvider(host); ok {
		return Resolution{
			Category:   providerCategories[provider],
			Provider:   provider,
			Reason:     ReasonProviderMapping,
			Confidence: confidenceProviderMapping,
		}, nil
	}

	// 4. fallback.
	return Resolution{
		Category:   CategoryOther,
		Reason:     ReasonFallback,
		Confidence: confidenceFallback,
	}, nil
}

// lookupDomainRule matches the hostname against the rule table, trying the
// full host first and then progressively shorter suffixes down to two
// labels, so "gist.github.com" matches the "github.com" rule.
func lookupDomainRule(host string) (domainRule, bool) {
	labels := strings.Split(host, ".")
	for i := 0; i <= len(labels)-2; i++ {
		suffix := strings.Join(labels[i:], ".")
		if rule, ok := domainRules[suffix]; ok {
			return rule, true
		}
	}
	return domainRule{}, false
}

// inferProvider reports a known provider whose name appears as a hostname
// label, e.g. "amazon" in "amazon.com.au".
func inferProvider(host string) (string, bool) {
	for _, label := range strings.Split(host, ".") {
		if _, ok := providerCategories[label]; ok {
			return label, true
		}
	}
	return "", false
}

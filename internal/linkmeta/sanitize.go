package linkmeta

import (
	"net/url"
	"strings"
)

// SanitizeURL resolves a possibly-relative URL against a base and rejects
// schemes that must never reach stored metadata. javascript: and mailto:
// are always rejected; data: URIs are rejected unless allowData is set,
// which is only done for image fields. Returns the resolved absolute URL
// and whether it is acceptable.
func SanitizeURL(raw string, base *url.URL, allowData bool) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return "", false
	}
	if strings.HasPrefix(lower, "data:") {
		if allowData {
			return raw, true
		}
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if base != nil {
		u = base.ResolveReference(u)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return "", false
	}
	if u.Host == "" {
		return "", false
	}

	return u.String(), true
}

package urldetector

import (
	"fmt"
	"net/url"
	"strings"
)

// trackingParams are stripped from every URL before it is resolved or stored
var trackingParams = []string{
	// Google Analytics
	"utm_source",
	"utm_medium",
	"utm_campaign",
	"utm_content",
	"utm_term",
	// Platform-specific tracking
	"si",      // YouTube share ID
	"igshid",  // Instagram share ID
	"igsh",    // Instagram share ID (newer links)
	"fbclid",  // Facebook click ID
	"gclid",   // Google click ID
	"msclkid", // Microsoft click ID
	"ref",
	"source",
	"feature", // youtu.be share feature marker
}

// NormalizeURL creates a canonical form of a URL before resolution.
// It handles:
// - Adding https:// protocol if missing
// - Repairing "?a=1?b=2" query strings produced by chat clients
// - Lowercasing the domain and removing the www. prefix
// - Removing tracking parameters
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("empty URL")
	}

	if !strings.HasPrefix(strings.ToLower(rawURL), "http://") &&
		!strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		// Bare domains need at least one dot
		if !strings.Contains(rawURL, ".") || strings.Contains(rawURL, "://") {
			return "", fmt.Errorf("invalid URL: no domain found")
		}
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(fixMalformedQueryString(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid URL: no host found")
	}

	return GetCanonicalURL(u), nil
}

// GetCanonicalURL normalizes an already-parsed URL without modifying it
func GetCanonicalURL(u *url.URL) string {
	canonical := *u

	canonical.Scheme = strings.ToLower(canonical.Scheme)
	canonical.Host = strings.ToLower(canonical.Host)
	canonical.Host = strings.TrimPrefix(canonical.Host, "www.")

	q := canonical.Query()
	for _, param := range trackingParams {
		q.Del(param)
	}
	canonical.RawQuery = q.Encode()

	return canonical.String()
}

// fixMalformedQueryString turns every "?" after the first into "&" within the query part
func fixMalformedQueryString(rawURL string) string {
	fragment := ""
	if i := strings.Index(rawURL, "#"); i >= 0 {
		rawURL, fragment = rawURL[:i], rawURL[i:]
	}

	first := strings.Index(rawURL, "?")
	if first < 0 {
		return rawURL + fragment
	}

	query := strings.ReplaceAll(rawURL[first+1:], "?", "&")
	return rawURL[:first+1] + query + fragment
}

// cleanTrailingPunctuation removes trailing punctuation from a URL found in chat text.
// A closing parenthesis is kept when the parentheses are balanced.
func cleanTrailingPunctuation(urlStr string) string {
	urlStr = strings.TrimLeft(urlStr, "<(\"'")

	if strings.Contains(urlStr, "(") && strings.HasSuffix(urlStr, ")") {
		if strings.Count(urlStr, "(") >= strings.Count(urlStr, ")") {
			return urlStr
		}
	}

	return strings.TrimRight(urlStr, ".,!?;:\"'>)")
}

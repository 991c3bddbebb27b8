package extractor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"reelfetch/internal/domain"
	"reelfetch/internal/pkg/urldetector"
)

// maxPageBytes bounds how much of an HTML page is read into memory
const maxPageBytes = 8 << 20

// Canonicalizer resolves user-supplied URLs into content-bearing canonical URLs
type Canonicalizer struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewCanonicalizer creates a canonicalizer; timeout bounds each HTTP resolution
func NewCanonicalizer(client *http.Client, timeout time.Duration, logger *slog.Logger) *Canonicalizer {
	if client == nil {
		client = newHTTPClient()
	}
	return &Canonicalizer{client: client, timeout: timeout, logger: logger}
}

// Canonicalize normalizes req.RawURL, resolves share links and login walls,
// and validates that the result points at a content path.
func (c *Canonicalizer) Canonicalize(ctx context.Context, req domain.MediaRequest) (domain.CanonicalURL, error) {
	normalized, err := urldetector.NormalizeURL(req.RawURL)
	if err != nil {
		return domain.CanonicalURL{}, domain.NewFailure(domain.FailureParse, "invalid URL: %v", err)
	}

	platform := domain.DetectPlatformFromURL(normalized)
	if platform == domain.PlatformOther && domain.IsValidPlatform(req.Platform) {
		platform = req.Platform
	}
	cfg := domain.GetPlatformConfig(platform)

	candidate := normalized
	var body []byte
	fetched := false

	if cfg.IsShareLink(candidate) {
		finalURL, page, err := c.fetch(ctx, candidate, cfg)
		if err != nil {
			return domain.CanonicalURL{}, err
		}
		fetched, body = true, page
		if n, err := urldetector.NormalizeURL(finalURL); err == nil {
			candidate = n
		}
		c.logger.Debug("Resolved share link",
			"url", normalized,
			"resolved", candidate)
	}

	if target := loginWallTarget(candidate); target != "" {
		candidate = target
	}

	if !isContentURL(cfg, candidate) {
		if !fetched {
			_, page, err := c.fetch(ctx, candidate, cfg)
			if err != nil {
				return domain.CanonicalURL{}, err
			}
			body = page
		}
		if found := canonicalFromHTML(cfg, candidate, body); found != "" {
			candidate = found
		}
	}

	if !isContentURL(cfg, candidate) {
		c.logger.Info("No content URL discoverable",
			"url", req.RawURL,
			"candidate", candidate,
			"platform", platform)
		return domain.CanonicalURL{}, domain.NewFailure(domain.FailureParse, "no content URL discoverable")
	}

	return domain.CanonicalURL{Value: candidate, Platform: platform}, nil
}

func isContentURL(cfg domain.PlatformConfig, rawURL string) bool {
	return !cfg.IsShareLink(rawURL) && cfg.HasContentMarker(rawURL)
}

// fetch GETs rawURL following redirects and returns the final URL and the (bounded) body
func (c *Canonicalizer) fetch(ctx context.Context, rawURL string, cfg domain.PlatformConfig) (string, []byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", nil, domain.NewFailure(domain.FailureParse, "invalid URL: %v", err)
	}
	// Share links only redirect to the content for mobile clients
	req.Header.Set("User-Agent", domain.MobileUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if cfg.Referer != "" {
		req.Header.Set("Referer", cfg.Referer)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// A landing page that still names the target is good enough
		if target := loginWallTarget(finalURL); target != "" {
			return finalURL, nil, nil
		}
		return "", nil, statusFailure(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", nil, transportFailure(ctx, err)
	}
	return finalURL, body, nil
}

// loginWallTarget returns the content URL a login or consent page points back to, if any
func loginWallTarget(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	path := strings.ToLower(u.Path)
	var next string
	switch {
	case strings.HasPrefix(path, "/accounts/login"), strings.HasPrefix(path, "/challenge"):
		next = u.Query().Get("next")
	case strings.HasPrefix(u.Host, "consent."):
		next = u.Query().Get("continue")
	default:
		return ""
	}
	if next == "" {
		return ""
	}

	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	if strings.HasPrefix(u.Host, "consent.") {
		base.Host = strings.TrimPrefix(u.Host, "consent.")
	}
	ref, err := url.Parse(next)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref).String()

	normalized, err := urldetector.NormalizeURL(resolved)
	if err != nil {
		return ""
	}
	cfg := domain.GetPlatformConfig(domain.DetectPlatformFromURL(normalized))
	if !cfg.HasContentMarker(normalized) || len(cfg.ContentMarkers) == 0 {
		return ""
	}
	return normalized
}

// canonicalFromHTML looks for link[rel=canonical] then og:url, returning the first content URL
func canonicalFromHTML(cfg domain.PlatformConfig, pageURL string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	base, _ := url.Parse(pageURL)

	var candidates []string
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		candidates = append(candidates, href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok {
		candidates = append(candidates, content)
	}

	for _, raw := range candidates {
		ref, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if base != nil {
			ref = base.ResolveReference(ref)
		}
		normalized, err := urldetector.NormalizeURL(ref.String())
		if err != nil {
			continue
		}
		if isContentURL(cfg, normalized) {
			return normalized
		}
	}
	return ""
}

// statusFailure maps an unexpected HTTP status to a failure kind
func statusFailure(code int) *domain.Failure {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return domain.NewFailure(domain.FailureBlocked, "platform returned HTTP %d", code)
	default:
		return domain.NewFailure(domain.FailureNetwork, "unexpected HTTP %d", code)
	}
}

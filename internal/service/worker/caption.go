package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"reelfetch/internal/domain"
)

// oEmbedProvider is an endpoint plus the URL schemes it answers for
type oEmbedProvider struct {
	Name     string
	Endpoint string
	Schemes  []*regexp.Regexp
}

func newOEmbedProvider(name, endpoint string, schemes ...string) oEmbedProvider {
	p := oEmbedProvider{Name: name, Endpoint: endpoint}
	for _, scheme := range schemes {
		p.Schemes = append(p.Schemes, regexp.MustCompile(schemeToRegex(scheme)))
	}
	return p
}

// Instagram's endpoint needs an app token, so only YouTube is consulted
var defaultProviders = []oEmbedProvider{
	newOEmbedProvider("YouTube", "https://www.youtube.com/oembed",
		"https://*.youtube.com/watch*",
		"https://*.youtube.com/shorts/*",
		"https://youtube.com/watch*",
		"https://youtube.com/shorts/*",
		"https://youtube.com/live/*",
	),
}

// oEmbedResponse holds the fields of https://oembed.com/#section2.3 used for captions
type oEmbedResponse struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ProviderName string `json:"provider_name"`
}

// CaptionResolver looks up a title for media whose strategy found no description
type CaptionResolver struct {
	providers  []oEmbedProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCaptionResolver creates a resolver backed by the public oEmbed endpoints
func NewCaptionResolver(logger *slog.Logger) *CaptionResolver {
	return newCaptionResolver(&http.Client{Timeout: 10 * time.Second}, defaultProviders, logger)
}

func newCaptionResolver(client *http.Client, providers []oEmbedProvider, logger *slog.Logger) *CaptionResolver {
	return &CaptionResolver{
		providers:  providers,
		httpClient: client,
		logger:     logger,
	}
}

// Resolve returns "Title by Author" for a canonical URL, or "" when no provider
// matches or the lookup fails. Lookup failures never fail a delivery.
func (c *CaptionResolver) Resolve(ctx context.Context, canonicalURL string) string {
	provider := c.match(canonicalURL)
	if provider == nil {
		return ""
	}

	endpoint, err := buildOEmbedURL(provider.Endpoint, canonicalURL)
	if err != nil {
		c.logger.Debug("Failed to build oEmbed URL", "error", err)
		return ""
	}

	resp, err := c.fetch(ctx, endpoint)
	if err != nil {
		c.logger.Debug("oEmbed lookup failed",
			"provider", provider.Name,
			"url", canonicalURL,
			"error", err)
		return ""
	}

	switch {
	case resp.Title != "" && resp.AuthorName != "":
		return fmt.Sprintf("%s by %s", resp.Title, resp.AuthorName)
	default:
		return resp.Title
	}
}

func (c *CaptionResolver) match(rawURL string) *oEmbedProvider {
	for i := range c.providers {
		for _, re := range c.providers[i].Schemes {
			if re.MatchString(rawURL) {
				return &c.providers[i]
			}
		}
	}
	return nil
}

func (c *CaptionResolver) fetch(ctx context.Context, endpoint string) (*oEmbedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", domain.DesktopUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	var out oEmbedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return &out, nil
}

// buildOEmbedURL adds the resource URL and format to an endpoint
func buildOEmbedURL(endpoint, resourceURL string) (string, error) {
	endpoint = strings.ReplaceAll(endpoint, "{format}", "json")
	base, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL: %w", err)
	}
	q := base.Query()
	q.Set("url", resourceURL)
	q.Set("format", "json")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// schemeToRegex converts an oEmbed scheme such as "https://*.youtube.com/watch*"
// into an anchored regular expression
func schemeToRegex(scheme string) string {
	pattern := regexp.QuoteMeta(scheme)
	pattern = strings.ReplaceAll(pattern, `\*`, ".*")
	pattern = strings.ReplaceAll(pattern, `\?`, ".")
	return "^" + pattern + "$"
}

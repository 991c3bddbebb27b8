package extractor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"reelfetch/internal/domain"
)

// Video patterns in priority order; the first capture group is the URL
var videoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"video_url"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`<meta[^>]+property="og:video(?::secure_url|:url)?"[^>]+content="([^"]+)"`),
	regexp.MustCompile(`<meta[^>]+content="([^"]+)"[^>]+property="og:video(?::secure_url|:url)?"`),
	regexp.MustCompile(`"contentUrl"\s*:\s*"([^"]+\.mp4[^"]*)"`),
	regexp.MustCompile(`(https?:(?:\\?/){2}[^"'\s<>]+?\.mp4(?:\?[^"'\s<>]*)?)["'\s<]`),
}

// Image patterns; all matches of the first pattern that yields any are used
var imagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`"display_url"\s*:\s*"([^"]+)"`),
	regexp.MustCompile(`<meta[^>]+property="og:image"[^>]+content="([^"]+)"`),
	regexp.MustCompile(`<meta[^>]+content="([^"]+)"[^>]+property="og:image"`),
}

// HTMLScrapeStrategy fetches the raw page over plain HTTP and pattern-matches media URLs
type HTMLScrapeStrategy struct {
	client    *http.Client
	fetcher   *Fetcher
	timeout   time.Duration
	maxPhotos int
	logger    *slog.Logger
}

// NewHTMLScrapeStrategy creates the raw HTML pattern scraping strategy
func NewHTMLScrapeStrategy(client *http.Client, fetcher *Fetcher, timeout time.Duration, maxPhotos int, logger *slog.Logger) *HTMLScrapeStrategy {
	if client == nil {
		client = newHTTPClient()
	}
	return &HTMLScrapeStrategy{
		client:    client,
		fetcher:   fetcher,
		timeout:   timeout,
		maxPhotos: maxPhotos,
		logger:    logger,
	}
}

func (s *HTMLScrapeStrategy) Name() string { return "html_scrape" }

func (s *HTMLScrapeStrategy) Ready() bool { return true }

func (s *HTMLScrapeStrategy) Attempt(ctx context.Context, target domain.CanonicalURL, quality domain.Quality) (domain.Result, error) {
	body, err := s.fetchPage(ctx, target)
	if err != nil {
		return nil, err
	}

	cfg := domain.GetPlatformConfig(target.Platform)
	headers := cfg.Headers()
	description := htmlDescription(body)

	if videoURL := findVideoURL(body); videoURL != "" {
		s.logger.Debug("Found video in page source", "url", target.Value)
		path, err := s.fetcher.FetchToTemp(ctx, videoURL, headers)
		if err != nil {
			return nil, err
		}
		return &domain.VideoResult{LocalPath: path, Description: description}, nil
	}

	if cfg.IsClip(target.Value) {
		return domain.EmptyResult{}, nil
	}

	photos := selectPhotos(findImageURLs(body), s.maxPhotos)
	if len(photos) == 0 {
		return domain.EmptyResult{}, nil
	}

	_, paths, err := s.fetcher.FetchAllToDir(ctx, photos, headers)
	if err != nil {
		return nil, err
	}
	return &domain.PhotoSetResult{LocalPaths: paths, Description: description}, nil
}

func (s *HTMLScrapeStrategy) fetchPage(ctx context.Context, target domain.CanonicalURL) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Value, nil)
	if err != nil {
		return "", domain.NewFailure(domain.FailureParse, "invalid URL: %v", err)
	}
	req.Header = domain.PlatformHeaders(target.Platform)
	// The mobile markup embeds media URLs more often than the desktop one
	req.Header.Set("User-Agent", domain.MobileUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusFailure(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", transportFailure(ctx, err)
	}
	return string(body), nil
}

func findVideoURL(body string) string {
	for _, re := range videoPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if u := decodeMediaURL(m[1]); isMediaURL(u) {
				return u
			}
		}
	}
	return ""
}

func findImageURLs(body string) []string {
	for _, re := range imagePatterns {
		var urls []string
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if u := decodeMediaURL(m[1]); isMediaURL(u) {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}

// htmlDescription reads og:description, falling back to the document title
func htmlDescription(body string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(body)))
	if err != nil {
		return ""
	}
	if content, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok && strings.TrimSpace(content) != "" {
		return truncateDescription(content)
	}
	return truncateDescription(doc.Find("title").First().Text())
}

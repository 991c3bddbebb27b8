package extractor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"reelfetch/internal/domain"
)

// BrowserStrategy loads the content page in a pooled browser session and
// harvests media URLs from the rendered document.
type BrowserStrategy struct {
	pool       *Pool
	fetcher    *Fetcher
	navTimeout time.Duration
	settle     time.Duration
	maxPhotos  int
	logger     *slog.Logger
}

// NewBrowserStrategy creates the browser automation strategy for the pool's platform
func NewBrowserStrategy(pool *Pool, fetcher *Fetcher, navTimeout, settle time.Duration, maxPhotos int, logger *slog.Logger) *BrowserStrategy {
	return &BrowserStrategy{
		pool:       pool,
		fetcher:    fetcher,
		navTimeout: navTimeout,
		settle:     settle,
		maxPhotos:  maxPhotos,
		logger:     logger,
	}
}

func (s *BrowserStrategy) Name() string { return "browser" }

func (s *BrowserStrategy) Ready() bool { return s.pool.Ready() }

func (s *BrowserStrategy) Attempt(ctx context.Context, target domain.CanonicalURL, quality domain.Quality) (domain.Result, error) {
	session, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Release()

	ctx, cancel := session.Bind(ctx)
	defer cancel()
	page := session.Page

	if err := s.navigate(ctx, page, target.Value); err != nil {
		return nil, err
	}

	if err := page.WaitSettle(ctx, s.settle); err != nil {
		return nil, contextFailure(ctx, "page did not settle")
	}

	title, landedURL, err := page.Info(ctx)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureNetwork, "%v", err)
	}

	cfg := domain.GetPlatformConfig(target.Platform)
	headers := cfg.Headers()

	if isLoginWall(title, landedURL) {
		// Logged-out pages sometimes still embed the video
		_, videos := firstMatch(ctx, page, loginWallVideoExtractors, s.logger)
		if len(videos) == 0 {
			if ctx.Err() != nil {
				return nil, contextFailure(ctx, "page evaluation interrupted")
			}
			return nil, domain.NewFailure(domain.FailureBlocked, "redirected to a login wall")
		}
		return s.fetchVideo(ctx, page, videos, headers)
	}

	if source, videos := firstMatch(ctx, page, videoExtractors, s.logger); len(videos) > 0 {
		s.logger.Debug("Found video on page",
			"extractor", source,
			"url", target.Value)
		return s.fetchVideo(ctx, page, videos, headers)
	}
	if ctx.Err() != nil {
		return nil, contextFailure(ctx, "page evaluation interrupted")
	}

	if cfg.IsClip(target.Value) {
		return domain.EmptyResult{}, nil
	}

	photos := selectPhotos(collectAll(ctx, page, photoExtractors, s.logger), s.maxPhotos)
	if len(photos) == 0 {
		if ctx.Err() != nil {
			return nil, contextFailure(ctx, "page evaluation interrupted")
		}
		return domain.EmptyResult{}, nil
	}

	_, paths, err := s.fetcher.FetchAllToDir(ctx, photos, headers)
	if err != nil {
		return nil, err
	}
	return &domain.PhotoSetResult{
		LocalPaths:  paths,
		Description: pageDescription(ctx, page, s.logger),
	}, nil
}

func (s *BrowserStrategy) navigate(ctx context.Context, page Page, url string) error {
	navCtx := ctx
	if s.navTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.navTimeout)
		defer cancel()
	}
	if err := page.Navigate(navCtx, url); err != nil {
		if navCtx.Err() != nil {
			return contextFailure(navCtx, "navigation did not finish")
		}
		return domain.NewFailure(domain.FailureNetwork, "navigation failed: %v", err)
	}
	return nil
}

// fetchVideo downloads the first candidate that succeeds. Signed CDN URLs
// expire independently, so a rejected candidate does not rule out the rest.
func (s *BrowserStrategy) fetchVideo(ctx context.Context, page Page, videos []string, headers map[string][]string) (domain.Result, error) {
	description := pageDescription(ctx, page, s.logger)
	var lastErr error
	for _, videoURL := range videos {
		path, err := s.fetcher.FetchToTemp(ctx, videoURL, headers)
		if err == nil {
			return &domain.VideoResult{LocalPath: path, Description: description}, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.logger.Debug("Video candidate failed", "url", videoURL, "error", err)
	}
	return nil, lastErr
}

func pageDescription(ctx context.Context, page Page, logger *slog.Logger) string {
	texts, err := page.EvalStrings(ctx, descriptionExtractor.script)
	if err != nil {
		logger.Debug("Failed to read page description", "error", err)
		return ""
	}
	if len(texts) == 0 {
		return ""
	}
	return truncateDescription(texts[0])
}

// contextFailure classifies an interrupted operation: deadline is a timeout,
// cancellation (for example pool shutdown) is a network error.
func contextFailure(ctx context.Context, detail string) *domain.Failure {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewFailure(domain.FailureTimeout, "%s", detail)
	}
	return domain.NewFailure(domain.FailureNetwork, "%s: %v", detail, ctx.Err())
}

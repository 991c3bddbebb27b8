package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelfetch/internal/config"
	"reelfetch/internal/domain"
)

// Strategy is one way of turning a canonical URL into media
type Strategy interface {
	Name() string
	// Ready reports whether the strategy's shared resources are usable right now
	Ready() bool
	Attempt(ctx context.Context, target domain.CanonicalURL, quality domain.Quality) (domain.Result, error)
}

type urlCanonicalizer interface {
	Canonicalize(ctx context.Context, req domain.MediaRequest) (domain.CanonicalURL, error)
}

// canonicalizeStep names canonicalization failures in the failure list
const canonicalizeStep = "canonicalize"

// Report is the full outcome of one extraction call
type Report struct {
	Canonical *domain.CanonicalURL
	// Strategy is the name of the strategy that produced Result, empty on failure
	Strategy string
	Result   domain.Result
	Failures []*domain.Failure
	Duration time.Duration
}

// Err returns the ChainError for a failed extraction, nil on success
func (r *Report) Err() error {
	if r.Result != nil {
		return nil
	}
	return &domain.ChainError{Failures: r.Failures}
}

// Chain runs the per-platform strategy lists in priority order
type Chain struct {
	canonicalizer   urlCanonicalizer
	strategies      map[domain.Platform][]Strategy
	strategyTimeout time.Duration
	logger          *slog.Logger
}

// NewChain creates a chain executor from explicit per-platform strategy lists
func NewChain(canonicalizer urlCanonicalizer, strategies map[domain.Platform][]Strategy, strategyTimeout time.Duration, logger *slog.Logger) *Chain {
	return &Chain{
		canonicalizer:   canonicalizer,
		strategies:      strategies,
		strategyTimeout: strategyTimeout,
		logger:          logger,
	}
}

// NewDefaultChain wires the production strategies:
// youtube = direct_api, browser, html_scrape; instagram and other = browser, html_scrape.
func NewDefaultChain(cfg config.ExtractionConfig, pools Pools, logger *slog.Logger) *Chain {
	client := newHTTPClient()
	fetcher := NewFetcher(client, cfg.TempDir, logger)
	canonicalizer := NewCanonicalizer(client, cfg.FetchTimeout, logger)

	guard := func(p domain.Platform, s Strategy) Strategy {
		return WithBreaker(s, p, cfg.BreakerFailures, cfg.BreakerCooldown, logger)
	}
	// Platforms without a pool run without the browser strategy
	chainFor := func(p domain.Platform, head ...Strategy) []Strategy {
		list := append([]Strategy{}, head...)
		if pool := pools[p]; pool != nil {
			list = append(list, guard(p, NewBrowserStrategy(pool, fetcher, cfg.NavigationTimeout, cfg.SettleDelay, cfg.MaxPhotos, logger)))
		}
		return append(list, guard(p, NewHTMLScrapeStrategy(client, fetcher, cfg.FetchTimeout, cfg.MaxPhotos, logger)))
	}

	strategies := map[domain.Platform][]Strategy{
		domain.PlatformYouTube: chainFor(domain.PlatformYouTube,
			guard(domain.PlatformYouTube, NewDirectAPIStrategy(nil, fetcher, cfg.StandardMaxHeight, logger))),
		domain.PlatformInstagram: chainFor(domain.PlatformInstagram),
		domain.PlatformOther:     chainFor(domain.PlatformOther),
	}

	return NewChain(canonicalizer, strategies, cfg.StrategyTimeout, logger)
}

// Extract resolves req and returns the first successful result, or a
// *domain.ChainError listing every recorded failure in attempt order.
func (c *Chain) Extract(ctx context.Context, req domain.MediaRequest) (domain.Result, error) {
	report := c.Run(ctx, req)
	if err := report.Err(); err != nil {
		return nil, err
	}
	return report.Result, nil
}

// Run is Extract with the diagnostics needed for the extraction record
func (c *Chain) Run(ctx context.Context, req domain.MediaRequest) *Report {
	start := time.Now()
	report := &Report{}
	defer func() { report.Duration = time.Since(start) }()

	logger := c.logger.With("url", req.RawURL, "platform", req.Platform)

	canonical, err := c.canonicalizer.Canonicalize(ctx, req)
	if err != nil {
		f := domain.AsFailure(err, domain.FailureParse).WithStrategy(canonicalizeStep)
		report.Failures = []*domain.Failure{f}
		logger.Warn("Failed to canonicalize URL", "error", f)
		return report
	}
	report.Canonical = &canonical
	logger = logger.With("canonical_url", canonical.Value)

	for _, s := range c.strategies[canonical.Platform] {
		if ctx.Err() != nil {
			report.Failures = append(report.Failures, contextFailure(ctx, "extraction cancelled").WithStrategy(s.Name()))
			break
		}

		if !s.Ready() {
			logger.Debug("Skipping strategy that is not ready", "strategy", s.Name())
			continue
		}

		attemptStart := time.Now()
		result, err := c.attempt(ctx, s, canonical, req.Quality)
		if err != nil {
			if domain.IsNotReady(err) {
				logger.Debug("Skipping strategy that is not ready",
					"strategy", s.Name(),
					"error", err)
				continue
			}
			f := domain.AsFailure(err, domain.FailureParse).WithStrategy(s.Name())
			report.Failures = append(report.Failures, f)
			logger.Info("Strategy failed",
				"strategy", s.Name(),
				"kind", f.Kind,
				"detail", f.Detail,
				"duration", time.Since(attemptStart))
			continue
		}

		if domain.IsSuccess(result) {
			report.Strategy = s.Name()
			report.Result = result
			logger.Info("Extraction succeeded",
				"strategy", s.Name(),
				"result", domain.DescribeResult(result),
				"duration", time.Since(attemptStart))
			return report
		}

		report.Failures = append(report.Failures, &domain.Failure{
			Strategy: s.Name(),
			Kind:     domain.FailureParse,
			Detail:   "no media discoverable",
		})
		logger.Info("Strategy found no media", "strategy", s.Name())
	}

	logger.Warn("All strategies failed",
		"failures", len(report.Failures))
	return report
}

// attempt runs one strategy under the per-strategy timeout, converting panics and
// untyped errors into failures
func (c *Chain) attempt(ctx context.Context, s Strategy, target domain.CanonicalURL, quality domain.Quality) (result domain.Result, err error) {
	if c.strategyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.strategyTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Strategy panicked",
				"strategy", s.Name(),
				"panic", r)
			result = nil
			err = domain.NewFailure(domain.FailureParse, "strategy panicked: %v", r)
		}
	}()

	result, err = s.Attempt(ctx, target, quality)
	if err != nil {
		if result != nil {
			RemoveResultFiles(result)
		}
		var f *domain.Failure
		if !errors.As(err, &f) && ctx.Err() != nil {
			return nil, contextFailure(ctx, fmt.Sprintf("strategy interrupted: %v", err))
		}
		return nil, err
	}
	return result, nil
}

// Platforms lists the platforms the chain has strategies for
func (c *Chain) Platforms() []domain.Platform {
	var out []domain.Platform
	for _, p := range domain.GetValidPlatforms() {
		if len(c.strategies[p]) > 0 {
			out = append(out, p)
		}
	}
	return out
}

// StrategyNames returns the strategy order for a platform
func (c *Chain) StrategyNames(p domain.Platform) []string {
	names := make([]string, 0, len(c.strategies[p]))
	for _, s := range c.strategies[p] {
		names = append(names, s.Name())
	}
	return names
}

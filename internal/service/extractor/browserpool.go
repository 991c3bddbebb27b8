package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"reelfetch/internal/domain"
)

// ErrNoFreePage marks an Acquire that gave up while every page slot was in use.
// It reflects local load, not the health of the platform.
var ErrNoFreePage = errors.New("no free browser page")

// PoolConfig configures the browser pool of one platform
type PoolConfig struct {
	Platform   domain.Platform
	BrowserBin string
	Headless   bool
	MaxPages   int
}

type poolState int32

const (
	poolIdle poolState = iota
	poolReady
	poolFailed
	poolClosed
)

// pageFactory opens a new page in the pool's shared browser context
type pageFactory func(ctx context.Context) (Page, error)

// launchFunc starts the browser and returns a page factory and a shutdown func
type launchFunc func(ctx context.Context) (pageFactory, func() error, error)

// Pool owns one long-lived incognito browser context for a platform and
// hands out a bounded number of pages from it.
type Pool struct {
	cfg    PoolConfig
	logger *slog.Logger
	launch launchFunc

	state     atomic.Int32
	startOnce sync.Once
	newPage   pageFactory
	shutdown  func() error

	sem       *semaphore.Weighted
	openPages atomic.Int64

	mu       sync.Mutex
	sessions sync.WaitGroup

	// ctx is cancelled on Close and aborts in-flight page operations
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewPool creates a pool backed by a rod-controlled browser.
// The browser is not launched until Start or the first Acquire.
func NewPool(cfg PoolConfig, logger *slog.Logger) *Pool {
	return newPool(cfg, launchRod(cfg), logger)
}

func newPool(cfg PoolConfig, launch launchFunc, logger *slog.Logger) *Pool {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		cfg:    cfg,
		logger: logger.With("platform", cfg.Platform),
		launch: launch,
		sem:    semaphore.NewWeighted(int64(cfg.MaxPages)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Platform returns the platform this pool serves
func (p *Pool) Platform() domain.Platform {
	return p.cfg.Platform
}

// Ready reports whether the pool can still serve sessions.
// A pool that has not been started yet counts as ready.
func (p *Pool) Ready() bool {
	s := poolState(p.state.Load())
	return s == poolIdle || s == poolReady
}

// OpenPages returns the number of pages currently held by sessions
func (p *Pool) OpenPages() int {
	return int(p.openPages.Load())
}

// Start launches the browser context once. A failed start is permanent:
// the pool reports not ready for the rest of the process lifetime.
func (p *Pool) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		if poolState(p.state.Load()) == poolClosed {
			return
		}

		newPage, shutdown, err := p.launch(ctx)
		if err != nil {
			p.state.Store(int32(poolFailed))
			p.logger.Error("Browser pool failed to start, browser strategies disabled",
				"error", err)
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		p.newPage, p.shutdown = newPage, shutdown
		if !p.state.CompareAndSwap(int32(poolIdle), int32(poolReady)) {
			// Closed while launching
			if err := shutdown(); err != nil {
				p.logger.Warn("Failed to shut down browser", "error", err)
			}
			return
		}
		p.logger.Info("Browser pool started",
			"max_pages", p.cfg.MaxPages)
	})

	if poolState(p.state.Load()) != poolReady {
		return domain.NewFailure(domain.FailureNotReady, "browser pool for %s is not available", p.cfg.Platform)
	}
	return nil
}

// Session is a page borrowed from a Pool. It must be released exactly once;
// further releases are no-ops.
type Session struct {
	Page Page

	pool *Pool
	once sync.Once
}

// Bind derives a context that is also cancelled when the pool closes
func (s *Session) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.pool.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Release closes the page and frees its slot
func (s *Session) Release() {
	s.pool.Release(s)
}

// Acquire waits for a free page slot and opens a new stealth page.
// It fails fast with not_ready when the pool is unavailable.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if err := p.Start(ctx); err != nil {
		return nil, err
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.NewFailure(domain.FailureTimeout, "timed out waiting for a browser page").Wrap(ErrNoFreePage)
		}
		return nil, domain.NewFailure(domain.FailureTimeout, "cancelled waiting for a browser page: %v", err).Wrap(ErrNoFreePage)
	}

	p.mu.Lock()
	if poolState(p.state.Load()) != poolReady {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, domain.NewFailure(domain.FailureNotReady, "browser pool for %s is closed", p.cfg.Platform)
	}
	p.sessions.Add(1)
	newPage := p.newPage
	p.mu.Unlock()

	session := &Session{pool: p}
	opCtx, cancel := session.Bind(ctx)
	defer cancel()

	page, err := newPage(opCtx)
	if err != nil {
		p.sem.Release(1)
		p.sessions.Done()
		if ctx.Err() != nil {
			return nil, transportFailure(ctx, err)
		}
		return nil, domain.NewFailure(domain.FailureNetwork, "failed to open browser page: %v", err)
	}

	session.Page = page
	p.openPages.Add(1)
	return session, nil
}

// Release returns a session to the pool. Safe to call more than once.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if err := s.Page.Close(); err != nil {
			p.logger.Debug("Failed to close page", "error", err)
		}
		p.openPages.Add(-1)
		p.sem.Release(1)
		p.sessions.Done()
	})
}

// Close cancels in-flight page operations, waits (bounded by ctx) for sessions
// to be released, then shuts the browser down.
func (p *Pool) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.state.Store(int32(poolClosed))
		shutdown := p.shutdown
		p.mu.Unlock()

		p.cancel()

		done := make(chan struct{})
		go func() {
			p.sessions.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			p.logger.Warn("Closing browser pool with sessions still open",
				"open_pages", p.OpenPages())
		}

		if shutdown != nil {
			if serr := shutdown(); serr != nil {
				err = fmt.Errorf("failed to shut down browser: %w", serr)
			}
		}
		p.logger.Info("Browser pool closed")
	})
	return err
}

// launchRod launches a local browser with one incognito context and
// returns a factory of stealth pages emulating the platform's device.
func launchRod(cfg PoolConfig) launchFunc {
	return func(ctx context.Context) (pageFactory, func() error, error) {
		l := launcher.New().
			Headless(cfg.Headless).
			Set("no-sandbox").
			Set("disable-dev-shm-usage")
		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}

		controlURL, err := l.Launch()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
		}

		browser := rod.New().ControlURL(controlURL)
		if err := browser.Connect(); err != nil {
			l.Kill()
			l.Cleanup()
			return nil, nil, fmt.Errorf("failed to connect to browser: %w", err)
		}

		incognito, err := browser.Incognito()
		if err != nil {
			browser.Close()
			l.Kill()
			l.Cleanup()
			return nil, nil, fmt.Errorf("failed to create browser context: %w", err)
		}

		device := devices.LaptopWithMDPIScreen
		if domain.GetPlatformConfig(cfg.Platform).Mobile {
			device = devices.IPhoneX
		}

		newPage := func(ctx context.Context) (Page, error) {
			page, err := stealth.Page(incognito)
			if err != nil {
				return nil, err
			}
			if err := page.Context(ctx).Emulate(device); err != nil {
				page.Close()
				return nil, fmt.Errorf("failed to emulate device: %w", err)
			}
			return newRodPage(page), nil
		}

		shutdown := func() error {
			var errs []error
			if err := incognito.Close(); err != nil {
				errs = append(errs, err)
			}
			if err := browser.Close(); err != nil {
				errs = append(errs, err)
			}
			l.Kill()
			l.Cleanup()
			return errors.Join(errs...)
		}

		return newPage, shutdown, nil
	}
}

// Pools holds one browser pool per platform
type Pools map[domain.Platform]*Pool

// NewPools creates a pool for every platform
func NewPools(base PoolConfig, logger *slog.Logger) Pools {
	pools := make(Pools)
	for _, platform := range domain.GetValidPlatforms() {
		cfg := base
		cfg.Platform = platform
		pools[platform] = NewPool(cfg, logger)
	}
	return pools
}

// StartAll starts every pool concurrently. Pools that fail to start stay
// not ready; only the number of failures is reported.
func (ps Pools) StartAll(ctx context.Context) error {
	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for _, pool := range ps {
		g.Go(func() error {
			if err := pool.Start(gctx); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d browser pools failed to start", n, len(ps))
	}
	return nil
}

// CloseAll closes every pool concurrently
func (ps Pools) CloseAll(ctx context.Context) error {
	var g errgroup.Group
	for _, pool := range ps {
		g.Go(func() error {
			return pool.Close(ctx)
		})
	}
	return g.Wait()
}

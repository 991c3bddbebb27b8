package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelfetch/internal/domain"
	"reelfetch/internal/pkg/logger"
)

var testLogger = logger.Discard()

// rewriteTransport sends every request to a test server while keeping the
// original URL visible to the client (redirect handling, resp.Request).
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Header.Set("X-Original-Host", req.URL.Host)
	resp, err := http.DefaultTransport.RoundTrip(out)
	if resp != nil {
		resp.Request = req
	}
	return resp, err
}

// newRewritingClient returns a client whose requests all land on srv
func newRewritingClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	client := newHTTPClient()
	client.Transport = rewriteTransport{target: target}
	return client
}

// fakePage answers extractor scripts from a fixed table
type fakePage struct {
	title    string
	url      string
	results  map[string][]string // keyed by script
	navigate func(ctx context.Context, url string) error
	// panicIn names a method ("info" or "eval") that panics when called
	panicIn string

	closes atomic.Int32
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if p.navigate != nil {
		return p.navigate(ctx, url)
	}
	if p.url == "" {
		p.url = url
	}
	return nil
}

func (p *fakePage) WaitSettle(ctx context.Context, settle time.Duration) error {
	return ctx.Err()
}

func (p *fakePage) Info(ctx context.Context) (string, string, error) {
	if p.panicIn == "info" {
		panic("page crashed in Info")
	}
	return p.title, p.url, nil
}

func (p *fakePage) EvalStrings(ctx context.Context, js string) ([]string, error) {
	if p.panicIn == "eval" {
		panic("page crashed in EvalStrings")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res, ok := p.results[js]; ok {
		return res, nil
	}
	return nil, nil
}

func (p *fakePage) HTML(ctx context.Context) (string, error) {
	return "<html></html>", nil
}

func (p *fakePage) Close() error {
	p.closes.Add(1)
	return nil
}

// pageRecorder hands out fake pages and tracks concurrency
type pageRecorder struct {
	mu      sync.Mutex
	pages   []*fakePage
	newPage func() *fakePage
}

func (r *pageRecorder) launch(ctx context.Context) (pageFactory, func() error, error) {
	factory := func(ctx context.Context) (Page, error) {
		p := &fakePage{}
		if r.newPage != nil {
			p = r.newPage()
		}
		r.mu.Lock()
		r.pages = append(r.pages, p)
		r.mu.Unlock()
		return p, nil
	}
	return factory, func() error { return nil }, nil
}

func (r *pageRecorder) all() []*fakePage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakePage(nil), r.pages...)
}

func newTestPool(platform domain.Platform, maxPages int, rec *pageRecorder) *Pool {
	return newPool(PoolConfig{Platform: platform, MaxPages: maxPages}, rec.launch, testLogger)
}

func failingLaunch(ctx context.Context) (pageFactory, func() error, error) {
	return nil, nil, errors.New("chrome not found")
}

// fakeStrategy returns a canned outcome and counts its calls
type fakeStrategy struct {
	name   string
	ready  bool
	result domain.Result
	err    error
	panics bool
	block  bool
	calls  atomic.Int32
}

func (s *fakeStrategy) Name() string { return s.name }
func (s *fakeStrategy) Ready() bool  { return s.ready }

func (s *fakeStrategy) Attempt(ctx context.Context, target domain.CanonicalURL, quality domain.Quality) (domain.Result, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.result, s.err
}

// staticCanonicalizer returns a fixed canonical URL or error
type staticCanonicalizer struct {
	canonical domain.CanonicalURL
	err       error
	calls     atomic.Int32
}

func (c *staticCanonicalizer) Canonicalize(ctx context.Context, req domain.MediaRequest) (domain.CanonicalURL, error) {
	c.calls.Add(1)
	return c.canonical, c.err
}

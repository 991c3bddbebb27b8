package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelfetch/internal/domain"
)

func assetServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/expired.mp4" {
			http.Error(w, "signature expired", http.StatusForbidden)
			return
		}
		w.Write([]byte("asset:" + r.URL.Path))
	}))
}

func TestBrowserStrategy(t *testing.T) {
	srv := assetServer(t)
	defer srv.Close()

	tests := []struct {
		name      string
		target    domain.CanonicalURL
		page      func() *fakePage
		wantKind  domain.ResultKind
		wantFiles int
		wantErr   domain.FailureKind
	}{
		{
			name:   "og video is downloaded",
			target: domain.CanonicalURL{Value: "https://instagram.com/reel/ABC/", Platform: domain.PlatformInstagram},
			page: func() *fakePage {
				return &fakePage{title: "Reel", results: map[string][]string{
					ogVideoExtractor.script:     {srv.URL + "/v.mp4"},
					descriptionExtractor.script: {"A caption", "Instagram"},
				}}
			},
			wantKind:  domain.ResultVideo,
			wantFiles: 1,
		},
		{
			name:   "video element used when meta is missing",
			target: domain.CanonicalURL{Value: "https://example.com/watch/1", Platform: domain.PlatformOther},
			page: func() *fakePage {
				return &fakePage{title: "Clip", results: map[string][]string{
					videoElementExtractor.script: {srv.URL + "/stream.mp4"},
				}}
			},
			wantKind:  domain.ResultVideo,
			wantFiles: 1,
		},
		{
			name:   "rejected candidate falls through to the next",
			target: domain.CanonicalURL{Value: "https://example.com/watch/1", Platform: domain.PlatformOther},
			page: func() *fakePage {
				return &fakePage{title: "Clip", results: map[string][]string{
					videoElementExtractor.script: {srv.URL + "/expired.mp4", srv.URL + "/stream.mp4"},
				}}
			},
			wantKind:  domain.ResultVideo,
			wantFiles: 1,
		},
		{
			name:   "every candidate rejected",
			target: domain.CanonicalURL{Value: "https://example.com/watch/1", Platform: domain.PlatformOther},
			page: func() *fakePage {
				return &fakePage{title: "Clip", results: map[string][]string{
					videoElementExtractor.script: {srv.URL + "/expired.mp4", srv.URL + "/expired.mp4?v=2"},
				}}
			},
			wantErr: domain.FailureNetwork,
		},
		{
			name:   "login wall without og video is blocked",
			target: domain.CanonicalURL{Value: "https://instagram.com/reel/ABC/", Platform: domain.PlatformInstagram},
			page: func() *fakePage {
				return &fakePage{title: "Login • Instagram", results: map[string][]string{
					// only consulted when not walled
					videoElementExtractor.script: {srv.URL + "/v.mp4"},
				}}
			},
			wantErr: domain.FailureBlocked,
		},
		{
			name:   "login wall with inline script video",
			target: domain.CanonicalURL{Value: "https://instagram.com/reel/ABC/", Platform: domain.PlatformInstagram},
			page: func() *fakePage {
				return &fakePage{url: "https://instagram.com/accounts/login/", results: map[string][]string{
					inlineScriptExtractor.script: {srv.URL + `\/v.mp4?a=1\u0026b=2`},
				}}
			},
			wantKind:  domain.ResultVideo,
			wantFiles: 1,
		},
		{
			name:   "reel without video is empty",
			target: domain.CanonicalURL{Value: "https://instagram.com/reel/ABC/", Platform: domain.PlatformInstagram},
			page: func() *fakePage {
				return &fakePage{title: "Reel", results: map[string][]string{
					ogImageExtractor.script: {srv.URL + "/cover.jpg"},
				}}
			},
			wantKind: domain.ResultEmpty,
		},
		{
			name:   "photo post collects filtered images",
			target: domain.CanonicalURL{Value: "https://instagram.com/p/ABC/", Platform: domain.PlatformInstagram},
			page: func() *fakePage {
				return &fakePage{title: "Post", results: map[string][]string{
					ogImageExtractor.script: {srv.URL + "/img/1.jpg?sig=a"},
					articleImageExtractor.script: {
						srv.URL + "/img/1.jpg?sig=b",
						srv.URL + "/img/s150x150/avatar.jpg",
						srv.URL + "/img/2.jpg",
						srv.URL + "/missing.jpg",
					},
				}}
			},
			wantKind:  domain.ResultPhotoSet,
			wantFiles: 2,
		},
		{
			name:   "navigation failure is a network error",
			target: domain.CanonicalURL{Value: "https://instagram.com/p/ABC/", Platform: domain.PlatformInstagram},
			page: func() *fakePage {
				return &fakePage{navigate: func(ctx context.Context, url string) error {
					return assert.AnError
				}}
			},
			wantErr: domain.FailureNetwork,
		},
		{
			name:   "navigation timeout",
			target: domain.CanonicalURL{Value: "https://instagram.com/p/ABC/", Platform: domain.PlatformInstagram},
			page: func() *fakePage {
				return &fakePage{navigate: func(ctx context.Context, url string) error {
					<-ctx.Done()
					return ctx.Err()
				}}
			},
			wantErr: domain.FailureTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &pageRecorder{newPage: tt.page}
			pool := newTestPool(tt.target.Platform, 2, rec)
			fetcher := NewFetcher(srv.Client(), t.TempDir(), testLogger)
			s := NewBrowserStrategy(pool, fetcher, 50*time.Millisecond, 0, 10, testLogger)

			result, err := s.Attempt(context.Background(), tt.target, domain.QualityStandard)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, domain.AsFailure(err, "").Kind)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantKind, result.Kind())
				assert.Len(t, result.Files(), tt.wantFiles)
				for _, f := range result.Files() {
					_, statErr := os.Stat(f)
					assert.NoError(t, statErr)
				}
			}

			// the session is released on every path
			assert.Equal(t, 0, pool.OpenPages())
			for _, p := range rec.all() {
				assert.EqualValues(t, 1, p.closes.Load())
			}
		})
	}
}

func TestBrowserStrategyPhotoOrderAndDescription(t *testing.T) {
	srv := assetServer(t)
	defer srv.Close()

	rec := &pageRecorder{newPage: func() *fakePage {
		return &fakePage{title: "Post", results: map[string][]string{
			ogImageExtractor.script:      {srv.URL + "/b.jpg"},
			articleImageExtractor.script: {srv.URL + "/a.jpg", srv.URL + "/b.jpg", srv.URL + "/c.jpg"},
			descriptionExtractor.script:  {"Three photos"},
		}}
	}}
	pool := newTestPool(domain.PlatformInstagram, 1, rec)
	s := NewBrowserStrategy(pool, NewFetcher(srv.Client(), t.TempDir(), testLogger), time.Second, 0, 10, testLogger)

	result, err := s.Attempt(context.Background(), domain.CanonicalURL{Value: "https://instagram.com/p/X/", Platform: domain.PlatformInstagram}, domain.QualityBest)
	require.NoError(t, err)

	photos, ok := result.(*domain.PhotoSetResult)
	require.True(t, ok)
	assert.Equal(t, "Three photos", photos.Description)
	require.Len(t, photos.LocalPaths, 3)

	var contents []string
	for _, p := range photos.LocalPaths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		contents = append(contents, string(data))
	}
	assert.Equal(t, []string{"asset:/b.jpg", "asset:/a.jpg", "asset:/c.jpg"}, contents)
}

func TestBrowserStrategyNotReady(t *testing.T) {
	pool := newPool(PoolConfig{Platform: domain.PlatformInstagram, MaxPages: 1}, failingLaunch, testLogger)
	s := NewBrowserStrategy(pool, NewFetcher(nil, t.TempDir(), testLogger), time.Second, 0, 10, testLogger)

	_, err := s.Attempt(context.Background(), domain.CanonicalURL{Value: "https://instagram.com/p/X/", Platform: domain.PlatformInstagram}, domain.QualityStandard)
	require.Error(t, err)
	assert.True(t, domain.IsNotReady(err))
	assert.False(t, s.Ready())
}

func TestBrowserStrategyReleasesPageOnPanic(t *testing.T) {
	for _, method := range []string{"info", "eval"} {
		t.Run(method, func(t *testing.T) {
			rec := &pageRecorder{newPage: func() *fakePage {
				return &fakePage{title: "Reel", panicIn: method}
			}}
			pool := newTestPool(domain.PlatformInstagram, 1, rec)
			browser := NewBrowserStrategy(pool, NewFetcher(nil, t.TempDir(), testLogger), time.Second, 0, 10, testLogger)
			chain := NewChain(instagramTarget(), map[domain.Platform][]Strategy{
				domain.PlatformInstagram: {browser},
			}, time.Second, testLogger)

			report := chain.Run(context.Background(), domain.NewMediaRequest("https://instagram.com/reel/X/", "", ""))
			require.Error(t, report.Err())
			require.Len(t, report.Failures, 1)
			assert.Equal(t, domain.FailureParse, report.Failures[0].Kind)

			assert.Equal(t, 0, pool.OpenPages())
			pages := rec.all()
			require.Len(t, pages, 1)
			assert.EqualValues(t, 1, pages[0].closes.Load())

			// the slot was freed, so the pool still serves pages
			session, err := pool.Acquire(context.Background())
			require.NoError(t, err)
			session.Release()
		})
	}
}

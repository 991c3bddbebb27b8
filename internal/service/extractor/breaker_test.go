package extractor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelfetch/internal/domain"
)

func TestBreakerTripsOnOutages(t *testing.T) {
	inner := &fakeStrategy{name: "browser", ready: true, err: domain.NewFailure(domain.FailureBlocked, "429")}
	s := WithBreaker(inner, domain.PlatformInstagram, 2, time.Hour, testLogger)
	target := domain.CanonicalURL{Value: "https://instagram.com/p/x/", Platform: domain.PlatformInstagram}

	for i := 0; i < 2; i++ {
		_, err := s.Attempt(context.Background(), target, domain.QualityStandard)
		assert.Equal(t, domain.FailureBlocked, domain.AsFailure(err, "").Kind)
	}

	assert.False(t, s.Ready())
	_, err := s.Attempt(context.Background(), target, domain.QualityStandard)
	require.Error(t, err)
	assert.True(t, domain.IsNotReady(err))
	assert.EqualValues(t, 2, inner.calls.Load())
	assert.Equal(t, "browser", s.Name())
}

func TestBreakerIgnoresParseFailures(t *testing.T) {
	inner := &fakeStrategy{name: "html_scrape", ready: true, err: domain.NewFailure(domain.FailureParse, "markup changed")}
	s := WithBreaker(inner, domain.PlatformInstagram, 2, time.Hour, testLogger)
	target := domain.CanonicalURL{Value: "https://instagram.com/p/x/", Platform: domain.PlatformInstagram}

	for i := 0; i < 5; i++ {
		_, err := s.Attempt(context.Background(), target, domain.QualityStandard)
		assert.Equal(t, domain.FailureParse, domain.AsFailure(err, "").Kind)
	}
	assert.True(t, s.Ready())
	assert.EqualValues(t, 5, inner.calls.Load())
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	inner := &fakeStrategy{name: "direct_api", ready: true, err: domain.NewFailure(domain.FailureNetwork, "reset")}
	s := WithBreaker(inner, domain.PlatformYouTube, 1, 20*time.Millisecond, testLogger)
	target := domain.CanonicalURL{Value: "https://youtube.com/watch?v=x", Platform: domain.PlatformYouTube}

	_, _ = s.Attempt(context.Background(), target, domain.QualityStandard)
	assert.False(t, s.Ready())

	time.Sleep(40 * time.Millisecond)
	assert.True(t, s.Ready())

	inner.err = nil
	inner.result = &domain.VideoResult{LocalPath: "/tmp/x.mp4"}
	result, err := s.Attempt(context.Background(), target, domain.QualityStandard)
	require.NoError(t, err)
	assert.True(t, domain.IsSuccess(result))
	assert.True(t, s.Ready())
}

func TestBreakerDisabled(t *testing.T) {
	inner := &fakeStrategy{name: "browser", ready: true}
	assert.Same(t, Strategy(inner), WithBreaker(inner, domain.PlatformOther, 0, time.Minute, testLogger))
}

func TestBreakerIgnoresPageSlotSaturation(t *testing.T) {
	pool := newTestPool(domain.PlatformInstagram, 1, &pageRecorder{})
	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer held.Release()

	browser := NewBrowserStrategy(pool, NewFetcher(nil, t.TempDir(), testLogger), time.Second, 0, 10, testLogger)
	s := WithBreaker(browser, domain.PlatformInstagram, 3, time.Minute, testLogger)
	target := domain.CanonicalURL{Value: "https://instagram.com/reel/x/", Platform: domain.PlatformInstagram}

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		_, err := s.Attempt(ctx, target, domain.QualityStandard)
		cancel()
		require.Error(t, err)
		assert.Equal(t, domain.FailureTimeout, domain.AsFailure(err, "").Kind)
		assert.ErrorIs(t, err, ErrNoFreePage)
	}

	assert.True(t, pool.Ready())
	assert.True(t, s.Ready(), "a busy pool must not open the breaker")
	assert.Equal(t, 1, pool.OpenPages())
}

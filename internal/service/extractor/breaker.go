package extractor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"reelfetch/internal/domain"
)

// breakerStrategy gates a strategy behind a circuit breaker. Only failures that
// suggest the platform is unreachable or blocking us count towards tripping it.
type breakerStrategy struct {
	Strategy
	cb *gobreaker.CircuitBreaker
}

// WithBreaker wraps s so that after failures consecutive network, blocked or
// timeout failures it is skipped for cooldown, then tried again with a single request.
func WithBreaker(s Strategy, platform domain.Platform, failures uint32, cooldown time.Duration, logger *slog.Logger) Strategy {
	if failures == 0 {
		return s
	}

	settings := gobreaker.Settings{
		Name:        string(platform) + "/" + s.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return !countsAsOutage(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Strategy circuit breaker changed state",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	}

	return &breakerStrategy{
		Strategy: s,
		cb:       gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *breakerStrategy) Ready() bool {
	return b.Strategy.Ready() && b.cb.State() != gobreaker.StateOpen
}

func (b *breakerStrategy) Attempt(ctx context.Context, target domain.CanonicalURL, quality domain.Quality) (domain.Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.Strategy.Attempt(ctx, target, quality)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewFailure(domain.FailureNotReady, "%s circuit breaker: %v", b.Name(), err)
	}

	result, _ := out.(domain.Result)
	return result, err
}

// countsAsOutage reports whether err should push the breaker towards open
func countsAsOutage(err error) bool {
	if err == nil || errors.Is(err, ErrNoFreePage) {
		return false
	}
	var f *domain.Failure
	if !errors.As(err, &f) {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch f.Kind {
	case domain.FailureNetwork, domain.FailureBlocked, domain.FailureTimeout:
		return true
	default:
		return false
	}
}

package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Page is the subset of browser page operations the extraction heuristics need
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitSettle waits for network idle, then a flat settle delay
	WaitSettle(ctx context.Context, settle time.Duration) error
	// Info returns the document title and the current URL
	Info(ctx context.Context) (title, url string, err error)
	// EvalStrings evaluates a JS function returning an array of strings
	EvalStrings(ctx context.Context, js string) ([]string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// rodPage adapts a *rod.Page to Page
type rodPage struct {
	page *rod.Page
}

func newRodPage(page *rod.Page) *rodPage {
	return &rodPage{page: page}
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for load: %w", err)
	}
	return nil
}

func (p *rodPage) WaitSettle(ctx context.Context, settle time.Duration) error {
	err := rod.Try(func() {
		// Idle means no request for 500ms; long-lived streams are ignored
		wait := p.page.Context(ctx).WaitRequestIdle(500*time.Millisecond, nil, nil, []proto.NetworkResourceType{
			proto.NetworkResourceTypeWebSocket,
			proto.NetworkResourceTypeEventSource,
		})
		wait()
	})
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	if settle <= 0 {
		return nil
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *rodPage) Info(ctx context.Context) (string, string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.Title, info.URL, nil
}

func (p *rodPage) EvalStrings(ctx context.Context, js string) ([]string, error) {
	res, err := p.page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}

	var out []string
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to read script result: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("script did not return a string list: %w", err)
	}
	return out, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsThumbnail(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://scontent.cdninstagram.com/v/t51.2885-15/s150x150/123_n.jpg", true},
		{"https://scontent.cdninstagram.com/v/t51.2885-15/123_n.jpg?stp=dst-jpg_e35_s320x320", true},
		{"https://scontent.cdninstagram.com/v/t51.2885-15/p150x150/123_n.jpg", true},
		{"https://scontent.cdninstagram.com/v/t51.2885-19/44884218_n.jpg", true},
		{"https://scontent.cdninstagram.com/v/t51.2885-15/123_n.jpg?stp=dst-jpg_e35_s1080x1080", false},
		{"https://scontent.cdninstagram.com/v/t51.2885-15/s640x640/123_n.jpg", false},
		{"https://cdn.example.com/photos/1.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, isThumbnail(tt.url))
		})
	}
}

func TestSelectPhotos(t *testing.T) {
	urls := []string{
		"https://cdn.example.com/a.jpg?sig=1",
		"https://cdn.example.com/s150x150/a.jpg",
		"https://cdn.example.com/b.jpg",
		"https://cdn.example.com/a.jpg?sig=2",
		"https://cdn.example.com/c.jpg",
		"https://cdn.example.com/d.jpg",
	}

	assert.Equal(t, []string{
		"https://cdn.example.com/a.jpg?sig=1",
		"https://cdn.example.com/b.jpg",
		"https://cdn.example.com/c.jpg",
	}, selectPhotos(urls, 3))

	assert.Len(t, selectPhotos(urls, 10), 4)
	assert.Empty(t, selectPhotos(nil, 10))
}

func TestDecodeMediaURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`https:\/\/cdn.example.com\/v.mp4?a=1\u0026b=2`, "https://cdn.example.com/v.mp4?a=1&b=2"},
		{`https://cdn.example.com/v.mp4?a=1&amp;b=2`, "https://cdn.example.com/v.mp4?a=1&b=2"},
		{`  https://cdn.example.com/v.mp4  `, "https://cdn.example.com/v.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeMediaURL(tt.in))
		})
	}
}

func TestIsLoginWall(t *testing.T) {
	assert.True(t, isLoginWall("Login • Instagram", "https://instagram.com/reel/x/"))
	assert.True(t, isLoginWall("Instagram", "https://instagram.com/accounts/login/?next=/p/x/"))
	assert.True(t, isLoginWall("", "https://instagram.com/challenge/123/"))
	assert.False(t, isLoginWall("Reel by someone", "https://instagram.com/reel/x/"))
}

type scriptErrorPage struct {
	fakePage
	failing string
}

func (p *scriptErrorPage) EvalStrings(ctx context.Context, js string) ([]string, error) {
	if js == p.failing {
		return nil, errors.New("execution context was destroyed")
	}
	return p.fakePage.EvalStrings(ctx, js)
}

func TestFirstMatch(t *testing.T) {
	page := &scriptErrorPage{
		fakePage: fakePage{results: map[string][]string{
			structuredDataExtractor.script: {"blob:https://example.com/123", "not a url"},
			videoElementExtractor.script:   {"https://cdn.example.com/v.mp4"},
			dataBlobExtractor.script:       {"https://cdn.example.com/other.mp4"},
		}},
		failing: ogVideoExtractor.script,
	}

	name, urls := firstMatch(context.Background(), page, videoExtractors, testLogger)
	assert.Equal(t, "video_element", name)
	assert.Equal(t, []string{"https://cdn.example.com/v.mp4"}, urls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	name, urls = firstMatch(ctx, page, videoExtractors, testLogger)
	assert.Empty(t, name)
	assert.Empty(t, urls)
}

package domain

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Platform identifies the source platform of a media URL
type Platform string

// Platform constants - single source of truth
const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformOther     Platform = "other"
)

// User agents used for unauthenticated fetches
const (
	MobileUserAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1"
	DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// PlatformConfig describes how URLs of a platform look and how its assets are fetched
type PlatformConfig struct {
	ID          Platform `json:"id"`
	Name        string   `json:"name"`
	URLPatterns []string `json:"url_patterns"` // host suffixes

	// ShareLinks are opaque shortened paths that must be resolved over HTTP
	ShareLinks []*regexp.Regexp `json:"-"`

	// ContentMarkers are path segments that identify a content-bearing URL.
	// An empty list accepts any URL with a host.
	ContentMarkers []string `json:"content_markers"`

	// ClipMarkers identify reel/story-like paths which never carry photo sets
	ClipMarkers []string `json:"clip_markers"`

	UserAgent string `json:"user_agent"`
	Referer   string `json:"referer,omitempty"`
	Mobile    bool   `json:"mobile"`
}

var platformConfigs = map[Platform]PlatformConfig{
	PlatformYouTube: {
		ID:   PlatformYouTube,
		Name: "YouTube",
		URLPatterns: []string{
			"youtube.com",
			"youtu.be",
			"m.youtube.com",
			"music.youtube.com",
		},
		ShareLinks: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^https?://(?:www\.)?youtu\.be/[\w-]+`),
		},
		ContentMarkers: []string{"/watch", "/shorts/", "/live/", "/embed/"},
		ClipMarkers:    []string{"/shorts/"},
		UserAgent:      DesktopUserAgent,
		Referer:        "https://www.youtube.com/",
	},
	PlatformInstagram: {
		ID:   PlatformInstagram,
		Name: "Instagram",
		URLPatterns: []string{
			"instagram.com",
			"instagr.am",
		},
		ShareLinks: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^https?://(?:www\.)?instagram\.com/share/`),
			regexp.MustCompile(`(?i)^https?://(?:www\.)?instagr\.am/`),
		},
		ContentMarkers: []string{"/p/", "/reel/", "/reels/", "/tv/", "/stories/"},
		ClipMarkers:    []string{"/reel/", "/reels/", "/tv/", "/stories/"},
		UserAgent:      MobileUserAgent,
		Referer:        "https://www.instagram.com/",
		Mobile:         true,
	},
	PlatformOther: {
		ID:        PlatformOther,
		Name:      "Other",
		UserAgent: DesktopUserAgent,
	},
}

// GetPlatformConfig returns the configuration for a platform, defaulting to PlatformOther
func GetPlatformConfig(p Platform) PlatformConfig {
	if cfg, ok := platformConfigs[p]; ok {
		return cfg
	}
	return platformConfigs[PlatformOther]
}

// ParsePlatform converts a user-supplied hint into a Platform
func ParsePlatform(s string) Platform {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case PlatformYouTube:
		return PlatformYouTube
	case PlatformInstagram:
		return PlatformInstagram
	default:
		return PlatformOther
	}
}

// DetectPlatformFromURL detects the platform from the URL host
func DetectPlatformFromURL(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return PlatformOther
	}
	host := strings.ToLower(u.Hostname())

	for _, id := range []Platform{PlatformYouTube, PlatformInstagram} {
		for _, pattern := range platformConfigs[id].URLPatterns {
			if host == pattern || strings.HasSuffix(host, "."+pattern) {
				return id
			}
		}
	}
	return PlatformOther
}

// IsShareLink reports whether the URL is an opaque share link of the platform
func (c PlatformConfig) IsShareLink(rawURL string) bool {
	for _, re := range c.ShareLinks {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}

// HasContentMarker reports whether the URL points at a content-bearing path
func (c PlatformConfig) HasContentMarker(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if len(c.ContentMarkers) == 0 {
		return true
	}
	path := strings.ToLower(u.Path)
	for _, marker := range c.ContentMarkers {
		if strings.HasPrefix(path, marker) || strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// IsClip reports whether the URL is reel/story-like (video only, never a photo set)
func (c PlatformConfig) IsClip(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	for _, marker := range c.ClipMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}

// Headers returns the request headers some platforms require for unauthenticated asset fetches
func (c PlatformConfig) Headers() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", c.UserAgent)
	h.Set("Accept-Language", "en-US,en;q=0.9")
	if c.Referer != "" {
		h.Set("Referer", c.Referer)
	}
	return h
}

// PlatformHeaders is a shorthand for GetPlatformConfig(p).Headers()
func PlatformHeaders(p Platform) http.Header {
	return GetPlatformConfig(p).Headers()
}

// GetValidPlatforms returns all platform IDs
func GetValidPlatforms() []Platform {
	return []Platform{PlatformYouTube, PlatformInstagram, PlatformOther}
}

// IsValidPlatform checks if a platform ID is valid
func IsValidPlatform(p Platform) bool {
	_, exists := platformConfigs[p]
	return exists
}

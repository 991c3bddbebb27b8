package urldetector

import (
	"regexp"
	"strings"

	"reelfetch/internal/domain"
)

// URLInfo contains information about a detected URL
type URLInfo struct {
	URL      string
	Platform domain.Platform
}

// Detector finds supported media URLs in free text
type Detector struct {
	patterns []compiledPattern
}

type compiledPattern struct {
	regex    *regexp.Regexp
	platform domain.Platform
}

// New creates a detector for every platform with known host patterns
func New() *Detector {
	d := &Detector{}
	for _, p := range domain.GetValidPlatforms() {
		cfg := domain.GetPlatformConfig(p)
		for _, host := range cfg.URLPatterns {
			d.patterns = append(d.patterns, compiledPattern{
				regex:    regexp.MustCompile(buildRegexPattern(host)),
				platform: p,
			})
		}
	}
	return d
}

// buildRegexPattern matches a host with optional scheme and subdomain, anchored at the word start
func buildRegexPattern(host string) string {
	return `(?i)^(?:https?://)?(?:[\w-]+\.)?` + regexp.QuoteMeta(host) + `(?:/|$)`
}

// DetectURLs finds all supported media URLs in content, deduplicated after normalization
func (d *Detector) DetectURLs(content string) []URLInfo {
	var urls []URLInfo
	seen := make(map[string]bool)

	for _, word := range strings.Fields(content) {
		candidate := cleanTrailingPunctuation(word)
		for _, pattern := range d.patterns {
			if !pattern.regex.MatchString(candidate) {
				continue
			}

			normalized, err := NormalizeURL(candidate)
			if err != nil {
				break
			}
			if !seen[normalized] {
				seen[normalized] = true
				urls = append(urls, URLInfo{URL: normalized, Platform: pattern.platform})
			}
			break
		}
	}

	return urls
}

// IsSupported checks if a URL matches any supported platform pattern
func (d *Detector) IsSupported(url string) bool {
	for _, pattern := range d.patterns {
		if pattern.regex.MatchString(strings.TrimSpace(url)) {
			return true
		}
	}
	return false
}

// GetSupportedPlatforms returns the platforms the detector recognizes in chat text
func (d *Detector) GetSupportedPlatforms() []domain.Platform {
	var platforms []domain.Platform
	for _, p := range domain.GetValidPlatforms() {
		if len(domain.GetPlatformConfig(p).URLPatterns) > 0 {
			platforms = append(platforms, p)
		}
	}
	return platforms
}

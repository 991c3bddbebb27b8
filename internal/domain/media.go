package domain

import (
	"fmt"
	"strings"
)

// Quality is the requested quality of a video download
type Quality string

const (
	QualityBest     Quality = "best"
	QualityStandard Quality = "standard"
)

// ParseQuality converts a user-supplied value into a Quality, defaulting to standard
func ParseQuality(s string) Quality {
	if Quality(strings.ToLower(strings.TrimSpace(s))) == QualityBest {
		return QualityBest
	}
	return QualityStandard
}

// MediaRequest is one user action asking for the media behind a URL.
// It is passed by value and never modified once created.
type MediaRequest struct {
	RawURL   string   `json:"raw_url"`
	Platform Platform `json:"platform"`
	Quality  Quality  `json:"quality"`
}

// NewMediaRequest builds a request, detecting the platform from the URL when no hint is given
func NewMediaRequest(rawURL string, platform Platform, quality Quality) MediaRequest {
	rawURL = strings.TrimSpace(rawURL)
	if platform == "" || !IsValidPlatform(platform) {
		platform = DetectPlatformFromURL(rawURL)
	}
	if quality == "" {
		quality = QualityStandard
	}
	return MediaRequest{RawURL: rawURL, Platform: platform, Quality: quality}
}

// CanonicalURL is the fully-resolved, content-bearing form of a request URL
type CanonicalURL struct {
	Value    string   `json:"value"`
	Platform Platform `json:"platform"`
}

func (c CanonicalURL) String() string {
	return c.Value
}

// ResultKind tags the variant of a Result
type ResultKind string

const (
	ResultEmpty    ResultKind = "empty"
	ResultVideo    ResultKind = "video"
	ResultPhotoSet ResultKind = "photo_set"
)

// Result is the outcome of a successful or empty strategy attempt.
// Implementations: *VideoResult, *PhotoSetResult, EmptyResult.
type Result interface {
	Kind() ResultKind
	// Files returns every local file the result owns, in display order
	Files() []string
}

// VideoResult is a single downloaded video
type VideoResult struct {
	LocalPath   string `json:"local_path"`
	Description string `json:"description"`
}

func (r *VideoResult) Kind() ResultKind { return ResultVideo }
func (r *VideoResult) Files() []string  { return []string{r.LocalPath} }

// PhotoSetResult is an ordered set of downloaded images
type PhotoSetResult struct {
	LocalPaths  []string `json:"local_paths"`
	Description string   `json:"description"`
}

func (r *PhotoSetResult) Kind() ResultKind { return ResultPhotoSet }
func (r *PhotoSetResult) Files() []string  { return r.LocalPaths }

// EmptyResult means the strategy ran but found nothing
type EmptyResult struct{}

func (EmptyResult) Kind() ResultKind { return ResultEmpty }
func (EmptyResult) Files() []string  { return nil }

// IsSuccess reports whether a result carries media
func IsSuccess(r Result) bool {
	switch v := r.(type) {
	case *VideoResult:
		return v != nil && v.LocalPath != ""
	case *PhotoSetResult:
		return v != nil && len(v.LocalPaths) > 0
	default:
		return false
	}
}

// DescribeResult returns a short human-readable summary for logs
func DescribeResult(r Result) string {
	if r == nil {
		return "none"
	}
	return fmt.Sprintf("%s (%d files)", r.Kind(), len(r.Files()))
}

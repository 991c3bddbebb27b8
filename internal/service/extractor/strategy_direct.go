package extractor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/kkdai/youtube/v2"

	"reelfetch/internal/domain"
)

const maxDescriptionLength = 300

// youtubeClient is the part of *youtube.Client used by DirectAPIStrategy
type youtubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// DirectAPIStrategy fetches video metadata and streams straight from the platform API
type DirectAPIStrategy struct {
	client    youtubeClient
	fetcher   *Fetcher
	maxHeight int
	logger    *slog.Logger
}

// NewDirectAPIStrategy creates the YouTube API strategy; maxHeight is the standard quality target
func NewDirectAPIStrategy(client youtubeClient, fetcher *Fetcher, maxHeight int, logger *slog.Logger) *DirectAPIStrategy {
	if client == nil {
		client = &youtube.Client{HTTPClient: &http.Client{}}
	}
	return &DirectAPIStrategy{client: client, fetcher: fetcher, maxHeight: maxHeight, logger: logger}
}

func (s *DirectAPIStrategy) Name() string { return "direct_api" }

func (s *DirectAPIStrategy) Ready() bool { return true }

func (s *DirectAPIStrategy) Attempt(ctx context.Context, target domain.CanonicalURL, quality domain.Quality) (domain.Result, error) {
	video, err := s.client.GetVideoContext(ctx, target.Value)
	if err != nil {
		return nil, classifyAPIError(ctx, err)
	}

	format := selectFormat(video.Formats, quality, s.maxHeight)
	if format == nil {
		return domain.EmptyResult{}, nil
	}

	s.logger.Debug("Selected video format",
		"video_id", video.ID,
		"itag", format.ItagNo,
		"height", format.Height,
		"has_audio", format.AudioChannels > 0)

	stream, _, err := s.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, classifyAPIError(ctx, err)
	}
	defer stream.Close()

	path, err := s.fetcher.WriteTemp(stream, assetExtension("", format.MimeType))
	if err != nil {
		if ctx.Err() != nil {
			return nil, contextFailure(ctx, "stream download interrupted")
		}
		return nil, err
	}

	return &domain.VideoResult{
		LocalPath:   path,
		Description: videoDescription(video, target.Value),
	}, nil
}

// selectFormat picks a video format. Formats carrying audio are preferred over
// video-only ones since nothing downstream merges separate streams; video-only
// formats are used only when no muxed format exists. Within a group, Standard
// takes the tallest format not above maxHeight (the shortest overall when none
// qualifies) and Best takes the tallest. Ties go to the higher bitrate.
func selectFormat(formats youtube.FormatList, quality domain.Quality, maxHeight int) *youtube.Format {
	if f := pickByHeight(formats, quality, maxHeight, true); f != nil {
		return f
	}
	return pickByHeight(formats, quality, maxHeight, false)
}

func pickByHeight(formats youtube.FormatList, quality domain.Quality, maxHeight int, muxed bool) *youtube.Format {
	var best, lowest *youtube.Format
	for i := range formats {
		f := &formats[i]
		if f.Height <= 0 || (f.AudioChannels > 0) != muxed {
			continue
		}
		if lowest == nil || f.Height < lowest.Height ||
			(f.Height == lowest.Height && betterAtSameHeight(f, lowest)) {
			lowest = f
		}
		if quality != domain.QualityBest && maxHeight > 0 && f.Height > maxHeight {
			continue
		}
		if best == nil || f.Height > best.Height ||
			(f.Height == best.Height && betterAtSameHeight(f, best)) {
			best = f
		}
	}
	if best == nil {
		return lowest
	}
	return best
}

func betterAtSameHeight(a, b *youtube.Format) bool {
	return a.Bitrate > b.Bitrate
}

// classifyAPIError maps youtube client errors onto failure kinds
func classifyAPIError(ctx context.Context, err error) *domain.Failure {
	switch {
	case errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return domain.NewFailure(domain.FailureBlocked, "%v", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return domain.NewFailure(domain.FailureTimeout, "%v", err)
	}

	var status youtube.ErrUnexpectedStatusCode
	if errors.As(err, &status) {
		return statusFailure(int(status))
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewFailure(domain.FailureTimeout, "%v", err)
		}
		return domain.NewFailure(domain.FailureNetwork, "%v", err)
	}
	return domain.NewFailure(domain.FailureParse, "%v", err)
}

func videoDescription(video *youtube.Video, fallback string) string {
	title := strings.TrimSpace(video.Title)
	if title == "" {
		return fallback
	}
	if author := strings.TrimSpace(video.Author); author != "" {
		title += " by " + author
	}
	return truncateDescription(title)
}

func truncateDescription(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxDescriptionLength {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxDescriptionLength-1])) + "…"
}

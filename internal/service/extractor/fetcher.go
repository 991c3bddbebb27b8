package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"reelfetch/internal/domain"
)

const (
	copyBufferSize = 32 * 1024
	tempFilePrefix = "reelfetch-"
	maxRedirects   = 10
	// photo downloads in flight per photo set
	photoDownloadLimit = 4
)

var knownExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".webm": true, ".m4v": true,
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".heic": true, ".gif": true,
}

var contentTypeExtensions = map[string]string{
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"video/quicktime": ".mov",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/heic":      ".heic",
	"image/gif":       ".gif",
}

// Fetcher downloads remote assets into uniquely named local temp files
type Fetcher struct {
	client  *http.Client
	tempDir string
	logger  *slog.Logger
}

// NewFetcher creates an asset fetcher writing into tempDir
func NewFetcher(client *http.Client, tempDir string, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = newHTTPClient()
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Fetcher{client: client, tempDir: tempDir, logger: logger}
}

// newHTTPClient returns a client that follows a bounded number of redirects.
// Requests are bounded by their context rather than a client timeout.
func newHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// FetchToTemp streams rawURL into a new temp file and returns its path.
// On any failure no partial file is left behind.
func (f *Fetcher) FetchToTemp(ctx context.Context, rawURL string, headers http.Header) (string, error) {
	return f.fetchInto(ctx, f.tempDir, tempFilePrefix+uuid.New().String(), rawURL, headers)
}

// WriteTemp copies r into a new temp file with the given extension
func (f *Fetcher) WriteTemp(r io.Reader, ext string) (string, error) {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	filePath := filepath.Join(f.tempDir, tempFilePrefix+uuid.New().String()+ext)
	if err := writeExclusive(filePath, r); err != nil {
		return "", domain.NewFailure(domain.FailureNetwork, "failed to write %s: %v", filepath.Base(filePath), err)
	}
	return filePath, nil
}

// FetchAllToDir downloads urls into a fresh temp directory.
// Successful downloads are returned in the order of urls; individual failures are
// logged and skipped. If nothing could be downloaded the directory is removed and
// the first failure is returned.
func (f *Fetcher) FetchAllToDir(ctx context.Context, urls []string, headers http.Header) (string, []string, error) {
	if len(urls) == 0 {
		return "", nil, domain.NewFailure(domain.FailureParse, "no asset URLs to download")
	}

	dir, err := os.MkdirTemp(f.tempDir, tempFilePrefix+"set-")
	if err != nil {
		return "", nil, domain.NewFailure(domain.FailureNetwork, "failed to create temp dir: %v", err)
	}

	paths := make([]string, len(urls))
	errs := make([]error, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(photoDownloadLimit)
	for i, u := range urls {
		g.Go(func() error {
			p, err := f.fetchInto(gctx, dir, fmt.Sprintf("%02d", i+1), u, headers)
			paths[i], errs[i] = p, err
			// one failed photo must not cancel its siblings
			return nil
		})
	}
	_ = g.Wait()

	var kept []string
	var firstErr error
	for i := range urls {
		if errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			f.logger.Warn("Skipping asset that failed to download",
				"url", urls[i],
				"error", errs[i])
			continue
		}
		kept = append(kept, paths[i])
	}

	if len(kept) == 0 {
		os.RemoveAll(dir)
		return "", nil, firstErr
	}
	return dir, kept, nil
}

func (f *Fetcher) fetchInto(ctx context.Context, dir, baseName, rawURL string, headers http.Header) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", domain.NewFailure(domain.FailureParse, "invalid asset URL: %v", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", transportFailure(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", domain.NewFailure(domain.FailureNetwork, "asset download returned HTTP %d", resp.StatusCode)
	}

	filePath := filepath.Join(dir, baseName+assetExtension(rawURL, resp.Header.Get("Content-Type")))
	if err := writeExclusive(filePath, resp.Body); err != nil {
		if ctx.Err() != nil {
			return "", transportFailure(ctx, err)
		}
		return "", domain.NewFailure(domain.FailureNetwork, "failed to download asset: %v", err)
	}

	f.logger.Debug("Downloaded asset",
		"url", rawURL,
		"path", filePath)
	return filePath, nil
}

// writeExclusive creates filePath (which must not exist) and fills it from r.
// The file is removed if anything goes wrong.
func writeExclusive(filePath string, r io.Reader) (err error) {
	out, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(filePath)
		}
	}()

	buf := make([]byte, copyBufferSize)
	_, err = io.CopyBuffer(out, r, buf)
	return err
}

// assetExtension picks a file extension from the URL path, then the content type
func assetExtension(rawURL, contentType string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); knownExtensions[ext] {
			return ext
		}
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ext, ok := contentTypeExtensions[mediaType]; ok {
		return ext
	}
	switch {
	case strings.HasPrefix(mediaType, "video/"):
		return ".mp4"
	case strings.HasPrefix(mediaType, "image/"):
		return ".jpg"
	}
	return ".bin"
}

// transportFailure classifies an HTTP transport error as timeout or network_error
func transportFailure(ctx context.Context, err error) *domain.Failure {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewFailure(domain.FailureTimeout, "request timed out: %v", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewFailure(domain.FailureTimeout, "request timed out: %v", err)
	}
	return domain.NewFailure(domain.FailureNetwork, "request failed: %v", err)
}

// RemoveResultFiles deletes every file a result owns, plus the photo set
// directory FetchAllToDir created for them.
func RemoveResultFiles(r domain.Result) error {
	if r == nil {
		return nil
	}
	var errs []error
	dirs := make(map[string]bool)
	for _, p := range r.Files() {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		if dir := filepath.Dir(p); strings.HasPrefix(filepath.Base(dir), tempFilePrefix+"set-") {
			dirs[dir] = true
		}
	}
	for dir := range dirs {
		if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

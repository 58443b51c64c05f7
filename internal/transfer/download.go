// Package transfer streams remote archives to disk with progress reporting
// and cooperative cancellation.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/fsutil"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/logger"
	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

const (
	// DefaultRetries is the default number of retries for transient failures
	DefaultRetries = 2
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "rtpkg/1.0"
	// partSuffix marks an archive that is still being written
	partSuffix = ".part"
	// maxTextBytes bounds FetchText responses
	maxTextBytes = 1 << 20
)

// Downloader streams HTTP resources to local files.
type Downloader struct {
	client    *http.Client
	userAgent string
	retries   int
	backoff   func(attempt int) time.Duration
	log       logger.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		if client != nil {
			d.client = client
		}
	}
}

// WithRetries sets how often a transient failure is retried.
func WithRetries(retries int) Option {
	return func(d *Downloader) {
		if retries >= 0 {
			d.retries = retries
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(d *Downloader) {
		d.log = logger.OrNop(log)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(d *Downloader) {
		if ua != "" {
			d.userAgent = ua
		}
	}
}

// NewDownloader creates a new downloader. The default client has no overall
// timeout: archives are large and cancellation is the caller's business.
func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// GitHub asset links redirect to a CDN
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
		retries:   DefaultRetries,
		backoff: func(attempt int) time.Duration {
			// Exponential backoff: 1s, 2s, 4s
			return time.Duration(1<<uint(attempt-1)) * time.Second
		},
		log: logger.Nop(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// FileName returns the local file name used for rawURL: the unescaped last
// element of its path.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("url %q has no file name", rawURL)
	}

	return name, nil
}

// Download streams rawURL into destDir/FileName(rawURL) and returns the path.
//
// destDir must already exist; otherwise no request is made. Progress is
// reported as PhaseDownloading records followed by a final PhaseIdle record.
// expectedBytes is used for estimates when the server sends no length.
// Cancelling ctx aborts the transfer with an error of kind release.KindAbort.
func (d *Downloader) Download(ctx context.Context, rawURL, destDir string, expectedBytes int64, onProgress release.ProgressFunc) (string, error) {
	if !fsutil.IsDir(destDir) {
		return "", release.Errorf(release.KindValidation, "", nil, "download destination %s is not a directory", destDir)
	}

	name, err := FileName(rawURL)
	if err != nil {
		return "", release.Errorf(release.KindValidation, "", err, "download %s", rawURL)
	}
	destPath := filepath.Join(destDir, name)

	progress := newTracker(onProgress, expectedBytes)
	var lastErr error

	for attempt := 0; attempt <= d.retries; attempt++ {
		if ctx.Err() != nil {
			return "", aborted(rawURL, ctx.Err())
		}

		if attempt > 0 {
			select {
			case <-time.After(d.backoff(attempt)):
			case <-ctx.Done():
				return "", aborted(rawURL, ctx.Err())
			}
		}

		n, err := d.downloadOnce(ctx, rawURL, destPath, progress)
		if err == nil {
			d.log.Debug("download complete", "url", rawURL, "bytes", n, "path", destPath)
			onProgress.Report(release.Progress{Phase: release.PhaseIdle})
			return destPath, nil
		}

		lastErr = err

		// Don't retry on context cancellation or client errors
		if ctx.Err() != nil {
			return "", aborted(rawURL, ctx.Err())
		}
		if !retryable(err) {
			break
		}
		if attempt < d.retries {
			d.log.Warn("download attempt failed, retrying", "url", rawURL, "attempt", attempt+1, "error", err)
		}
	}

	return "", release.Errorf(release.KindTransfer, "", lastErr, "download %s", rawURL)
}

// downloadOnce performs a single download attempt and returns the number of
// bytes written.
func (d *Downloader) downloadOnce(ctx context.Context, rawURL, destPath string, progress *tracker) (int64, error) {
	resp, err := d.get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tmpPath := destPath + partSuffix
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	// Track whether we need to clean up the temp file
	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	progress.begin(resp.ContentLength)

	n, err := io.Copy(tmpFile, &progressReader{r: resp.Body, report: progress.update})
	if err != nil {
		return n, fmt.Errorf("copy response body: %w", err)
	}

	// Close temp file before rename
	if err := tmpFile.Close(); err != nil {
		return n, fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return n, fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return n, nil
}

// FetchText fetches a small text resource such as a checksum file.
func (d *Downloader) FetchText(ctx context.Context, rawURL string) (string, error) {
	resp, err := d.get(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", fetchAborted(rawURL, ctx.Err())
		}
		return "", release.Errorf(release.KindTransfer, "", err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTextBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return "", fetchAborted(rawURL, ctx.Err())
		}
		return "", release.Errorf(release.KindTransfer, "", err, "fetch %s", rawURL)
	}
	if len(data) > maxTextBytes {
		return "", release.Errorf(release.KindTransfer, "", nil, "fetch %s: response exceeds %d bytes", rawURL, maxTextBytes)
	}

	return string(data), nil
}

// get issues a GET and fails on any status other than 200.
func (d *Downloader) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}

	return resp, nil
}

// StatusError reports a non-200 HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// retryable reports whether a failed attempt may succeed when repeated.
// Client errors (4xx) are final; server errors and I/O failures are not.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= http.StatusInternalServerError
	}
	return true
}

func aborted(rawURL string, cause error) error {
	return release.Errorf(release.KindAbort, "", cause, "download of %s was aborted", rawURL)
}

func fetchAborted(rawURL string, cause error) error {
	return release.Errorf(release.KindAbort, "", cause, "fetch of %s was aborted", rawURL)
}

// Package download fetches remote audio into a local staging file.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultExt is used when neither the URL nor the response reveals a file type.
const DefaultExt = ".bin"

// Static errors for download operations.
var (
	// ErrDownload is wrapped by every Error.
	ErrDownload = errors.New("download: failed")
	// ErrInvalidURL is returned when the source is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("download: URL must be an absolute http or https URL")
	// ErrTooLarge is returned when the body exceeds the configured size limit.
	ErrTooLarge = errors.New("download: response exceeds size limit")
	// ErrEmptyBody is returned when the source returns no bytes.
	ErrEmptyBody = errors.New("download: empty response body")
	// ErrUnexpectedStatus is returned when the source answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("download: unexpected status")
)

// File describes a downloaded file.
type File struct {
	Path        string
	Size        int64
	Ext         string
	ContentType string
}

// Fetcher downloads remote files.
type Fetcher interface {
	// Fetch downloads rawURL into destDir as baseName plus the inferred
	// extension.
	Fetch(ctx context.Context, rawURL, destDir, baseName string) (File, error)
}

// Error reports a failed download.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrDownload, e.Err}
}

// HTTPFetcher implements Fetcher over HTTP with retries on transient failures.
type HTTPFetcher struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
	maxBytes    int64
}

// Option is a function that configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(f *HTTPFetcher) {
		f.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.baseBackoff = d
	}
}

// WithMaxBytes limits the size of a download. Zero disables the limit.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) {
		f.maxBytes = n
	}
}

// NewHTTPFetcher creates a new HTTPFetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		httpClient:  &http.Client{Timeout: 15 * time.Minute},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, destDir, baseName string) (File, error) {
	u, err := ParseSourceURL(rawURL)
	if err != nil {
		return File{}, &Error{URL: rawURL, Err: err}
	}

	var lastErr error
	backoff := f.baseBackoff

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return File{}, &Error{URL: rawURL, Err: fmt.Errorf("context cancelled: %w", ctx.Err())}
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		file, err := f.fetchOnce(ctx, u, destDir, baseName)
		if err == nil {
			return file, nil
		}

		// Check if error is retryable
		if !isRetryable(err) {
			return File{}, &Error{URL: rawURL, Err: err}
		}

		lastErr = err
	}

	return File{}, &Error{URL: rawURL, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// fetchOnce performs a single download attempt.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL, destDir, baseName string) (File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return File{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return File{}, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return File{}, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("%w %d", ErrUnexpectedStatus, resp.StatusCode)
		// 5xx and 429 are retryable
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return File{}, &retryableError{err: statusErr}
		}
		return File{}, statusErr
	}

	contentType := resp.Header.Get("Content-Type")
	ext := ExtFromURL(u)
	if ext == "" {
		ext = extFromContentType(contentType)
	}
	if ext == "" {
		ext = DefaultExt
	}

	dest := filepath.Join(destDir, baseName+ext)
	n, err := f.writeBody(resp.Body, dest)
	if err != nil {
		_ = os.Remove(dest)
		return File{}, err
	}

	return File{Path: dest, Size: n, Ext: ext, ContentType: contentType}, nil
}

// writeBody streams body into dest, enforcing the size limit.
func (f *HTTPFetcher) writeBody(body io.Reader, dest string) (int64, error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) // #nosec G304 - dest is inside the run's scratch directory
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}

	reader := body
	if f.maxBytes > 0 {
		reader = io.LimitReader(body, f.maxBytes+1)
	}

	n, copyErr := io.Copy(out, reader)
	closeErr := out.Close()

	switch {
	case copyErr != nil:
		return 0, &retryableError{err: fmt.Errorf("copy download data: %w", copyErr)}
	case closeErr != nil:
		return 0, fmt.Errorf("close output file: %w", closeErr)
	case f.maxBytes > 0 && n > f.maxBytes:
		return 0, fmt.Errorf("%w of %d bytes", ErrTooLarge, f.maxBytes)
	case n == 0:
		return 0, ErrEmptyBody
	}

	return n, nil
}

// ParseSourceURL checks that rawURL is an absolute http or https URL.
func ParseSourceURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return u, nil
}

var extRe = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// ExtFromURL returns the lowercased file extension of the URL path, or ""
// when the path has none.
func ExtFromURL(u *url.URL) string {
	ext := strings.ToLower(path.Ext(u.Path))
	if !extRe.MatchString(ext) {
		return ""
	}
	return ext
}

var contentTypeExt = map[string]string{
	"audio/mpeg":   ".mp3",
	"audio/mp3":    ".mp3",
	"audio/mp4":    ".m4a",
	"audio/x-m4a":  ".m4a",
	"audio/aac":    ".aac",
	"audio/wav":    ".wav",
	"audio/x-wav":  ".wav",
	"audio/wave":   ".wav",
	"audio/ogg":    ".ogg",
	"audio/webm":   ".webm",
	"audio/flac":   ".flac",
	"audio/x-flac": ".flac",
	"video/mp4":    ".mp4",
	"video/webm":   ".webm",
}

func extFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return contentTypeExt[strings.ToLower(mediaType)]
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Verify interface implementation at compile time.
var _ Fetcher = (*HTTPFetcher)(nil)

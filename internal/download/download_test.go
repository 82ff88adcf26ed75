package download

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(opts ...Option) *HTTPFetcher {
	base := []Option{WithBaseBackoff(time.Millisecond), WithMaxRetries(2)}
	return NewHTTPFetcher(append(base, opts...)...)
}

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3 fake mp3 bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	file, err := newTestFetcher().Fetch(context.Background(), server.URL+"/episodes/42.MP3?sig=abc", dir, "source")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "source.mp3"), file.Path)
	assert.Equal(t, ".mp3", file.Ext)
	assert.Equal(t, int64(len("ID3 fake mp3 bytes")), file.Size)
	assert.Equal(t, "audio/mpeg", file.ContentType)

	content, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "ID3 fake mp3 bytes", string(content))
}

func TestHTTPFetcher_Fetch_ExtensionFallbacks(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		contentType string
		wantExt     string
	}{
		{"from url", "/a/b/track.wav", "application/octet-stream", ".wav"},
		{"from content type", "/stream", "audio/x-m4a", ".m4a"},
		{"content type with params", "/stream", "audio/ogg; codecs=opus", ".ogg"},
		{"unknown", "/stream", "application/octet-stream", DefaultExt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				_, _ = w.Write([]byte("data"))
			}))
			defer server.Close()

			file, err := newTestFetcher().Fetch(context.Background(), server.URL+tt.path, t.TempDir(), "source")
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, file.Ext)
			assert.True(t, strings.HasSuffix(file.Path, "source"+tt.wantExt))
		})
	}
}

func TestHTTPFetcher_Fetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	file, err := newTestFetcher().Fetch(context.Background(), server.URL+"/a.mp3", t.TempDir(), "source")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int64(2), file.Size)
}

func TestHTTPFetcher_Fetch_MaxRetriesExceeded(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL+"/a.mp3", t.TempDir(), "source")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcher_Fetch_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestFetcher().Fetch(context.Background(), server.URL+"/missing.mp3", t.TempDir(), "source")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())

	var dlErr *Error
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, server.URL+"/missing.mp3", dlErr.URL)
}

func TestHTTPFetcher_Fetch_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := newTestFetcher().Fetch(context.Background(), server.URL+"/a.mp3", dir, "source")
	assert.ErrorIs(t, err, ErrEmptyBody)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file should be removed")
}

func TestHTTPFetcher_Fetch_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer server.Close()

	dir := t.TempDir()
	_, err := newTestFetcher(WithMaxBytes(16)).Fetch(context.Background(), server.URL+"/a.mp3", dir, "source")
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.NoFileExists(t, filepath.Join(dir, "source.mp3"))
}

func TestHTTPFetcher_Fetch_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "ftp://example.com/a.mp3", "/relative/a.mp3", "http://"} {
		t.Run(raw, func(t *testing.T) {
			_, err := newTestFetcher().Fetch(context.Background(), raw, t.TempDir(), "source")
			assert.ErrorIs(t, err, ErrInvalidURL)
			assert.ErrorIs(t, err, ErrDownload)
		})
	}
}

func TestHTTPFetcher_Fetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher(WithBaseBackoff(time.Hour)).Fetch(ctx, server.URL+"/a.mp3", t.TempDir(), "source")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtFromURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://cdn.example.com/a/b.mp3", ".mp3"},
		{"https://cdn.example.com/a/b.FLAC?x=1", ".flac"},
		{"https://cdn.example.com/a/b", ""},
		{"https://cdn.example.com/a.b/c", ""},
		{"https://cdn.example.com/a/b.toolongext", ""},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ExtFromURL(u))
		})
	}
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements the Storage interface using local disk.
// Files are copied under a root directory and addressed by a public base
// URL; the server exposes that directory at /files/.
type LocalStorage struct {
	dir     string
	baseURL string
}

// NewLocalStorage creates a new LocalStorage instance.
// If dir is empty, a "subtitles-api/public" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(dir, publicBaseURL string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "subtitles-api", "public")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStorage{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Dir returns the storage root directory.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Upload implements Storage by copying the file under the storage root.
func (s *LocalStorage) Upload(ctx context.Context, localPath, key, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := ValidateKey(key); err != nil {
		return "", err
	}

	src, err := os.Open(localPath) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return "", fmt.Errorf("%w: open source: %w", ErrUpload, err)
	}
	defer func() { _ = src.Close() }()

	dest := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", fmt.Errorf("%w: create key directory: %w", ErrUpload, err)
	}

	// Write to a temp file in the same directory and rename, so readers
	// never observe a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload_*")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %w", ErrUpload, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: write file: %w", ErrUpload, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: close file: %w", ErrUpload, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("%w: rename file: %w", ErrUpload, err)
	}

	return s.baseURL + "/" + key, nil
}

// Verify interface implementation at compile time.
var _ Storage = (*LocalStorage)(nil)

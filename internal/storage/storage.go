// Package storage provides persistent storage for finished subtitle files.
// It defines the Storage interface (port) for hexagonal architecture and
// implementations for local disk and S3 storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Static errors for storage operations.
var (
	// ErrInvalidKey is returned for empty, absolute or parent-escaping keys.
	ErrInvalidKey = errors.New("storage: invalid object key")
	// ErrUpload is wrapped by every failed upload.
	ErrUpload = errors.New("storage: upload failed")
)

// Storage defines the interface for publishing a finished file.
type Storage interface {
	// Upload copies the file at localPath to key and returns a URL where
	// it can be fetched.
	Upload(ctx context.Context, localPath, key, contentType string) (url string, err error)
}

// ValidateKey checks that key is a clean, relative, slash-separated path.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

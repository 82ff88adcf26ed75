// Package scratch manages per-run working directories. Every pipeline run
// gets its own directory so concurrent runs never share files, and the
// whole directory is removed when the run ends.
package scratch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidName is returned when a file name would escape the run directory.
var ErrInvalidName = errors.New("scratch: invalid file name")

// Root is the parent directory under which run directories are created.
type Root struct {
	dir string
}

// NewRoot creates a new Root. If dir is empty, a "subtitles-api" directory
// under os.TempDir() is used. The directory is created if it doesn't exist.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "subtitles-api")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}

	return &Root{dir: dir}, nil
}

// Path returns the root directory.
func (r *Root) Path() string {
	return r.dir
}

// New creates a fresh run directory named run-<uuid>.
func (r *Root) New() (*Dir, error) {
	id := uuid.NewString()
	path := filepath.Join(r.dir, "run-"+id)
	if err := os.Mkdir(path, 0700); err != nil {
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	return &Dir{id: id, path: path}, nil
}

// Dir is a single run's working directory.
type Dir struct {
	id   string
	path string
}

// ID returns the run identifier embedded in the directory name.
func (d *Dir) ID() string {
	return d.id
}

// Path returns the absolute directory path.
func (d *Dir) Path() string {
	return d.path
}

// Join returns the path of name inside the directory.
func (d *Dir) Join(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(d.path, name), nil
}

// Save writes data to name inside the directory and returns its path.
func (d *Dir) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := d.Join(name)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600) // #nosec G304 - path is inside the run directory
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write scratch file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close scratch file: %w", err)
	}

	return path, nil
}

// Open opens a file inside the directory for reading.
// The caller is responsible for closing the returned file.
func (d *Dir) Open(path string) (*os.File, error) {
	rel, err := filepath.Rel(d.path, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) || filepath.IsAbs(rel) {
		return nil, fmt.Errorf("%w: %q is outside %s", ErrInvalidName, path, d.path)
	}

	f, err := os.Open(path) // #nosec G304 - path is checked to be inside the run directory
	if err != nil {
		return nil, fmt.Errorf("open scratch file: %w", err)
	}
	return f, nil
}

// Cleanup removes the directory and everything in it. Removing an already
// removed directory is not an error.
func (d *Dir) Cleanup() error {
	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("remove run directory %s: %w", d.path, err)
	}
	return nil
}

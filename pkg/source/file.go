package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads from a local filesystem path.
type FileSource struct {
	path string
}

var _ Source = (*FileSource)(nil)

// NewFileSource validates the path and returns a FileSource.
func NewFileSource(path string) (*FileSource, error) {
	path = filepath.Clean(strings.TrimSpace(path))
	if path == "" || path == "." {
		return nil, fmt.Errorf("file path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path is a directory: %s", path)
	}

	return &FileSource{path: path}, nil
}

func (s *FileSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, 0, fmt.Errorf("open source file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat source file: %w", err)
	}

	return f, info.Size(), nil
}

func (s *FileSource) Label() string { return filepath.Base(s.path) }

// Path returns the underlying filesystem path.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Close() error { return nil }

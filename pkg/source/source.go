// Package source abstracts where submitted bulk data bytes come from.
//
// A Source yields a fresh byte stream positioned at offset zero each time it
// is opened; this is the restart contract the chunked reader relies on.
// Local paths and s3:// URIs are supported. Authentication for S3 uses the
// AWS SDK default credential chain.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNotFound indicates the source object or file does not exist.
var ErrNotFound = errors.New("source not found")

// Source is a restartable byte stream.
//
// Implementations must return independent readers from Open so a caller can
// re-read from offset zero (e.g. a pre-scan pass followed by the real read).
type Source interface {
	// Open returns a reader at byte offset 0 and the total size in bytes,
	// or -1 if the size is unknown.
	Open(ctx context.Context) (io.ReadCloser, int64, error)

	// Label is the display name used on job records (file name or URI).
	Label() string

	// Close releases any held resources.
	Close() error
}

// Options configures source resolution.
type Options struct {
	// S3 configures s3:// URI access. Ignored for local paths.
	S3 S3Options
}

// Resolve turns a path or URI into a Source.
//
// Supported forms: a local filesystem path, file:<path>, or s3://bucket/key.
func Resolve(ctx context.Context, uri string, opts Options) (Source, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("source uri is required")
	}

	if strings.HasPrefix(uri, "s3://") {
		rest := strings.TrimPrefix(uri, "s3://")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid s3 uri: %s", uri)
		}
		return newS3Source(ctx, parts[0], parts[1], opts.S3)
	}

	path := strings.TrimPrefix(uri, "file:")
	return NewFileSource(path)
}

// Spool copies a source to a temporary file and returns its path.
//
// Some readers (parquet row groups) need random access; spooling gives them a
// seekable local copy regardless of where the bytes came from. The caller
// must invoke cleanup when done.
func Spool(ctx context.Context, src Source, dir string) (string, int64, func(), error) {
	rc, _, err := src.Open(ctx)
	if err != nil {
		return "", 0, nil, err
	}
	defer func() { _ = rc.Close() }()

	f, err := os.CreateTemp(dir, "goconflux-spool-*")
	if err != nil {
		return "", 0, nil, fmt.Errorf("create spool file: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }

	n, err := io.Copy(f, rc)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		return "", 0, nil, fmt.Errorf("spool source %s: %w", src.Label(), err)
	}
	return f.Name(), n, cleanup, nil
}

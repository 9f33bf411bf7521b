// Package reader turns submitted bulk data into bounded chunks of raw records.
//
// Three shapes are supported: CSV uploads, JSON batches, and columnar
// (parquet) sources. Every shape is read incrementally so memory stays
// proportional to one chunk, never to the submission. A malformed record is
// skipped and counted; a corrupt container (unreadable header, truncated
// file) is fatal to the job.
package reader

import (
	"context"
	"errors"
	"fmt"

	"github.com/3leaps/goconflux/pkg/source"
)

// Kind identifies the shape of a submission.
type Kind string

const (
	KindCSV       Kind = "csv_upload"
	KindJSONBatch Kind = "json_batch"
	KindColumnar  Kind = "columnar_source"
)

// DefaultChunkSize is the number of records handed to the pipeline per chunk.
const DefaultChunkSize = 500

// DefaultMaxJSONRecords caps the size of a single JSON batch submission.
const DefaultMaxJSONRecords = 1000

// ErrTooManyRecords is returned when a JSON batch exceeds the record cap.
var ErrTooManyRecords = errors.New("json batch exceeds record cap")

// RawRecord is one source row, keyed by source column name. Values are
// stringified; absent and null cells are omitted.
type RawRecord struct {
	Fields map[string]string
}

// Chunk is a bounded slice of records plus the count of malformed rows
// skipped while producing it.
type Chunk struct {
	Records []RawRecord
	Skipped int
}

// RecordIterator streams chunks from an open submission.
//
// Header is available immediately after Open so callers can resolve a column
// mapping before reading any data. Project, when called before the first
// Next, narrows the columns materialized per record; iterators that cannot
// benefit ignore it. Next returns io.EOF after the final chunk.
type RecordIterator interface {
	Header() []string
	Total() int64 // -1 when unknown
	Project(columns []string)
	Next(ctx context.Context) (*Chunk, error)
	Close() error
}

// Options tunes chunking and caps.
type Options struct {
	ChunkSize      int
	MaxJSONRecords int
	// SpoolDir receives temporary copies of non-seekable columnar sources.
	// Empty means the OS temp dir.
	SpoolDir string
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.MaxJSONRecords <= 0 {
		o.MaxJSONRecords = DefaultMaxJSONRecords
	}
	return o
}

// Open prepares an iterator over the submission's records.
//
// The header is read (and, for JSON batches, the full batch decoded and
// capped) before Open returns, so container-level corruption surfaces here
// rather than mid-job.
func Open(ctx context.Context, src source.Source, kind Kind, opts Options) (RecordIterator, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts = opts.withDefaults()

	switch kind {
	case KindCSV:
		return openCSV(ctx, src, opts)
	case KindJSONBatch:
		return openJSONBatch(ctx, src, opts)
	case KindColumnar:
		return openParquet(ctx, src, opts)
	default:
		return nil, fmt.Errorf("unsupported source kind: %q", kind)
	}
}

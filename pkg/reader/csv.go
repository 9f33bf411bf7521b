package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/3leaps/goconflux/pkg/source"
)

type csvIterator struct {
	rc        io.ReadCloser
	cr        *csv.Reader
	header    []string
	total     int64
	chunkSize int
	done      bool
}

func openCSV(ctx context.Context, src source.Source, opts Options) (*csvIterator, error) {
	rc, _, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(rc)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		_ = rc.Close()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv input is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cr.FieldsPerRecord = len(header)

	it := &csvIterator{
		rc:        rc,
		cr:        cr,
		header:    append([]string(nil), header...),
		total:     -1,
		chunkSize: opts.ChunkSize,
	}

	// Local files are cheap to re-read, so pre-scan them for the row count.
	// Remote sources stay single-pass and report an unknown total.
	if p, ok := src.(interface{ Path() string }); ok {
		if n, err := countCSVRows(p.Path()); err == nil {
			it.total = n
		}
	}
	return it, nil
}

func (it *csvIterator) Header() []string         { return it.header }
func (it *csvIterator) Total() int64             { return it.total }
func (it *csvIterator) Project(columns []string) {}

func (it *csvIterator) Next(ctx context.Context) (*Chunk, error) {
	if it.done {
		return nil, io.EOF
	}

	chunk := &Chunk{Records: make([]RawRecord, 0, it.chunkSize)}
	for len(chunk.Records) < it.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := it.cr.Read()
		if errors.Is(err, io.EOF) {
			it.done = true
			break
		}
		if err != nil {
			// A row with the wrong field count is a bad record; anything
			// else means the container itself is unreadable.
			if errors.Is(err, csv.ErrFieldCount) {
				chunk.Skipped++
				continue
			}
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		if isBlankRow(row) {
			continue
		}

		fields := make(map[string]string, len(it.header))
		for i, col := range it.header {
			if i < len(row) && row[i] != "" {
				fields[col] = row[i]
			}
		}
		chunk.Records = append(chunk.Records, RawRecord{Fields: fields})
	}

	if len(chunk.Records) == 0 && chunk.Skipped == 0 && it.done {
		return nil, io.EOF
	}
	return chunk, nil
}

func (it *csvIterator) Close() error { return it.rc.Close() }

func isBlankRow(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// countCSVRows counts data rows (excluding the header) with a dedicated
// parsing pass so quoted newlines are not miscounted.
func countCSVRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var n int64 = -1 // header does not count
	for {
		_, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !errors.Is(err, csv.ErrFieldCount) {
			return 0, err
		}
		n++
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

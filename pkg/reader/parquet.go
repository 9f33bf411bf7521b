package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/3leaps/goconflux/pkg/source"
)

// parquetIterator walks row groups of a parquet file, materializing only the
// projected leaf columns. Row groups bound memory the same way chunks do for
// the row-oriented shapes.
type parquetIterator struct {
	file      *os.File
	pf        *parquet.File
	cleanup   func()
	columns   []string // leaf column name per leaf index
	project   map[string]bool
	chunkSize int

	group   int
	rows    parquet.Rows
	buf     []parquet.Row
	pending []RawRecord
	skipped int
}

func openParquet(ctx context.Context, src source.Source, opts Options) (*parquetIterator, error) {
	path := ""
	cleanup := func() {}
	if p, ok := src.(interface{ Path() string }); ok {
		path = p.Path()
	} else {
		spooled, _, spoolCleanup, err := source.Spool(ctx, src, opts.SpoolDir)
		if err != nil {
			return nil, fmt.Errorf("spool columnar source: %w", err)
		}
		path = spooled
		cleanup = spoolCleanup
	}

	f, err := os.Open(path)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open columnar source: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		cleanup()
		return nil, fmt.Errorf("stat columnar source: %w", err)
	}

	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		_ = f.Close()
		cleanup()
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	paths := pf.Schema().Columns()
	columns := make([]string, len(paths))
	for i, p := range paths {
		// Flat exports have single-element paths; nested leaves keep the
		// last path element as their cell name.
		columns[i] = p[len(p)-1]
	}

	return &parquetIterator{
		file:      f,
		pf:        pf,
		cleanup:   cleanup,
		columns:   columns,
		chunkSize: opts.ChunkSize,
		buf:       make([]parquet.Row, 64),
	}, nil
}

func (it *parquetIterator) Header() []string {
	return append([]string(nil), it.columns...)
}

func (it *parquetIterator) Total() int64 { return it.pf.NumRows() }

func (it *parquetIterator) Project(columns []string) {
	it.project = make(map[string]bool, len(columns))
	for _, c := range columns {
		it.project[c] = true
	}
}

func (it *parquetIterator) Next(ctx context.Context) (*Chunk, error) {
	chunk := &Chunk{Records: make([]RawRecord, 0, it.chunkSize)}

	for len(chunk.Records) < it.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(it.pending) == 0 {
			if err := it.fill(); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
		}

		n := it.chunkSize - len(chunk.Records)
		if n > len(it.pending) {
			n = len(it.pending)
		}
		chunk.Records = append(chunk.Records, it.pending[:n]...)
		it.pending = it.pending[n:]
	}

	chunk.Skipped = it.skipped
	it.skipped = 0

	if len(chunk.Records) == 0 && chunk.Skipped == 0 {
		return nil, io.EOF
	}
	return chunk, nil
}

// fill reads the next batch of rows, advancing row groups as they drain.
func (it *parquetIterator) fill() error {
	for {
		if it.rows == nil {
			groups := it.pf.RowGroups()
			if it.group >= len(groups) {
				return io.EOF
			}
			it.rows = groups[it.group].Rows()
			it.group++
		}

		n, err := it.rows.ReadRows(it.buf)
		for _, row := range it.buf[:n] {
			rec, ok := it.convert(row)
			if !ok {
				it.skipped++
				continue
			}
			it.pending = append(it.pending, rec)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("read parquet rows: %w", err)
			}
			_ = it.rows.Close()
			it.rows = nil
			if n == 0 && len(it.pending) == 0 {
				continue
			}
		}
		if len(it.pending) > 0 {
			return nil
		}
	}
}

// convert flattens one parquet row to cell strings, honoring the projection.
func (it *parquetIterator) convert(row parquet.Row) (RawRecord, bool) {
	fields := make(map[string]string, len(it.project))
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(it.columns) {
			return RawRecord{}, false
		}
		name := it.columns[col]
		if it.project != nil && !it.project[name] {
			continue
		}
		if v.IsNull() {
			continue
		}
		if s := v.String(); s != "" {
			fields[name] = s
		}
	}
	return RawRecord{Fields: fields}, true
}

func (it *parquetIterator) Close() error {
	if it.rows != nil {
		_ = it.rows.Close()
		it.rows = nil
	}
	err := it.file.Close()
	it.cleanup()
	return err
}

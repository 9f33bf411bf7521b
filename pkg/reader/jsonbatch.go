package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/3leaps/goconflux/pkg/source"
)

// jsonBatchIterator holds the full decoded batch. Batches are capped at
// MaxJSONRecords, so the footprint is bounded regardless of chunk size.
type jsonBatchIterator struct {
	header    []string
	records   []RawRecord
	skipped   int
	chunkSize int
	pos       int
}

func openJSONBatch(ctx context.Context, src source.Source, opts Options) (*jsonBatchIterator, error) {
	rc, _, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	dec := json.NewDecoder(rc)
	if err := seekRecordsArray(dec); err != nil {
		return nil, err
	}

	it := &jsonBatchIterator{chunkSize: opts.ChunkSize}
	seen := make(map[string]bool)

	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(it.records) >= opts.MaxJSONRecords {
			return nil, fmt.Errorf("%w: limit %d", ErrTooManyRecords, opts.MaxJSONRecords)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode json batch element: %w", err)
		}

		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			// Non-object elements are bad records, not a bad batch.
			it.skipped++
			continue
		}

		// Keys come from the raw bytes, not the decoded map, so the
		// header keeps document order.
		keys, err := objectKeys(raw)
		if err != nil {
			it.skipped++
			continue
		}
		fields := make(map[string]string, len(obj))
		for _, k := range keys {
			if s, ok := stringifyJSON(obj[k]); ok {
				fields[k] = s
			}
			if !seen[k] {
				seen[k] = true
				it.header = append(it.header, k)
			}
		}
		it.records = append(it.records, RawRecord{Fields: fields})
	}

	tok, err := dec.Token()
	if err != nil || tok != json.Delim(']') {
		return nil, errors.New("json batch array is not terminated")
	}
	return it, nil
}

func (it *jsonBatchIterator) Header() []string         { return it.header }
func (it *jsonBatchIterator) Total() int64             { return int64(len(it.records)) }
func (it *jsonBatchIterator) Project(columns []string) {}

func (it *jsonBatchIterator) Next(ctx context.Context) (*Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.pos >= len(it.records) {
		if it.skipped > 0 {
			skipped := it.skipped
			it.skipped = 0
			return &Chunk{Skipped: skipped}, nil
		}
		return nil, io.EOF
	}

	end := it.pos + it.chunkSize
	if end > len(it.records) {
		end = len(it.records)
	}
	chunk := &Chunk{Records: it.records[it.pos:end]}
	it.pos = end

	// Attribute malformed elements to the first chunk.
	chunk.Skipped = it.skipped
	it.skipped = 0
	return chunk, nil
}

func (it *jsonBatchIterator) Close() error { return nil }

// seekRecordsArray positions the decoder just inside the records array.
// Accepts either a bare array or an object with a "records" key.
func seekRecordsArray(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read json batch: %w", err)
	}

	switch tok {
	case json.Delim('['):
		return nil
	case json.Delim('{'):
		for {
			keyTok, err := dec.Token()
			if err != nil {
				return fmt.Errorf("read json batch: %w", err)
			}
			if keyTok == json.Delim('}') {
				return errors.New("json batch has no records array")
			}
			key, _ := keyTok.(string)
			if key == "records" {
				open, err := dec.Token()
				if err != nil {
					return fmt.Errorf("read json batch: %w", err)
				}
				if open != json.Delim('[') {
					return errors.New("json batch records field is not an array")
				}
				return nil
			}
			// Skip the value of any other key.
			var discard json.RawMessage
			if err := dec.Decode(&discard); err != nil {
				return fmt.Errorf("read json batch: %w", err)
			}
		}
	default:
		return errors.New("json batch must be an array or an object with records")
	}
}

// objectKeys walks the raw object token stream and returns its keys in
// document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok != json.Delim('{') {
		return nil, errors.New("not a json object")
	}

	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("malformed json object key")
		}
		keys = append(keys, key)

		var discard json.RawMessage
		if err := dec.Decode(&discard); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// stringifyJSON flattens a decoded JSON value to a cell string. Null and
// empty values report ok=false so the cell is omitted.
func stringifyJSON(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, t != ""
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(b), true
	}
}

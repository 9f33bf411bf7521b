package reader

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/goconflux/pkg/source"
)

func newFileSourceT(t *testing.T, path string) source.Source {
	t.Helper()
	src, err := source.NewFileSource(path)
	require.NoError(t, err)
	return src
}

// byteSource serves in-memory bytes, restartable like a real source.
type byteSource struct {
	label string
	data  []byte
}

func (s *byteSource) Open(ctx context.Context) (io.ReadCloser, int64, error) {
	return io.NopCloser(bytes.NewReader(s.data)), int64(len(s.data)), nil
}
func (s *byteSource) Label() string { return s.label }
func (s *byteSource) Close() error  { return nil }

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVChunksAndTotal(t *testing.T) {
	csvData := "Issue key,Summary,Description\n"
	for i := 0; i < 7; i++ {
		csvData += "TCK-1,fix login,users cannot sign in\n"
	}
	path := writeTempFile(t, "tickets.csv", csvData)

	src := newFileSourceT(t, path)
	it, err := Open(context.Background(), src, KindCSV, Options{ChunkSize: 3})
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	assert.Equal(t, []string{"Issue key", "Summary", "Description"}, it.Header())
	assert.Equal(t, int64(7), it.Total())

	var total, chunks int
	for {
		chunk, err := it.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.LessOrEqual(t, len(chunk.Records), 3)
		total += len(chunk.Records)
		chunks++
	}
	assert.Equal(t, 7, total)
	assert.Equal(t, 3, chunks)
}

func TestCSVSkipsMalformedRows(t *testing.T) {
	csvData := "id,summary\n" +
		"TCK-1,ok row\n" +
		"TCK-2,too,many,fields\n" +
		"\n" +
		"TCK-3,another ok row\n"

	it, err := Open(context.Background(), &byteSource{label: "b", data: []byte(csvData)}, KindCSV, Options{})
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	assert.Equal(t, int64(-1), it.Total(), "non-file sources report unknown totals")

	chunk, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, chunk.Records, 2)
	assert.Equal(t, 1, chunk.Skipped)
	assert.Equal(t, "ok row", chunk.Records[0].Fields["summary"])

	_, err = it.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestCSVEmptyInputIsFatal(t *testing.T) {
	_, err := Open(context.Background(), &byteSource{label: "e"}, KindCSV, Options{})
	require.Error(t, err)
}

func TestJSONBatchArray(t *testing.T) {
	data := `[
		{"id": "TCK-1", "summary": "first", "priority": 3},
		{"id": "TCK-2", "summary": "second", "resolved": true}
	]`

	it, err := Open(context.Background(), &byteSource{label: "j", data: []byte(data)}, KindJSONBatch, Options{})
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	assert.Equal(t, int64(2), it.Total())
	assert.Contains(t, it.Header(), "id")
	assert.Contains(t, it.Header(), "priority")

	chunk, err := it.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, chunk.Records, 2)
	assert.Equal(t, "3", chunk.Records[0].Fields["priority"])
	assert.Equal(t, "true", chunk.Records[1].Fields["resolved"])
}

func TestJSONBatchHeaderKeepsDocumentOrder(t *testing.T) {
	data := `[
		{"issue_key": "TCK-1", "summary": "first", "description": "d1", "priority": 3, "assignee": "amal"},
		{"issue_key": "TCK-2", "summary": "second", "description": "d2", "resolved": true}
	]`

	want := []string{"issue_key", "summary", "description", "priority", "assignee", "resolved"}
	for i := 0; i < 10; i++ {
		it, err := Open(context.Background(), &byteSource{label: "j", data: []byte(data)}, KindJSONBatch, Options{})
		require.NoError(t, err)
		assert.Equal(t, want, it.Header(), "column order must follow the documents, not map iteration")
		require.NoError(t, it.Close())
	}
}

func TestJSONBatchWrappedObject(t *testing.T) {
	data := `{"label": "nightly", "records": [{"id": "TCK-9", "summary": "wrapped"}]}`

	it, err := Open(context.Background(), &byteSource{label: "j", data: []byte(data)}, KindJSONBatch, Options{})
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	chunk, err := it.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, chunk.Records, 1)
	assert.Equal(t, "wrapped", chunk.Records[0].Fields["summary"])
}

func TestJSONBatchRecordCap(t *testing.T) {
	data := `[{"id":"1"},{"id":"2"},{"id":"3"}]`

	_, err := Open(context.Background(), &byteSource{label: "j", data: []byte(data)}, KindJSONBatch, Options{MaxJSONRecords: 2})
	require.ErrorIs(t, err, ErrTooManyRecords)
}

func TestJSONBatchSkipsNonObjectElements(t *testing.T) {
	data := `[{"id":"TCK-1","summary":"good"}, "not an object", {"id":"TCK-2","summary":"also good"}]`

	it, err := Open(context.Background(), &byteSource{label: "j", data: []byte(data)}, KindJSONBatch, Options{})
	require.NoError(t, err)

	chunk, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Len(t, chunk.Records, 2)
	assert.Equal(t, 1, chunk.Skipped)
}

type parquetTicket struct {
	IssueKey    string `parquet:"issue_key"`
	Summary     string `parquet:"summary"`
	Description string `parquet:"description"`
	Assignee    string `parquet:"assignee"`
}

func TestParquetProjectedColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := parquet.NewGenericWriter[parquetTicket](f)
	_, err = w.Write([]parquetTicket{
		{IssueKey: "TCK-1", Summary: "slow queries", Description: "dashboard times out", Assignee: "amal"},
		{IssueKey: "TCK-2", Summary: "crash on save", Description: "npe in handler", Assignee: "riley"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	it, err := Open(context.Background(), newFileSourceT(t, path), KindColumnar, Options{})
	require.NoError(t, err)
	defer func() { _ = it.Close() }()

	assert.Equal(t, int64(2), it.Total())
	assert.ElementsMatch(t, []string{"issue_key", "summary", "description", "assignee"}, it.Header())

	it.Project([]string{"issue_key", "summary"})

	chunk, err := it.Next(context.Background())
	require.NoError(t, err)
	require.Len(t, chunk.Records, 2)
	assert.Equal(t, "TCK-1", chunk.Records[0].Fields["issue_key"])
	assert.Equal(t, "slow queries", chunk.Records[0].Fields["summary"])
	assert.NotContains(t, chunk.Records[0].Fields, "assignee")

	_, err = it.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestOpenRejectsUnknownKind(t *testing.T) {
	_, err := Open(context.Background(), &byteSource{label: "x"}, Kind("spreadsheet"), Options{})
	require.Error(t, err)
}

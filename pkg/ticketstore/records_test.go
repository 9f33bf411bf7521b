package ticketstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(context.Background(), db))
	return db
}

func sampleRecord() (RecordRow, []FieldSentimentRow, []EntityRow) {
	rec := RecordRow{
		RecordID:          "TCK-101",
		Summary:           "login broken",
		Description:       "users cannot sign in after the deploy",
		OverallSentiment:  "negative",
		OverallConfidence: 0.84,
		SentimentTrend:    "declining",
		LastJobID:         "job-1",
		UpdatedAt:         time.Now(),
	}
	fields := []FieldSentimentRow{
		{FieldType: FieldSummary, CommentNumber: 0, Text: "login broken", Sentiment: "negative", Confidence: 0.9},
		{FieldType: FieldComment, CommentNumber: 1, Text: "still failing", Sentiment: "negative", Confidence: 0.8, AuthorID: "u1"},
		{FieldType: FieldComment, CommentNumber: 2, Text: "fix confirmed", Sentiment: "positive", Confidence: 0.7, AuthorID: "u2"},
	}
	entities := []EntityRow{
		{Text: "Okta", Label: "ORG", Start: 23, End: 27},
	}
	return rec, fields, entities
}

func TestApplyAndGet(t *testing.T) {
	db := openTestStore(t)
	rec, fields, entities := sampleRecord()

	require.NoError(t, Apply(context.Background(), db, rec, fields, entities))

	got, err := GetRecord(context.Background(), db, "TCK-101")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "login broken", got.Summary)
	assert.Equal(t, "negative", got.OverallSentiment)
	assert.Equal(t, "job-1", got.LastJobID)

	n, err := CountSentiments(context.Background(), db, "TCK-101")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openTestStore(t)
	rec, fields, entities := sampleRecord()

	require.NoError(t, Apply(context.Background(), db, rec, fields, entities))
	require.NoError(t, Apply(context.Background(), db, rec, fields, entities))

	var recordCount int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&recordCount))
	assert.Equal(t, int64(1), recordCount)

	n, err := CountSentiments(context.Background(), db, "TCK-101")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "sentiment rows keep their natural key")

	got, err := ListEntities(context.Background(), db, "TCK-101")
	require.NoError(t, err)
	require.Len(t, got, 1, "entities are replaced, not accumulated")
	assert.Equal(t, EntityRow{Text: "Okta", Label: "ORG", Start: 23, End: 27}, got[0], "character span survives the round trip")
}

func TestApplyReplacesEntities(t *testing.T) {
	db := openTestStore(t)
	rec, fields, entities := sampleRecord()
	require.NoError(t, Apply(context.Background(), db, rec, fields, entities))

	require.NoError(t, Apply(context.Background(), db, rec, fields, []EntityRow{
		{Text: "Okta", Label: "ORG", Start: 23, End: 27},
		{Text: "Berlin", Label: "LOC", Start: 40, End: 46},
	}))

	got, err := ListEntities(context.Background(), db, "TCK-101")
	require.NoError(t, err)
	assert.Equal(t, []EntityRow{
		{Text: "Okta", Label: "ORG", Start: 23, End: 27},
		{Text: "Berlin", Label: "LOC", Start: 40, End: 46},
	}, got)
}

func TestApplyUpdatesChangedFields(t *testing.T) {
	db := openTestStore(t)
	rec, fields, entities := sampleRecord()
	require.NoError(t, Apply(context.Background(), db, rec, fields, entities))

	rec.OverallSentiment = "positive"
	rec.LastJobID = "job-2"
	require.NoError(t, Apply(context.Background(), db, rec, fields, entities))

	got, err := GetRecord(context.Background(), db, "TCK-101")
	require.NoError(t, err)
	assert.Equal(t, "positive", got.OverallSentiment)
	assert.Equal(t, "job-2", got.LastJobID)
}

func TestGetRecordMissing(t *testing.T) {
	db := openTestStore(t)

	got, err := GetRecord(context.Background(), db, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApplyRequiresRecordID(t *testing.T) {
	db := openTestStore(t)
	require.Error(t, Apply(context.Background(), db, RecordRow{}, nil, nil))
}

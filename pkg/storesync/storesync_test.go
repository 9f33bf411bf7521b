package storesync

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/pkg/enrich"
	"github.com/3leaps/goconflux/pkg/ticketstore"
)

type fakeSink struct {
	name  string
	fail  bool
	calls atomic.Int32
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Write(ctx context.Context, jobID string, rec *EnrichedRecord) error {
	f.calls.Add(1)
	if f.fail {
		return errors.New("connection refused")
	}
	return nil
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := ticketstore.Open(context.Background(), ticketstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ticketstore.Migrate(context.Background(), db))
	return db
}

func sampleEnriched() *EnrichedRecord {
	return &EnrichedRecord{
		RecordID:    "TCK-7",
		Summary:     "checkout fails",
		Description: "payment form rejects valid cards",
		Fields: []FieldResult{
			{
				FieldType: ticketstore.FieldSummary,
				Text:      "checkout fails",
				Sentiment: enrich.Sentiment{Label: enrich.LabelNegative, Confidence: 0.9},
				Entities:  []enrich.Entity{{Text: "Stripe", Label: "ORG"}},
			},
		},
		Rollup: enrich.Rollup{Label: enrich.LabelNegative, Confidence: 0.9, Trend: enrich.TrendStable},
	}
}

func TestPersistWritesRelationalThenSinks(t *testing.T) {
	db := openTestDB(t)
	sink := &fakeSink{name: "analytics"}
	sync := New(db, []Sink{sink}, zap.NewNop())

	lag, err := sync.Persist(context.Background(), "job-1", sampleEnriched())
	require.NoError(t, err)
	assert.Zero(t, lag)
	assert.Equal(t, int32(1), sink.calls.Load())

	got, err := ticketstore.GetRecord(context.Background(), db, "TCK-7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "negative", got.OverallSentiment)

	entities, err := ticketstore.ListEntities(context.Background(), db, "TCK-7")
	require.NoError(t, err)
	assert.Len(t, entities, 1)
}

func TestPersistSinkFailureIsLagNotError(t *testing.T) {
	db := openTestDB(t)
	search := &fakeSink{name: "search", fail: true}
	analytics := &fakeSink{name: "analytics"}
	sync := New(db, []Sink{analytics, search}, zap.NewNop())

	lag, err := sync.Persist(context.Background(), "job-1", sampleEnriched())
	require.NoError(t, err, "sink failures must not fail the record")
	assert.Equal(t, 1, lag)

	got, err := ticketstore.GetRecord(context.Background(), db, "TCK-7")
	require.NoError(t, err)
	assert.NotNil(t, got, "relational write still lands")
}

func TestPersistIdempotent(t *testing.T) {
	db := openTestDB(t)
	sync := New(db, nil, zap.NewNop())

	_, err := sync.Persist(context.Background(), "job-1", sampleEnriched())
	require.NoError(t, err)
	_, err = sync.Persist(context.Background(), "job-2", sampleEnriched())
	require.NoError(t, err)

	var n int64
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n))
	assert.Equal(t, int64(1), n)

	got, err := ticketstore.GetRecord(context.Background(), db, "TCK-7")
	require.NoError(t, err)
	assert.Equal(t, "job-2", got.LastJobID)
}

func TestPersistRejectsEmptyRecordID(t *testing.T) {
	db := openTestDB(t)
	sync := New(db, nil, zap.NewNop())

	_, err := sync.Persist(context.Background(), "job-1", &EnrichedRecord{})
	require.Error(t, err)
}

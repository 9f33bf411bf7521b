// Package storesync lands enriched records across the configured backends.
//
// The relational store is authoritative: its commit decides whether a record
// was persisted. Secondary sinks (analytics, search) are written afterwards
// and are allowed to lag; their failures are logged and counted but never
// fail the record or the job.
package storesync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/pkg/enrich"
	"github.com/3leaps/goconflux/pkg/ticketstore"
)

// FieldResult is one analyzed text field of a record.
type FieldResult struct {
	FieldType     string
	CommentNumber int
	Text          string
	Sentiment     enrich.Sentiment
	Entities      []enrich.Entity
	AuthorID      string
	CommentedAt   time.Time
}

// EnrichedRecord is the pipeline currency between enrichment and storage.
// It is ephemeral: built per record, persisted, then dropped.
type EnrichedRecord struct {
	RecordID    string
	Summary     string
	Description string
	Timestamp   string
	Extra       map[string]string
	Fields      []FieldResult
	Rollup      enrich.Rollup
}

// Sink is a non-authoritative backend fed after the relational commit.
type Sink interface {
	Name() string
	Write(ctx context.Context, jobID string, rec *EnrichedRecord) error
}

// Synchronizer persists enriched records. Safe for concurrent use.
type Synchronizer struct {
	db     *sql.DB
	sinks  []Sink
	logger *zap.Logger
}

// New builds a Synchronizer over the relational store and zero or more sinks.
func New(db *sql.DB, sinks []Sink, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{db: db, sinks: sinks, logger: logger}
}

// Persist lands one record. The returned lag count is the number of sinks
// that failed; a non-nil error means the relational write failed after
// retries and the record must be counted as a row-level failure.
func (s *Synchronizer) Persist(ctx context.Context, jobID string, rec *EnrichedRecord) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec == nil || rec.RecordID == "" {
		return 0, fmt.Errorf("enriched record requires a record id")
	}

	row, fields, entities := s.toRows(jobID, rec)

	err := retry.Do(
		func() error { return ticketstore.Apply(ctx, s.db, row, fields, entities) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(50*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return 0, fmt.Errorf("persist record %s: %w", rec.RecordID, err)
	}

	lag := 0
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, jobID, rec); err != nil {
			lag++
			s.logger.Warn("secondary store lagging",
				zap.String("sink", sink.Name()),
				zap.String("job_id", jobID),
				zap.String("record_id", rec.RecordID),
				zap.Error(err))
		}
	}
	return lag, nil
}

func (s *Synchronizer) toRows(jobID string, rec *EnrichedRecord) (ticketstore.RecordRow, []ticketstore.FieldSentimentRow, []ticketstore.EntityRow) {
	extra := ""
	if len(rec.Extra) > 0 {
		if b, err := json.Marshal(rec.Extra); err == nil {
			extra = string(b)
		}
	}

	row := ticketstore.RecordRow{
		RecordID:          rec.RecordID,
		Summary:           rec.Summary,
		Description:       rec.Description,
		RecordTimestamp:   rec.Timestamp,
		OverallSentiment:  rec.Rollup.Label,
		OverallConfidence: rec.Rollup.Confidence,
		SentimentTrend:    rec.Rollup.Trend,
		Extra:             extra,
		LastJobID:         jobID,
		UpdatedAt:         time.Now(),
	}

	fields := make([]ticketstore.FieldSentimentRow, 0, len(rec.Fields))
	var entities []ticketstore.EntityRow
	for _, f := range rec.Fields {
		commentedAt := ""
		if !f.CommentedAt.IsZero() {
			commentedAt = f.CommentedAt.UTC().Format(time.RFC3339)
		}
		fields = append(fields, ticketstore.FieldSentimentRow{
			FieldType:     f.FieldType,
			CommentNumber: f.CommentNumber,
			Text:          f.Text,
			Sentiment:     f.Sentiment.Label,
			Confidence:    f.Sentiment.Confidence,
			AuthorID:      f.AuthorID,
			CommentedAt:   commentedAt,
		})
		for _, e := range f.Entities {
			entities = append(entities, ticketstore.EntityRow{Text: e.Text, Label: e.Label, Start: e.Start, End: e.End})
		}
	}
	return row, fields, entities
}

package ticketstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Field types stored in field_sentiments.
const (
	FieldSummary     = "summary"
	FieldDescription = "description"
	FieldComment     = "comment"
)

// RecordRow is one row in the records table.
type RecordRow struct {
	RecordID          string
	Summary           string
	Description       string
	RecordTimestamp   string
	OverallSentiment  string
	OverallConfidence float64
	SentimentTrend    string
	// Extra holds unmapped source columns as a JSON object, or "".
	Extra     string
	LastJobID string
	UpdatedAt time.Time
}

// FieldSentimentRow is one analyzed text field. CommentNumber is 0 for
// summary and description rows and 1-based for comments.
type FieldSentimentRow struct {
	FieldType     string
	CommentNumber int
	Text          string
	Sentiment     string
	Confidence    float64
	AuthorID      string
	CommentedAt   string
}

// EntityRow is one extracted entity with its character span.
type EntityRow struct {
	Text  string
	Label string
	Start int
	End   int
}

// Apply lands one enriched record in a single transaction: the parent row is
// upserted, field sentiments are upserted on their natural key, and entities
// are replaced wholesale. Re-applying the same record is a no-op in effect.
func Apply(ctx context.Context, db *sql.DB, rec RecordRow, fields []FieldSentimentRow, entities []EntityRow) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec.RecordID == "" {
		return fmt.Errorf("record id is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records
		 (record_id, summary, description, record_timestamp,
		  overall_sentiment, overall_confidence, sentiment_trend,
		  extra, last_job_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET
		   summary = excluded.summary,
		   description = excluded.description,
		   record_timestamp = excluded.record_timestamp,
		   overall_sentiment = excluded.overall_sentiment,
		   overall_confidence = excluded.overall_confidence,
		   sentiment_trend = excluded.sentiment_trend,
		   extra = excluded.extra,
		   last_job_id = excluded.last_job_id,
		   updated_at = excluded.updated_at`,
		rec.RecordID, rec.Summary, rec.Description, rec.RecordTimestamp,
		rec.OverallSentiment, rec.OverallConfidence, rec.SentimentTrend,
		rec.Extra, rec.LastJobID, rec.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.RecordID, err)
	}

	if len(fields) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO field_sentiments
			 (record_id, field_type, comment_number, text,
			  sentiment, confidence, author_id, commented_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(record_id, field_type, comment_number) DO UPDATE SET
			   text = excluded.text,
			   sentiment = excluded.sentiment,
			   confidence = excluded.confidence,
			   author_id = excluded.author_id,
			   commented_at = excluded.commented_at`)
		if err != nil {
			return fmt.Errorf("prepare sentiment stmt: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, f := range fields {
			_, err := stmt.ExecContext(ctx,
				rec.RecordID, f.FieldType, f.CommentNumber, f.Text,
				f.Sentiment, f.Confidence, f.AuthorID, f.CommentedAt)
			if err != nil {
				return fmt.Errorf("upsert sentiment %s/%s: %w", rec.RecordID, f.FieldType, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM record_entities WHERE record_id = ?`, rec.RecordID); err != nil {
		return fmt.Errorf("clear entities for %s: %w", rec.RecordID, err)
	}
	for _, e := range entities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_entities (record_id, entity_text, entity_label, start_pos, end_pos)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.RecordID, e.Text, e.Label, e.Start, e.End); err != nil {
			return fmt.Errorf("insert entity for %s: %w", rec.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record tx: %w", err)
	}
	return nil
}

// GetRecord retrieves one record, or nil when absent.
func GetRecord(ctx context.Context, db *sql.DB, recordID string) (*RecordRow, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var rec RecordRow
	var updatedAt string
	err := db.QueryRowContext(ctx,
		`SELECT record_id, summary, description, record_timestamp,
		        overall_sentiment, overall_confidence, sentiment_trend,
		        extra, last_job_id, updated_at
		 FROM records WHERE record_id = ?`, recordID).Scan(
		&rec.RecordID, &rec.Summary, &rec.Description, &rec.RecordTimestamp,
		&rec.OverallSentiment, &rec.OverallConfidence, &rec.SentimentTrend,
		&rec.Extra, &rec.LastJobID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	if ts, perr := time.Parse(time.RFC3339Nano, updatedAt); perr == nil {
		rec.UpdatedAt = ts
	}
	return &rec, nil
}

// CountSentiments returns the number of field_sentiments rows for a record.
func CountSentiments(ctx context.Context, db *sql.DB, recordID string) (int64, error) {
	var n int64
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM field_sentiments WHERE record_id = ?`, recordID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sentiments: %w", err)
	}
	return n, nil
}

// ListEntities returns a record's entities in insertion order.
func ListEntities(ctx context.Context, db *sql.DB, recordID string) ([]EntityRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT entity_text, entity_label, start_pos, end_pos FROM record_entities
		 WHERE record_id = ? ORDER BY rowid`, recordID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []EntityRow
	for rows.Next() {
		var e EntityRow
		if err := rows.Scan(&e.Text, &e.Label, &e.Start, &e.End); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Package analytics feeds the columnar store used for sentiment analytics.
// Writes are eventually consistent with the relational store; the
// synchronizer treats failures here as lag, not as record failures.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/pkg/storesync"
)

const tableName = "record_sentiments"

// Config connects the ClickHouse writer.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// Writer lands per-field sentiment rows in ClickHouse.
type Writer struct {
	conn    driver.Conn
	timeout time.Duration
	logger  *zap.Logger
}

var _ storesync.Sink = (*Writer)(nil)

// New connects and ensures the sentiment table exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Writer, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open analytics store: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping analytics store: %w", err)
	}

	w := &Writer{conn: conn, timeout: cfg.Timeout, logger: logger}
	if err := w.ensureTable(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			record_id String,
			job_id String,
			field_type LowCardinality(String),
			comment_number Int32,
			sentiment LowCardinality(String),
			confidence Float64,
			overall_sentiment LowCardinality(String),
			overall_confidence Float64,
			sentiment_trend LowCardinality(String),
			written_at DateTime
		)
		ENGINE = ReplacingMergeTree(written_at)
		ORDER BY (record_id, field_type, comment_number)`, tableName)

	if err := w.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure analytics table: %w", err)
	}
	return nil
}

func (w *Writer) Name() string { return "analytics" }

// Write appends one batch of field rows for the record. ReplacingMergeTree
// collapses duplicates on the ordering key, so re-ingesting a record
// converges instead of double counting. Each call is bounded by the
// configured timeout so a stalled cluster cannot hold up ingestion.
func (w *Writer) Write(ctx context.Context, jobID string, rec *storesync.EnrichedRecord) error {
	if len(rec.Fields) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", tableName))
	if err != nil {
		return fmt.Errorf("prepare analytics batch: %w", err)
	}

	now := time.Now().UTC()
	for _, f := range rec.Fields {
		err := batch.Append(
			rec.RecordID,
			jobID,
			f.FieldType,
			int32(f.CommentNumber),
			f.Sentiment.Label,
			f.Sentiment.Confidence,
			rec.Rollup.Label,
			rec.Rollup.Confidence,
			rec.Rollup.Trend,
			now,
		)
		if err != nil {
			return fmt.Errorf("append analytics row for %s: %w", rec.RecordID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send analytics batch for %s: %w", rec.RecordID, err)
	}
	return nil
}

// CheckHealth pings the ClickHouse cluster.
func (w *Writer) CheckHealth(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

// Close releases the connection pool.
func (w *Writer) Close() error {
	return w.conn.Close()
}

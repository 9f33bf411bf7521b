package ticketstore

import (
	"context"
	"database/sql"
	"fmt"
)

const SchemaVersion = 1

// Migrate creates (or upgrades) the relational schema in-place.
//
// Tables:
// - ingest_jobs: job lifecycle rows, written only through the job tracker
// - records: one row per source record, upserted on re-ingest
// - field_sentiments: per-field analysis keyed (record_id, field_type, comment_number)
// - record_entities: extracted entities, replaced wholesale per record
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS ingest_jobs (
			job_id TEXT PRIMARY KEY,
			source_kind TEXT NOT NULL,
			origin_label TEXT NOT NULL,
			status TEXT NOT NULL,
			submitted_at TEXT NOT NULL,
			started_at TEXT,
			completed_at TEXT,
			records_total INTEGER,
			records_processed INTEGER NOT NULL DEFAULT 0,
			records_failed INTEGER NOT NULL DEFAULT 0,
			sentiment_records INTEGER NOT NULL DEFAULT 0,
			entity_records INTEGER NOT NULL DEFAULT 0,
			lag_warnings INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_jobs_status ON ingest_jobs(status);`,
		`CREATE INDEX IF NOT EXISTS idx_ingest_jobs_submitted_at ON ingest_jobs(submitted_at);`,

		`CREATE TABLE IF NOT EXISTS records (
			record_id TEXT PRIMARY KEY,
			summary TEXT,
			description TEXT,
			record_timestamp TEXT,
			overall_sentiment TEXT,
			overall_confidence REAL,
			sentiment_trend TEXT,
			extra TEXT,
			last_job_id TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_overall_sentiment ON records(overall_sentiment);`,

		`CREATE TABLE IF NOT EXISTS field_sentiments (
			record_id TEXT NOT NULL,
			field_type TEXT NOT NULL,
			comment_number INTEGER NOT NULL,
			text TEXT,
			sentiment TEXT NOT NULL,
			confidence REAL NOT NULL,
			author_id TEXT,
			commented_at TEXT,
			PRIMARY KEY(record_id, field_type, comment_number),
			FOREIGN KEY(record_id) REFERENCES records(record_id)
		);`,

		`CREATE TABLE IF NOT EXISTS record_entities (
			record_id TEXT NOT NULL,
			entity_text TEXT NOT NULL,
			entity_label TEXT NOT NULL,
			start_pos INTEGER NOT NULL DEFAULT 0,
			end_pos INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY(record_id) REFERENCES records(record_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_record_entities_record_id ON record_entities(record_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

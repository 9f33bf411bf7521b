// Package jobtracker owns the ingest_jobs table: the durable job FSM plus a
// short-TTL cache serving the poll-heavy status endpoint.
package jobtracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// ErrNotFound indicates the job id does not exist.
var ErrNotFound = errors.New("job not found")

// ErrIllegalTransition indicates a status change the FSM forbids. It is a
// programming fault in the caller, not a data condition; workers treat it as
// fatal.
var ErrIllegalTransition = errors.New("illegal job status transition")

const cacheTTL = 30 * time.Second

// Tracker is the only writer of ingest_jobs rows. Safe for concurrent use.
type Tracker struct {
	db     *sql.DB
	cache  *gocache.Cache
	logger *zap.Logger
}

// New builds a Tracker over an already-migrated relational store.
func New(db *sql.DB, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		db:     db,
		cache:  gocache.New(cacheTTL, time.Minute),
		logger: logger,
	}
}

// Create durably records a new job in the queued state. This must be the
// first durable action for any submission: a crash after Create leaves a
// queued row, never a lost job.
func (t *Tracker) Create(ctx context.Context, job *Job) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if job == nil || strings.TrimSpace(job.JobID) == "" {
		return fmt.Errorf("job id is required")
	}

	job.Status = StatusQueued
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}

	_, err := t.db.ExecContext(ctx,
		`INSERT INTO ingest_jobs
		 (job_id, source_kind, origin_label, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		job.JobID, job.SourceKind, job.OriginLabel, string(job.Status),
		job.SubmittedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}

	t.cache.Set(job.JobID, cloneJob(job), cacheTTL)
	return nil
}

// MarkRunning transitions queued -> running.
func (t *Tracker) MarkRunning(ctx context.Context, jobID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := t.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status = ?, started_at = ?
		 WHERE job_id = ? AND status = ?`,
		string(StatusRunning), time.Now().UTC().Format(time.RFC3339Nano),
		jobID, string(StatusQueued))
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return t.transitionFault(ctx, jobID, StatusRunning)
	}

	return t.refreshCache(ctx, jobID)
}

// IncrementProgress applies a chunk's counter delta atomically in SQL.
// A non-negative total fixes records_total the first time it is known;
// pass a negative total when the size is still unknown.
func (t *Tracker) IncrementProgress(ctx context.Context, jobID string, delta Counters, total int64) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var totalArg any
	if total >= 0 {
		totalArg = total
	}

	res, err := t.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET
		   records_processed = records_processed + ?,
		   records_failed = records_failed + ?,
		   sentiment_records = sentiment_records + ?,
		   entity_records = entity_records + ?,
		   lag_warnings = lag_warnings + ?,
		   records_total = COALESCE(records_total, ?)
		 WHERE job_id = ?`,
		delta.Processed, delta.Failed, delta.Sentiments, delta.Entities,
		delta.Lag, totalArg, jobID)
	if err != nil {
		return fmt.Errorf("increment progress for %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return t.refreshCache(ctx, jobID)
}

// MarkTerminal transitions running -> completed | failed. A failed outcome
// requires a non-empty error; a completed outcome forces it empty.
func (t *Tracker) MarkTerminal(ctx context.Context, jobID string, outcome Status, jobErr string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !outcome.Terminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrIllegalTransition, outcome)
	}
	if outcome == StatusFailed && strings.TrimSpace(jobErr) == "" {
		return fmt.Errorf("failed job %s requires an error", jobID)
	}
	if outcome == StatusCompleted {
		jobErr = ""
	}

	res, err := t.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status = ?, completed_at = ?, error = ?
		 WHERE job_id = ? AND status = ?`,
		string(outcome), time.Now().UTC().Format(time.RFC3339Nano), jobErr,
		jobID, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("mark job %s %s: %w", jobID, outcome, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return t.transitionFault(ctx, jobID, outcome)
	}

	return t.refreshCache(ctx, jobID)
}

// Get returns the job, preferring the cache. A cache miss (or any cache
// inconsistency) falls through to the durable row.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if v, ok := t.cache.Get(jobID); ok {
		if job, ok := v.(*Job); ok {
			return cloneJob(job), nil
		}
	}

	job, err := t.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	t.cache.Set(jobID, cloneJob(job), cacheTTL)
	return job, nil
}

// List returns jobs newest first, optionally filtered by status. Limit
// defaults to 50 and is capped at 500.
func (t *Tracker) List(ctx context.Context, status Status, limit, offset int) ([]Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + jobColumns + ` FROM ingest_jobs`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY submitted_at DESC, job_id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

const jobColumns = `job_id, source_kind, origin_label, status, submitted_at,
	started_at, completed_at, records_total, records_processed, records_failed,
	sentiment_records, entity_records, lag_warnings, COALESCE(error, '')`

func (t *Tracker) load(ctx context.Context, jobID string) (*Job, error) {
	row := t.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return job, err
}

func (t *Tracker) refreshCache(ctx context.Context, jobID string) error {
	job, err := t.load(ctx, jobID)
	if err != nil {
		// The durable write already succeeded; a stale cache entry only
		// delays visibility by the TTL.
		t.cache.Delete(jobID)
		t.logger.Warn("job cache refresh failed",
			zap.String("job_id", jobID), zap.Error(err))
		return nil
	}
	t.cache.Set(jobID, job, cacheTTL)
	return nil
}

// transitionFault distinguishes a missing job from an FSM violation after an
// UPDATE matched no rows.
func (t *Tracker) transitionFault(ctx context.Context, jobID string, wanted Status) error {
	job, err := t.load(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s for job %s", ErrIllegalTransition, job.Status, wanted, jobID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*Job, error) {
	var job Job
	var status, submittedAt string
	var startedAt, completedAt sql.NullString
	var total sql.NullInt64

	err := r.Scan(&job.JobID, &job.SourceKind, &job.OriginLabel, &status,
		&submittedAt, &startedAt, &completedAt, &total,
		&job.RecordsProcessed, &job.RecordsFailed,
		&job.SentimentRecords, &job.EntityRecords, &job.LagWarnings,
		&job.Error)
	if err != nil {
		return nil, err
	}

	job.Status = Status(status)
	if ts, err := time.Parse(time.RFC3339Nano, submittedAt); err == nil {
		job.SubmittedAt = ts
	}
	if startedAt.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, startedAt.String); err == nil {
			job.StartedAt = &ts
		}
	}
	if completedAt.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			job.CompletedAt = &ts
		}
	}
	if total.Valid {
		job.RecordsTotal = &total.Int64
	}
	return &job, nil
}

func cloneJob(j *Job) *Job {
	out := *j
	if j.StartedAt != nil {
		ts := *j.StartedAt
		out.StartedAt = &ts
	}
	if j.CompletedAt != nil {
		ts := *j.CompletedAt
		out.CompletedAt = &ts
	}
	if j.RecordsTotal != nil {
		n := *j.RecordsTotal
		out.RecordsTotal = &n
	}
	return &out
}

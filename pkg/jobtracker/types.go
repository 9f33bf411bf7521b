package jobtracker

import "time"

// Status is the lifecycle state of an ingestion job.
//
// NOTE: These values are persisted in ingest_jobs and are part of the stable
// API contract. The only legal transitions are
// queued -> running -> completed | failed.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one row in ingest_jobs.
type Job struct {
	JobID       string     `json:"job_id"`
	SourceKind  string     `json:"source_kind"`
	OriginLabel string     `json:"origin_label"`
	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// RecordsTotal is nil until the reader learns the size of the source.
	RecordsTotal     *int64 `json:"records_total,omitempty"`
	RecordsProcessed int64  `json:"records_processed"`
	RecordsFailed    int64  `json:"records_failed"`
	SentimentRecords int64  `json:"sentiment_records"`
	EntityRecords    int64  `json:"entity_records"`
	LagWarnings      int64  `json:"lag_warnings"`

	// Error is non-empty exactly when Status is failed.
	Error string `json:"error,omitempty"`
}

// Counters is a progress delta applied atomically per chunk.
type Counters struct {
	Processed  int64
	Failed     int64
	Sentiments int64
	Entities   int64
	Lag        int64
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/goconflux/internal/errors"
	"github.com/3leaps/goconflux/pkg/dispatch"
	"github.com/3leaps/goconflux/pkg/jobtracker"
	"github.com/3leaps/goconflux/pkg/reader"
	"github.com/3leaps/goconflux/pkg/source"
)

// maxUploadBytes bounds a single CSV upload.
const maxUploadBytes = 256 << 20

// Submitter is the slice of the dispatcher the API needs.
type Submitter interface {
	Submit(ctx context.Context, sub dispatch.Submission) (string, error)
}

// IngestAPI serves submission and job-status endpoints.
type IngestAPI struct {
	submitter      Submitter
	tracker        *jobtracker.Tracker
	uploadDir      string
	maxJSONRecords int
	s3             source.S3Options
	logger         *zap.Logger
}

// NewIngestAPI wires the API handlers.
func NewIngestAPI(submitter Submitter, tracker *jobtracker.Tracker, uploadDir string, maxJSONRecords int, s3 source.S3Options, logger *zap.Logger) *IngestAPI {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	if maxJSONRecords <= 0 {
		maxJSONRecords = reader.DefaultMaxJSONRecords
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestAPI{
		submitter:      submitter,
		tracker:        tracker,
		uploadDir:      uploadDir,
		maxJSONRecords: maxJSONRecords,
		s3:             s3,
		logger:         logger,
	}
}

// Routes registers the API under the given router.
func (a *IngestAPI) Routes(r chi.Router) {
	r.Post("/ingest/csv", a.IngestCSV)
	r.Post("/ingest/json", a.IngestJSON)
	r.Post("/ingest/parquet", a.IngestParquet)
	r.Get("/jobs/{job_id}", a.GetJob)
	r.Get("/jobs", a.ListJobs)
}

type submitResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// IngestCSV accepts a multipart upload (field "file", optional "label") and
// submits it as a csv_upload job.
func (a *IngestAPI) IngestCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondWithError(w, r, apperrors.InvalidArgument("parse multipart form", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondWithError(w, r, apperrors.InvalidArgument("multipart field \"file\" is required", nil))
		return
	}
	defer func() { _ = file.Close() }()

	label := strings.TrimSpace(r.FormValue("label"))
	if label == "" {
		label = header.Filename
	}

	path, err := a.spoolUpload(file, "upload-*.csv")
	if err != nil {
		respondWithError(w, r, apperrors.Internal("internal error", err))
		return
	}

	a.submit(w, r, reader.KindCSV, path, label)
}

type jsonBatchRequest struct {
	Label   string            `json:"label"`
	Records []json.RawMessage `json:"records"`
}

// IngestJSON accepts {"label": ..., "records": [...]} and submits it as a
// json_batch job. Batches above the record cap are rejected outright.
func (a *IngestAPI) IngestJSON(w http.ResponseWriter, r *http.Request) {
	var req jsonBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.InvalidArgument("parse json batch", err))
		return
	}
	if len(req.Records) == 0 {
		respondWithError(w, r, apperrors.InvalidArgument("records must not be empty", nil))
		return
	}
	if len(req.Records) > a.maxJSONRecords {
		respondWithError(w, r, apperrors.PayloadTooLarge(
			fmt.Sprintf("json batch has %d records, limit is %d", len(req.Records), a.maxJSONRecords)))
		return
	}

	body, err := json.Marshal(req.Records)
	if err != nil {
		respondWithError(w, r, apperrors.Internal("respool json batch", err))
		return
	}
	path, err := a.spoolUpload(strings.NewReader(string(body)), "batch-*.json")
	if err != nil {
		respondWithError(w, r, apperrors.Internal("internal error", err))
		return
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = fmt.Sprintf("json batch (%d records)", len(req.Records))
	}
	a.submit(w, r, reader.KindJSONBatch, path, label)
}

type parquetRequest struct {
	URI   string `json:"uri"`
	Label string `json:"label"`
}

// IngestParquet accepts {"uri": ..., "label": ...} referencing a local path
// or s3:// object and submits it as a columnar_source job.
func (a *IngestAPI) IngestParquet(w http.ResponseWriter, r *http.Request) {
	var req parquetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, r, apperrors.InvalidArgument("parse request", err))
		return
	}
	if strings.TrimSpace(req.URI) == "" {
		respondWithError(w, r, apperrors.InvalidArgument("uri is required", nil))
		return
	}

	src, err := source.Resolve(r.Context(), req.URI, source.Options{S3: a.s3})
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			respondWithError(w, r, apperrors.NotFound(fmt.Sprintf("source %s", req.URI)))
			return
		}
		respondWithError(w, r, apperrors.InvalidArgument("resolve source", err))
		return
	}

	label := strings.TrimSpace(req.Label)
	if label == "" {
		label = src.Label()
	}
	a.submitSource(w, r, reader.KindColumnar, src, label)
}

// GetJob serves the status of one job.
func (a *IngestAPI) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := a.tracker.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobtracker.ErrNotFound) {
			respondWithError(w, r, apperrors.NotFound(fmt.Sprintf("job %s", jobID)))
			return
		}
		respondWithError(w, r, apperrors.Internal("internal error", err))
		return
	}

	writeJSON(w, http.StatusOK, job)
}

type jobListResponse struct {
	Jobs   []jobtracker.Job `json:"jobs"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// ListJobs serves a paginated, optionally status-filtered job list, newest
// first.
func (a *IngestAPI) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := jobtracker.Status(q.Get("status"))
	switch status {
	case "", jobtracker.StatusQueued, jobtracker.StatusRunning,
		jobtracker.StatusCompleted, jobtracker.StatusFailed:
	default:
		respondWithError(w, r, apperrors.InvalidArgument(fmt.Sprintf("unknown status %q", status), nil))
		return
	}

	limit, err := parseIntParam(q.Get("limit"), 50)
	if err != nil {
		respondWithError(w, r, apperrors.InvalidArgument("limit must be an integer", err))
		return
	}
	offset, err := parseIntParam(q.Get("offset"), 0)
	if err != nil {
		respondWithError(w, r, apperrors.InvalidArgument("offset must be an integer", err))
		return
	}

	jobs, err := a.tracker.List(r.Context(), status, limit, offset)
	if err != nil {
		respondWithError(w, r, apperrors.Internal("internal error", err))
		return
	}
	if jobs == nil {
		jobs = []jobtracker.Job{}
	}

	writeJSON(w, http.StatusOK, jobListResponse{Jobs: jobs, Limit: limit, Offset: offset})
}

func (a *IngestAPI) submit(w http.ResponseWriter, r *http.Request, kind reader.Kind, path, label string) {
	src, err := source.NewFileSource(path)
	if err != nil {
		respondWithError(w, r, apperrors.Internal("internal error", err))
		return
	}
	a.submitSource(w, r, kind, src, label)
}

func (a *IngestAPI) submitSource(w http.ResponseWriter, r *http.Request, kind reader.Kind, src source.Source, label string) {
	jobID, err := a.submitter.Submit(r.Context(), dispatch.Submission{
		Kind:   kind,
		Source: src,
		Label:  label,
	})
	if err != nil {
		respondWithError(w, r, apperrors.Internal("internal error", err))
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:     jobID,
		StatusURL: "/api/jobs/" + jobID,
	})
}

func (a *IngestAPI) spoolUpload(src io.Reader, pattern string) (string, error) {
	if err := os.MkdirAll(a.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	f, err := os.CreateTemp(a.uploadDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	_, err = io.Copy(f, src)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}
	return filepath.Clean(f.Name()), nil
}

func parseIntParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

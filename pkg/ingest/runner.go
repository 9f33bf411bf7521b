// Package ingest drives one submission end to end: read, map, enrich,
// persist, and report progress until the job reaches a terminal state.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/goconflux/pkg/enrich"
	"github.com/3leaps/goconflux/pkg/jobtracker"
	"github.com/3leaps/goconflux/pkg/mapping"
	"github.com/3leaps/goconflux/pkg/reader"
	"github.com/3leaps/goconflux/pkg/source"
	"github.com/3leaps/goconflux/pkg/storesync"
	"github.com/3leaps/goconflux/pkg/ticketstore"
)

// Request is one job handed to a worker.
type Request struct {
	JobID  string
	Kind   reader.Kind
	Source source.Source
	Label  string
}

// Enricher is the slice of the ML client the runner needs.
type Enricher interface {
	AnalyzeSentiment(ctx context.Context, text string) (enrich.Sentiment, error)
	ExtractEntities(ctx context.Context, text string) ([]enrich.Entity, error)
}

// Runner executes jobs. One Runner is shared by all workers.
type Runner struct {
	tracker    *jobtracker.Tracker
	sync       *storesync.Synchronizer
	ml         Enricher
	readerOpts reader.Options
	logger     *zap.Logger
}

// NewRunner wires the pipeline stages together.
func NewRunner(tracker *jobtracker.Tracker, sync *storesync.Synchronizer, ml Enricher, readerOpts reader.Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		tracker:    tracker,
		sync:       sync,
		ml:         ml,
		readerOpts: readerOpts,
		logger:     logger,
	}
}

// Run drives one job to a terminal state. The returned error is non-nil only
// for faults that the caller must treat as fatal to the worker itself
// (illegal FSM transitions); job-level failures are absorbed into the job's
// terminal state.
func (r *Runner) Run(ctx context.Context, req Request) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := r.logger.With(zap.String("job_id", req.JobID), zap.String("source", req.Label))

	if err := r.tracker.MarkRunning(ctx, req.JobID); err != nil {
		if errors.Is(err, jobtracker.ErrIllegalTransition) {
			return err
		}
		return r.fail(ctx, req.JobID, log, fmt.Errorf("start job: %w", err))
	}

	it, err := reader.Open(ctx, req.Source, req.Kind, r.readerOpts)
	if err != nil {
		return r.fail(ctx, req.JobID, log, fmt.Errorf("open source: %w", err))
	}
	defer func() { _ = it.Close() }()

	m, err := mapping.Resolve(it.Header())
	if err != nil {
		return r.fail(ctx, req.JobID, log, fmt.Errorf("resolve columns: %w", err))
	}

	projection := append([]string{}, m.TextColumns()...)
	if m.RecordID != "" {
		projection = append(projection, m.RecordID)
	}
	if m.Timestamp != "" {
		projection = append(projection, m.Timestamp)
	}
	it.Project(projection)

	total := it.Total()
	log.Info("job started",
		zap.String("kind", string(req.Kind)),
		zap.Int64("records_total", total))

	var processed, failed, rowNum int64
	for {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, req.JobID, log, errors.New("interrupted"))
		}

		chunk, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return r.fail(ctx, req.JobID, log, errors.New("interrupted"))
			}
			return r.fail(ctx, req.JobID, log, fmt.Errorf("read records: %w", err))
		}

		delta := jobtracker.Counters{Failed: int64(chunk.Skipped)}
		for _, raw := range chunk.Records {
			rowNum++
			rec, counters := r.enrichRecord(ctx, m, raw, fmt.Sprintf("%s-%d", req.JobID, rowNum))

			lag, err := r.sync.Persist(ctx, req.JobID, rec)
			if err != nil {
				log.Warn("record persist failed",
					zap.String("record_id", rec.RecordID), zap.Error(err))
				delta.Failed++
				continue
			}
			delta.Processed++
			delta.Lag += int64(lag)
			delta.Sentiments += counters.Sentiments
			delta.Entities += counters.Entities
		}

		if err := r.tracker.IncrementProgress(ctx, req.JobID, delta, total); err != nil {
			if ctx.Err() != nil {
				return r.fail(ctx, req.JobID, log, errors.New("interrupted"))
			}
			return r.fail(ctx, req.JobID, log, fmt.Errorf("record progress: %w", err))
		}
		processed += delta.Processed
		failed += delta.Failed
	}

	// Streams without a pre-known total get it fixed at EOF.
	if total < 0 {
		if err := r.tracker.IncrementProgress(ctx, req.JobID, jobtracker.Counters{}, processed+failed); err != nil {
			log.Warn("fixing records_total failed", zap.Error(err))
		}
	}

	if err := r.tracker.MarkTerminal(context.WithoutCancel(ctx), req.JobID, jobtracker.StatusCompleted, ""); err != nil {
		if errors.Is(err, jobtracker.ErrIllegalTransition) {
			return err
		}
		log.Error("completing job failed", zap.Error(err))
		return nil
	}
	log.Info("job completed", zap.Int64("records_processed", processed))
	return nil
}

// fail marks the job failed with a structured error. The terminal write uses
// an uncancelable context so shutdown still lands it.
func (r *Runner) fail(ctx context.Context, jobID string, log *zap.Logger, jobErr error) error {
	log.Warn("job failed", zap.Error(jobErr))
	err := r.tracker.MarkTerminal(context.WithoutCancel(ctx), jobID, jobtracker.StatusFailed, jobErr.Error())
	if errors.Is(err, jobtracker.ErrIllegalTransition) {
		return err
	}
	if err != nil {
		log.Error("failing job did not persist", zap.Error(err))
	}
	return nil
}

// enrichRecord builds the EnrichedRecord for one raw row. Rows without an
// id-like cell get the fallback id, keyed to the job and row position, so a
// valid mapping without an id column still lands every record. Enrichment
// exhaustion never fails the row: the field stays unscored with the neutral
// sentinel.
func (r *Runner) enrichRecord(ctx context.Context, m *mapping.ColumnMapping, raw reader.RawRecord, fallbackID string) (*storesync.EnrichedRecord, jobtracker.Counters) {
	recordID := strings.TrimSpace(raw.Fields[m.RecordID])
	if recordID == "" {
		recordID = fallbackID
	}

	rec := &storesync.EnrichedRecord{
		RecordID:    recordID,
		Summary:     raw.Fields[m.Summary],
		Description: raw.Fields[m.Description],
		Timestamp:   raw.Fields[m.Timestamp],
	}
	for _, col := range m.Extra {
		if v, ok := raw.Fields[col]; ok {
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[col] = v
		}
	}

	var counters jobtracker.Counters
	var timeline []enrich.FieldSentiment

	addField := func(fieldType string, commentNumber int, text, authorID string, commentedAt enrich.Comment) {
		if strings.TrimSpace(text) == "" {
			return
		}

		f := storesync.FieldResult{
			FieldType:     fieldType,
			CommentNumber: commentNumber,
			Text:          text,
			AuthorID:      authorID,
			CommentedAt:   commentedAt.Timestamp,
		}

		s, err := r.ml.AnalyzeSentiment(ctx, text)
		if err != nil {
			f.Sentiment = enrich.Neutral()
		} else {
			f.Sentiment = s
			counters.Sentiments++
		}

		if entities, err := r.ml.ExtractEntities(ctx, text); err == nil && len(entities) > 0 {
			f.Entities = entities
			counters.Entities += int64(len(entities))
		}

		rec.Fields = append(rec.Fields, f)
		timeline = append(timeline, enrich.FieldSentiment{
			Label:         f.Sentiment.Label,
			Confidence:    f.Sentiment.Confidence,
			CommentNumber: commentNumber,
		})
	}

	addField(ticketstore.FieldSummary, 0, rec.Summary, "", enrich.Comment{})
	addField(ticketstore.FieldDescription, 0, rec.Description, "", enrich.Comment{})
	for i, col := range m.Comments {
		rawCell, ok := raw.Fields[col]
		if !ok || strings.TrimSpace(rawCell) == "" {
			continue
		}
		c := enrich.ParseComment(rawCell)
		addField(ticketstore.FieldComment, i+1, c.Text, c.AuthorID, c)
	}

	rec.Rollup = enrich.Aggregate(timeline)
	return rec, counters
}

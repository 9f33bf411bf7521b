// Package dispatch owns the worker pool that executes ingestion jobs.
//
// A submission is durably recorded as queued before anything else happens;
// only then is it handed to the pool. Saturation leaves jobs queued, it
// never rejects them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/pkg/ingest"
	"github.com/3leaps/goconflux/pkg/jobtracker"
	"github.com/3leaps/goconflux/pkg/reader"
	"github.com/3leaps/goconflux/pkg/source"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 4

// DefaultQueueDepth is the buffered queue size between Submit and the pool.
const DefaultQueueDepth = 64

// ErrShuttingDown is returned by Submit once shutdown has begun.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Submission describes one requested ingestion.
type Submission struct {
	Kind   reader.Kind
	Source source.Source
	Label  string
}

// Dispatcher runs jobs on a fixed worker pool.
type Dispatcher struct {
	tracker *jobtracker.Tracker
	runner  *ingest.Runner
	logger  *zap.Logger

	queue   chan ingest.Request
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending sync.WaitGroup
	closed  atomic.Bool
}

// New starts the pool. Workers and queueDepth fall back to defaults when
// non-positive.
func New(tracker *jobtracker.Tracker, runner *ingest.Runner, workers, queueDepth int, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		tracker: tracker,
		runner:  runner,
		logger:  logger,
		queue:   make(chan ingest.Request, queueDepth),
		runCtx:  ctx,
		cancel:  cancel,
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker(i)
	}
	return d
}

// Submit durably creates the job in the queued state and enqueues it.
// The job id is returned as soon as the row is committed; a full queue only
// delays pickup, never the response.
func (d *Dispatcher) Submit(ctx context.Context, sub Submission) (string, error) {
	if d.closed.Load() {
		return "", ErrShuttingDown
	}
	if sub.Source == nil {
		return "", errors.New("submission requires a source")
	}

	jobID := uuid.NewString()
	job := &jobtracker.Job{
		JobID:       jobID,
		SourceKind:  string(sub.Kind),
		OriginLabel: sub.Label,
	}
	if err := d.tracker.Create(ctx, job); err != nil {
		return "", fmt.Errorf("record submission: %w", err)
	}

	req := ingest.Request{JobID: jobID, Kind: sub.Kind, Source: sub.Source, Label: sub.Label}
	select {
	case d.queue <- req:
	default:
		// Pool saturated. The job is already durable, so hand the enqueue
		// to a goroutine and return; the row stays queued until pickup.
		d.pending.Add(1)
		go func() {
			defer d.pending.Done()
			select {
			case d.queue <- req:
			case <-d.runCtx.Done():
			}
		}()
	}

	d.logger.Info("job submitted",
		zap.String("job_id", jobID),
		zap.String("kind", string(sub.Kind)),
		zap.String("source", sub.Label))
	return jobID, nil
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.runCtx.Done():
			return
		case req := <-d.queue:
			if err := d.runner.Run(d.runCtx, req); err != nil {
				// Only FSM faults surface here; they mean a bug, so make
				// them loud but keep the worker alive.
				d.logger.Error("worker hit a fatal job fault",
					zap.Int("worker", id),
					zap.String("job_id", req.JobID),
					zap.Error(err))
			}
			_ = req.Source.Close()
		}
	}
}

// Shutdown stops accepting submissions, interrupts running jobs at their
// next chunk boundary, and waits for the workers to exit. Jobs still queued
// stay queued in the store.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closed.Store(true)
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}

package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/3leaps/goconflux/pkg/enrich"
	"github.com/3leaps/goconflux/pkg/ingest"
	"github.com/3leaps/goconflux/pkg/jobtracker"
	"github.com/3leaps/goconflux/pkg/reader"
	"github.com/3leaps/goconflux/pkg/source"
	"github.com/3leaps/goconflux/pkg/storesync"
	"github.com/3leaps/goconflux/pkg/ticketstore"
)

// gateML blocks sentiment calls until released, to hold workers busy.
type gateML struct {
	mu       sync.Mutex
	gate     chan struct{}
	started  chan string
	runCount map[string]int
}

func newGateML() *gateML {
	return &gateML{
		gate:     make(chan struct{}),
		started:  make(chan string, 64),
		runCount: make(map[string]int),
	}
}

func (g *gateML) AnalyzeSentiment(ctx context.Context, text string) (enrich.Sentiment, error) {
	g.mu.Lock()
	g.runCount[text]++
	g.mu.Unlock()
	select {
	case g.started <- text:
	default:
	}

	select {
	case <-g.gate:
	case <-ctx.Done():
		return enrich.Neutral(), ctx.Err()
	}
	return enrich.Sentiment{Label: enrich.LabelNeutral, Confidence: 0.5}, nil
}

func (g *gateML) ExtractEntities(ctx context.Context, text string) ([]enrich.Entity, error) {
	return nil, nil
}

type fixture struct {
	tracker    *jobtracker.Tracker
	dispatcher *Dispatcher
	ml         *gateML
}

func newFixture(t *testing.T, workers, queueDepth int) *fixture {
	t.Helper()
	db, err := ticketstore.Open(context.Background(), ticketstore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ticketstore.Migrate(context.Background(), db))

	tracker := jobtracker.New(db, zap.NewNop())
	ml := newGateML()
	runner := ingest.NewRunner(tracker, storesync.New(db, nil, zap.NewNop()), ml, reader.Options{ChunkSize: 1}, zap.NewNop())
	d := New(tracker, runner, workers, queueDepth, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Shutdown(ctx)
	})
	return &fixture{tracker: tracker, dispatcher: d, ml: ml}
}

func csvSource(t *testing.T, rows string) source.Source {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("Issue key,Summary\n"+rows), 0o644))
	src, err := source.NewFileSource(path)
	require.NoError(t, err)
	return src
}

func waitForStatus(t *testing.T, tr *jobtracker.Tracker, jobID string, want jobtracker.Status) *jobtracker.Job {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		job, err := tr.Get(context.Background(), jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s stuck in %s, wanted %s", jobID, job.Status, want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	f := newFixture(t, 2, 4)
	close(f.ml.gate)

	jobID, err := f.dispatcher.Submit(context.Background(), Submission{
		Kind:   reader.KindCSV,
		Source: csvSource(t, "TCK-1,works\n"),
		Label:  "in.csv",
	})
	require.NoError(t, err)

	job := waitForStatus(t, f.tracker, jobID, jobtracker.StatusCompleted)
	assert.Equal(t, int64(1), job.RecordsProcessed)
}

func TestSaturationLeavesJobsQueued(t *testing.T) {
	f := newFixture(t, 1, 1)

	// First job occupies the only worker (blocked on the ML gate).
	busyID, err := f.dispatcher.Submit(context.Background(), Submission{
		Kind: reader.KindCSV, Source: csvSource(t, "TCK-0,busy\n"), Label: "busy.csv",
	})
	require.NoError(t, err)
	<-f.ml.started

	var waiting []string
	for i := 0; i < 5; i++ {
		id, err := f.dispatcher.Submit(context.Background(), Submission{
			Kind: reader.KindCSV, Source: csvSource(t, "TCK-1,later\n"), Label: "later.csv",
		})
		require.NoError(t, err, "saturation must never reject a submission")
		waiting = append(waiting, id)
	}

	for _, id := range waiting {
		job, err := f.tracker.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, jobtracker.StatusQueued, job.Status)
	}

	close(f.ml.gate)
	waitForStatus(t, f.tracker, busyID, jobtracker.StatusCompleted)
	for _, id := range waiting {
		waitForStatus(t, f.tracker, id, jobtracker.StatusCompleted)
	}
}

func TestEachJobRunsOnce(t *testing.T) {
	f := newFixture(t, 4, 8)
	close(f.ml.gate)

	var ids []string
	for i := 0; i < 8; i++ {
		id, err := f.dispatcher.Submit(context.Background(), Submission{
			Kind: reader.KindCSV, Source: csvSource(t, "TCK-1,once\n"), Label: "once.csv",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitForStatus(t, f.tracker, id, jobtracker.StatusCompleted)
	}

	// A re-run would hit queued -> running on a terminal row and surface as
	// an illegal transition; completed rows with exactly one processed
	// record show it never happened.
	for _, id := range ids {
		job, err := f.tracker.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), job.RecordsProcessed)
	}
}

func TestShutdownInterruptsRunningJobs(t *testing.T) {
	f := newFixture(t, 1, 4)

	jobID, err := f.dispatcher.Submit(context.Background(), Submission{
		Kind: reader.KindCSV, Source: csvSource(t, "TCK-1,long\nTCK-2,job\n"), Label: "long.csv",
	})
	require.NoError(t, err)
	<-f.ml.started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.dispatcher.Shutdown(ctx))

	job, err := f.tracker.Get(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, jobtracker.StatusFailed, job.Status)
	assert.Equal(t, "interrupted", job.Error)

	_, err = f.dispatcher.Submit(context.Background(), Submission{
		Kind: reader.KindCSV, Source: csvSource(t, "TCK-9,late\n"), Label: "late.csv",
	})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

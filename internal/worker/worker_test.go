package worker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/orchestrator"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/internal/pinstore"
)

type permissiveRegistry struct{}

func (permissiveRegistry) ValidatePreconditions(models.PhaseID, models.Job, string) (bool, string) {
	return true, ""
}

type scriptedPhase struct {
	id      models.PhaseID
	succeed bool
}

func (p scriptedPhase) Name() string           { return string(p.id) }
func (p scriptedPhase) ID() models.PhaseID     { return p.id }
func (p scriptedPhase) Timeout() time.Duration { return time.Second }

func (p scriptedPhase) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	if p.succeed {
		return phase.Result{Success: true}
	}
	return phase.Result{Success: false, Err: scriptedErr("scripted failure")}
}

type scriptedErr string

func (e scriptedErr) Error() string { return string(e) }

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
}

func (n *recordingNotifier) NotifyCompleted(ctx context.Context, job models.Job, pin string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, job.JobID)
}

func (n *recordingNotifier) NotifyFailed(ctx context.Context, job models.Job, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, job.JobID)
}

func newTestWorker(t *testing.T, phases PhaseListFunc) (*Worker, *jobstore.Store, *recordingNotifier) {
	t.Helper()
	dir := t.TempDir()
	store, err := jobstore.New(dir)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PINRecord{}))
	pins := pinstore.New(db, 72*time.Hour, 5)

	runner := phase.NewRunner(store, permissiveRegistry{}, dir, 1, time.Millisecond)
	orch := orchestrator.New(runner, store, true)
	notifier := &recordingNotifier{}

	w := New(store, pins, orch, notifier, phases, 72*time.Hour)
	return w, store, notifier
}


func waitForStatus(t *testing.T, store *jobstore.Store, jobID string, want models.JobStatus, timeout time.Duration) models.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := store.Load(jobID)
		require.NoError(t, err)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach status %s in time", jobID, want)
	return models.Job{}
}

func saveQueuedJob(t *testing.T, store *jobstore.Store, jobID string) {
	t.Helper()
	require.NoError(t, store.Save(models.Job{
		JobID:         jobID,
		SchemaVersion: models.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Status:        models.StatusQueued,
		Source:        models.Source{Platform: "youtube", VideoID: "abc", URL: "https://youtu.be/abc"},
		Languages:     models.Languages{Src: "ja", Tgt: "en"},
	}))
}

func TestWorker_SuccessfulJobTransitionsToCompletedWithExpiry(t *testing.T) {
	phases := func(models.Job) []phase.Phase {
		return []phase.Phase{scriptedPhase{id: models.PhaseDownload, succeed: true}}
	}
	w, store, notifier := newTestWorker(t, phases)
	saveQueuedJob(t, store, "job-ok")

	w.Start()
	require.NoError(t, w.Enqueue("job-ok"))
	final := waitForStatus(t, store, "job-ok", models.StatusCompleted, time.Second)
	w.Stop()

	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.Nil(t, final.CurrentPhase)
	require.NotNil(t, final.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(72*time.Hour), *final.ExpiresAt, time.Minute)

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.completed, "job-ok")
}

func TestWorker_FailedJobTransitionsToFailedAndRecordsError(t *testing.T) {
	phases := func(models.Job) []phase.Phase {
		return []phase.Phase{scriptedPhase{id: models.PhaseDownload, succeed: false}}
	}
	w, store, notifier := newTestWorker(t, phases)
	saveQueuedJob(t, store, "job-bad")

	w.Start()
	require.NoError(t, w.Enqueue("job-bad"))
	final := waitForStatus(t, store, "job-bad", models.StatusFailed, time.Second)
	w.Stop()

	assert.Equal(t, models.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "scripted failure", *final.Error, "the runner's errtranslate.Translate pass-through for an unmatched technical error")

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Contains(t, notifier.failed, "job-bad")
}

func TestWorker_ProcessesOneJobAtATime(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	var mu sync.Mutex

	phases := func(models.Job) []phase.Phase {
		return []phase.Phase{trackingPhase{
			before: func() {
				mu.Lock()
				concurrent++
				if concurrent > maxConcurrent {
					maxConcurrent = concurrent
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
			},
			after: func() {
				mu.Lock()
				concurrent--
				mu.Unlock()
			},
		}}
	}

	w, store, _ := newTestWorker(t, phases)
	for _, id := range []string{"job-a", "job-b", "job-c"} {
		saveQueuedJob(t, store, id)
	}

	w.Start()
	require.NoError(t, w.Enqueue("job-a"))
	require.NoError(t, w.Enqueue("job-b"))
	require.NoError(t, w.Enqueue("job-c"))
	waitForStatus(t, store, "job-a", models.StatusCompleted, time.Second)
	waitForStatus(t, store, "job-b", models.StatusCompleted, time.Second)
	waitForStatus(t, store, "job-c", models.StatusCompleted, time.Second)
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), maxConcurrent, "worker concurrency must stay fixed at 1")
}

type trackingPhase struct {
	before, after func()
}

func (trackingPhase) Name() string           { return "tracking" }
func (trackingPhase) ID() models.PhaseID     { return models.PhaseDownload }
func (trackingPhase) Timeout() time.Duration { return time.Second }

func (p trackingPhase) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	p.before()
	defer p.after()
	return phase.Result{Success: true}
}

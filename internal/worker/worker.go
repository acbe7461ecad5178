// Package worker implements the job worker: a single-concurrency,
// prefetch=1 consumer that dequeues one job identifier at a time and
// drives it through the Orchestrator, recording terminal failure and
// notifying on completion or failure. Concurrency is fixed at 1 per
// process; scale-out means more processes, each claiming distinct jobs.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/notify"
	"github.com/talkdub/talkdub/internal/orchestrator"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/internal/pinstore"
	"github.com/talkdub/talkdub/pkg/logger"
)

// perTaskTimeout is the overall wall-clock limit for one job.
const perTaskTimeout = 24 * time.Hour

// PhaseListFunc builds the fixed, ordered phase list for a job. It is a
// function rather than a static slice because several phases (translation,
// finalize, manifest) close over per-worker collaborators (the
// translation pipeline, the data root) that are constructed once at
// startup.
type PhaseListFunc func(job models.Job) []phase.Phase

// Worker consumes job identifiers from an internal channel, one at a time,
// and drives each through the Orchestrator.
type Worker struct {
	Store        *jobstore.Store
	PINStore     *pinstore.Store
	Orchestrator *orchestrator.Orchestrator
	Notifier     notify.Notifier
	Phases       PhaseListFunc

	DeliveryRetention time.Duration

	jobCh  chan string
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	runningID  string
	runningCan context.CancelFunc
}

// New constructs a Worker with a bounded backlog; Enqueue returns an
// error once the backlog is full and the submission handler surfaces that
// as a capacity error.
func New(store *jobstore.Store, pinStore *pinstore.Store, orch *orchestrator.Orchestrator, notifier notify.Notifier, phases PhaseListFunc, deliveryRetention time.Duration) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		Store:             store,
		PINStore:          pinStore,
		Orchestrator:      orch,
		Notifier:          notifier,
		Phases:            phases,
		DeliveryRetention: deliveryRetention,
		jobCh:             make(chan string, 256),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// Start begins the single consumer goroutine. Concurrency is fixed at 1 by
// construction: exactly one goroutine reads jobCh.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals shutdown and waits for the current job (if any) to observe
// cancellation and return.
func (w *Worker) Stop() {
	w.cancel()
	close(w.jobCh)
	w.wg.Wait()
}

// Enqueue adds a job identifier to the backlog. Returns an error if the
// worker is shutting down or the backlog is full.
func (w *Worker) Enqueue(jobID string) error {
	if w.ctx.Err() != nil {
		return fmt.Errorf("worker: shutting down")
	}
	select {
	case w.jobCh <- jobID:
		return nil
	case <-w.ctx.Done():
		return fmt.Errorf("worker: shutting down")
	default:
		return fmt.Errorf("worker: queue is full")
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case jobID, ok := <-w.jobCh:
			if !ok {
				return
			}
			w.processOne(jobID)
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Worker) processOne(jobID string) {
	logger.WorkerInfo(0, jobID, "start")

	jobCtx, jobCancel := context.WithTimeout(w.ctx, perTaskTimeout)
	defer jobCancel()

	w.mu.Lock()
	w.runningID = jobID
	w.runningCan = jobCancel
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.runningID = ""
		w.runningCan = nil
		w.mu.Unlock()
	}()

	start := time.Now()

	job, err := w.Store.Load(jobID)
	if err != nil {
		logger.Error("worker: failed to load job", "job_id", jobID, "error", err)
		return
	}

	summary := w.Orchestrator.Run(jobCtx, jobID, w.Phases(job))

	final, err := w.Store.Load(jobID)
	if err != nil {
		logger.Error("worker: failed to reload job after run", "job_id", jobID, "error", err)
		return
	}

	if summary.Failed > 0 {
		w.finishFailed(final, summary)
		return
	}

	w.finishCompleted(final, start)
}

func (w *Worker) finishCompleted(job models.Job, start time.Time) {
	expiresAt := time.Now().UTC().Add(w.DeliveryRetention)
	job.Status = models.StatusCompleted
	job.CurrentPhase = nil
	job.ExpiresAt = &expiresAt

	if err := w.Store.Save(job); err != nil {
		logger.Error("worker: failed to persist completion", "job_id", job.JobID, "error", err)
		return
	}

	pin, err := w.PINStore.Generate(job.JobID)
	if err != nil {
		logger.Error("worker: failed to generate delivery pin", "job_id", job.JobID, "error", err)
	}

	logger.JobCompleted(job.JobID, time.Since(start))

	if w.Notifier != nil {
		w.Notifier.NotifyCompleted(context.Background(), job, pin)
	}
}

func (w *Worker) finishFailed(job models.Job, summary orchestrator.Summary) {
	var technical, friendly string
	for _, r := range summary.Results {
		if !r.Result.Success {
			if r.Result.Err != nil {
				technical = r.Result.Err.Error()
			}
			friendly = r.Result.UserFriendlyError
			break
		}
	}
	if friendly == "" {
		friendly = "processing failed"
	}

	// Failed jobs get an expiry too, so the janitor eventually sweeps
	// them; it additionally holds them for the failed-job retention
	// window before deleting anything.
	expiresAt := time.Now().UTC().Add(w.DeliveryRetention)
	job.Status = models.StatusFailed
	job.CurrentPhase = nil
	job.Error = &friendly
	job.ExpiresAt = &expiresAt

	if err := w.Store.Save(job); err != nil {
		logger.Error("worker: failed to persist failure", "job_id", job.JobID, "error", err)
	}

	logger.JobFailed(job.JobID, time.Duration(summary.TotalDurationSec*float64(time.Second)), fmt.Errorf("%s", technical))

	if w.Notifier != nil {
		w.Notifier.NotifyFailed(context.Background(), job, friendly)
	}
}

// KillJob cancels the context of the currently running job, if jobID
// matches. There is no subprocess handle tracked here (procrunner owns
// process-tree kill against its own context); this only tears down the
// job-level context, which propagates into whatever procrunner.Run call
// is in flight.
func (w *Worker) KillJob(jobID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.runningID != jobID || w.runningCan == nil {
		return fmt.Errorf("worker: job %s is not currently running", jobID)
	}
	w.runningCan()
	return nil
}

// Stats reports queue depth and the currently running job id, for the
// operator-facing admin surface.
func (w *Worker) Stats() map[string]any {
	w.mu.Lock()
	running := w.runningID
	w.mu.Unlock()

	return map[string]any{
		"queue_depth":  len(w.jobCh),
		"queue_cap":    cap(w.jobCh),
		"running_job":  running,
		"concurrency":  1,
		"prefetch":     1,
	}
}

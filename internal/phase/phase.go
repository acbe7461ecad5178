// Package phase defines the capability set a phase implementation must
// satisfy, and the shared runner that layers precondition check, bounded
// retry with exponential backoff, structured logging, atomic job-record
// merge, and error translation around each phase.
package phase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/talkdub/talkdub/internal/errtranslate"
	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/pkg/logger"
)

// Result is the outcome of one phase execution. Failure is carried as a
// value (Success=false plus Err/UserFriendlyError), never as a panic.
type Result struct {
	Success           bool
	OutputFiles       map[string]string
	Metadata          map[string]any
	Err               error
	UserFriendlyError string
	DurationSec       float64
}

// Phase is the capability set a phase implementation must satisfy.
type Phase interface {
	Name() string
	ID() models.PhaseID
	Timeout() time.Duration
	Execute(ctx context.Context, job models.Job, scratchDir string) Result
}

// Registry is the subset of the Phase Registry the runner needs: precondition
// validation before attempting execution. Implemented by
// internal/phase/registry.
type Registry interface {
	ValidatePreconditions(id models.PhaseID, job models.Job, scratchDir string) (ok bool, message string)
}

// Runner executes phases around the shared control flow described above.
type Runner struct {
	Store       *jobstore.Store
	Registry    Registry
	DataRoot    string
	MaxRetries  int
	BackoffBase time.Duration
}

// NewRunner constructs a Runner.
func NewRunner(store *jobstore.Store, registry Registry, dataRoot string, maxRetries int, backoffBase time.Duration) *Runner {
	return &Runner{Store: store, Registry: registry, DataRoot: dataRoot, MaxRetries: maxRetries, BackoffBase: backoffBase}
}

// Run executes one phase for jobID under the runner's retry/backoff policy,
// merging metadata into the job record on success and never itself changing
// job status (the Orchestrator owns status transitions).
func (r *Runner) Run(ctx context.Context, jobID string, p Phase) (Result, error) {
	job, err := r.Store.Load(jobID)
	if err != nil {
		return Result{}, fmt.Errorf("phase runner: load job: %w", err)
	}

	scratchDir := job.ScratchDir(r.DataRoot)

	if ok, message := r.Registry.ValidatePreconditions(p.ID(), job, scratchDir); !ok {
		logger.Warn("phase precondition failed", "job_id", jobID, "phase", p.Name(), "reason", message)
		return Result{
			Success:           false,
			Err:               fmt.Errorf("precondition failed: %s", message),
			UserFriendlyError: message,
		}, nil
	}

	maxRetries := r.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var last Result
	start := time.Now()

	for attempt := 0; attempt < maxRetries; attempt++ {
		execCtx, cancel := context.WithTimeout(ctx, p.Timeout())
		logger.PhaseStarted(jobID, p.Name())

		result := p.Execute(execCtx, job, scratchDir)
		cancel()

		if result.Success {
			result.DurationSec = time.Since(start).Seconds()
			if err := r.mergeAndPersist(jobID, result.Metadata); err != nil {
				return result, fmt.Errorf("phase runner: merge metadata: %w", err)
			}
			logger.PhaseCompleted(jobID, p.Name(), time.Since(start))
			return result, nil
		}

		last = result
		logger.Warn("phase attempt failed", "job_id", jobID, "phase", p.Name(), "attempt", attempt+1, "error", result.Err)

		if attempt < maxRetries-1 {
			sleep := r.BackoffBase * time.Duration(1<<uint(attempt))
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				last.Err = ctx.Err()
				goto exhausted
			}
		}
	}

exhausted:
	last.DurationSec = time.Since(start).Seconds()
	technical := "unknown error"
	if last.Err != nil {
		technical = last.Err.Error()
	}
	last.UserFriendlyError = errtranslate.Translate(technical)
	logger.PhaseFailed(jobID, p.Name(), maxRetries, last.Err)
	return last, nil
}

// mergeAndPersist applies deep-merge-one-level (nested maps merge key-wise,
// scalars and arrays are replaced wholesale) between metadata and the
// current job record, then atomically re-saves it.
func (r *Runner) mergeAndPersist(jobID string, metadata map[string]any) error {
	if len(metadata) == 0 {
		return nil
	}

	job, err := r.Store.Load(jobID)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}

	merged := DeepMergeOneLevel(doc, metadata)

	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	var next models.Job
	if err := json.Unmarshal(mergedRaw, &next); err != nil {
		return err
	}

	return r.Store.Save(next)
}

// DeepMergeOneLevel merges src into dst: where both dst[k] and src[k] are
// JSON objects, they are merged key-wise (recursively, since a JSON object
// is itself merged the same way); scalars and arrays in src replace dst's
// value wholesale. dst is not mutated; a new map is returned.
func DeepMergeOneLevel(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		dv, exists := out[k]
		if !exists {
			out[k] = sv
			continue
		}
		dm, dIsMap := dv.(map[string]any)
		sm, sIsMap := sv.(map[string]any)
		if dIsMap && sIsMap {
			out[k] = DeepMergeOneLevel(dm, sm)
			continue
		}
		out[k] = sv
	}
	return out
}

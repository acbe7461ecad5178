// Package orchestrator executes a declared ordered list of phases for a
// single job, updating job status between phases and aggregating a run
// summary. Failure is a value (Result.Success), not a panic; stop-on-error
// simply breaks the loop.
package orchestrator

import (
	"context"
	"time"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/logger"
)

// PhaseResult pairs a phase's identity with its outcome, for the summary.
type PhaseResult struct {
	PhaseID models.PhaseID
	Result  phase.Result
}

// Summary aggregates the outcome of a full orchestrator run.
type Summary struct {
	Total          int
	Succeeded      int
	Failed         int
	TotalDurationSec float64
	SuccessRate    float64
	Results        []PhaseResult
}

// Orchestrator runs an ordered phase list against the Phase Framework's
// shared runner.
type Orchestrator struct {
	Runner      *phase.Runner
	Store       *jobstore.Store
	StopOnError bool
}

// New constructs an Orchestrator. The production pipeline passes
// stopOnError=true; batch re-runs may disable it to collect every failure.
func New(runner *phase.Runner, store *jobstore.Store, stopOnError bool) *Orchestrator {
	return &Orchestrator{Runner: runner, Store: store, StopOnError: stopOnError}
}

// Run executes phases in order for jobID, setting status=PROCESSING and
// current_phase before each one. It stops at the first failure when
// StopOnError is set; otherwise it runs every phase regardless and reports
// the aggregate.
func (o *Orchestrator) Run(ctx context.Context, jobID string, phases []phase.Phase) Summary {
	var results []PhaseResult
	var totalDuration float64

	for _, p := range phases {
		name := p.ID()
		if err := o.Store.UpdateStatus(jobID, models.StatusProcessing, &name, nil); err != nil {
			logger.Error("orchestrator: failed to set current phase", "job_id", jobID, "phase", p.Name(), "error", err)
		}

		logger.Info("orchestrator: executing phase", "job_id", jobID, "phase", p.Name())

		result, err := o.Runner.Run(ctx, jobID, p)
		if err != nil {
			logger.Error("orchestrator: phase runner error", "job_id", jobID, "phase", p.Name(), "error", err)
			result = phase.Result{Success: false, Err: err, UserFriendlyError: err.Error()}
		}

		results = append(results, PhaseResult{PhaseID: p.ID(), Result: result})
		totalDuration += result.DurationSec

		if !result.Success {
			logger.Warn("orchestrator: phase failed", "job_id", jobID, "phase", p.Name())
			if o.StopOnError {
				break
			}
		}
	}

	return summarize(results, totalDuration)
}

func summarize(results []PhaseResult, totalDuration float64) Summary {
	total := len(results)
	var succeeded int
	for _, r := range results {
		if r.Result.Success {
			succeeded++
		}
	}

	rate := 0.0
	if total > 0 {
		rate = float64(succeeded) / float64(total)
	}

	return Summary{
		Total:            total,
		Succeeded:        succeeded,
		Failed:           total - succeeded,
		TotalDurationSec: totalDuration,
		SuccessRate:      rate,
		Results:          results,
	}
}

// ElapsedSince is a small helper the worker uses to stamp job-level
// duration metrics around an orchestrator run.
func ElapsedSince(start time.Time) float64 {
	return time.Since(start).Seconds()
}

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
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
	return phase.Result{Success: false, Err: assertErr("scripted failure")}
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func newTestOrchestrator(t *testing.T, stopOnError bool) (*Orchestrator, *jobstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := jobstore.New(dir)
	require.NoError(t, err)

	job := models.Job{
		JobID:     "job-1",
		Status:    models.StatusQueued,
		Source:    models.Source{Platform: "youtube", VideoID: "abc", URL: "https://youtu.be/abc"},
		Languages: models.Languages{Src: "ja", Tgt: "en"},
	}
	require.NoError(t, store.Save(job))

	runner := phase.NewRunner(store, permissiveRegistry{}, dir, 1, time.Millisecond)
	return New(runner, store, stopOnError), store, job.JobID
}

func TestOrchestrator_AllSucceed_SummaryReflectsFullRun(t *testing.T) {
	o, _, jobID := newTestOrchestrator(t, true)
	phases := []phase.Phase{
		scriptedPhase{id: models.PhaseDownload, succeed: true},
		scriptedPhase{id: models.PhaseNormalize, succeed: true},
		scriptedPhase{id: models.PhaseSeparate, succeed: true},
	}

	summary := o.Run(context.Background(), jobID, phases)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1.0, summary.SuccessRate)
}

func TestOrchestrator_StopOnError_BreaksAtFirstFailure(t *testing.T) {
	o, _, jobID := newTestOrchestrator(t, true)
	phases := []phase.Phase{
		scriptedPhase{id: models.PhaseDownload, succeed: true},
		scriptedPhase{id: models.PhaseNormalize, succeed: false},
		scriptedPhase{id: models.PhaseSeparate, succeed: true},
	}

	summary := o.Run(context.Background(), jobID, phases)

	assert.Equal(t, 2, summary.Total, "the phase after the failure must never run")
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}

func TestOrchestrator_ContinueOnError_RunsEveryPhaseRegardless(t *testing.T) {
	o, _, jobID := newTestOrchestrator(t, false)
	phases := []phase.Phase{
		scriptedPhase{id: models.PhaseDownload, succeed: true},
		scriptedPhase{id: models.PhaseNormalize, succeed: false},
		scriptedPhase{id: models.PhaseSeparate, succeed: true},
	}

	summary := o.Run(context.Background(), jobID, phases)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.InDelta(t, 2.0/3.0, summary.SuccessRate, 0.0001)
}

func TestOrchestrator_SetsCurrentPhaseDuringExecution(t *testing.T) {
	o, store, jobID := newTestOrchestrator(t, true)
	phases := []phase.Phase{
		scriptedPhase{id: models.PhaseDownload, succeed: true},
	}

	o.Run(context.Background(), jobID, phases)

	loaded, err := store.Load(jobID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, loaded.Status, "orchestrator sets PROCESSING but never finalizes status itself")
	require.NotNil(t, loaded.CurrentPhase)
	assert.Equal(t, models.PhaseDownload, *loaded.CurrentPhase)
}

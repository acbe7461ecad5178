package phases

import (
	"context"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/internal/translation"
)

// Translation wraps internal/translation.Pipeline as a phase adapter: it
// hands the job's non-hallucination-flagged segments to the pipeline and
// merges the mutated segment slice back.
type Translation struct {
	Pipeline *translation.Pipeline
	TimeoutOverride  time.Duration
}

func (p Translation) Name() string          { return "translation" }
func (p Translation) ID() models.PhaseID    { return models.PhaseTranslation }
func (p Translation) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return 30 * time.Minute
}

func (p Translation) Execute(ctx context.Context, job models.Job, _ string) phase.Result {
	segments, err := p.Pipeline.Run(ctx, job.JobID, job.Languages.Src, job.Languages.Tgt, job.Segments)
	if err != nil {
		return phase.Result{Err: err}
	}

	return phase.Result{
		Success:  true,
		Metadata: map[string]any{"segments": segments},
	}
}

package phases

import (
	"context"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
)

// Timeline computes each synthesized segment's final placement on the
// output track: the tempo stretch needed to fit the synthesized audio
// within the allowed budget, and the resulting final_start/final_end,
// clamped against the job's pipeline params (max_tempo_stretch,
// max_overlap_sec, max_overlap_ratio) so dubbed speech never drifts
// arbitrarily far from its source timestamp.
type Timeline struct {
	TimeoutOverride time.Duration
}

func (p Timeline) Name() string       { return "timeline" }
func (p Timeline) ID() models.PhaseID { return models.PhaseTimeline }
func (p Timeline) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return 5 * time.Minute
}

func (p Timeline) Execute(_ context.Context, job models.Job, _ string) phase.Result {
	segments := make([]models.Segment, len(job.Segments))
	copy(segments, job.Segments)
	params := job.PipelineParams

	maxStretch := params.MaxTempoStretch
	if maxStretch <= 0 {
		maxStretch = 1.25
	}
	maxOverlapSec := params.MaxOverlapSec
	maxOverlapRatio := params.MaxOverlapRatio

	for i := range segments {
		seg := &segments[i]
		if seg.TTS.Status != models.TTSCompleted {
			continue
		}

		origDuration := seg.End - seg.Start
		ttsDuration := seg.Timing.TTSDuration
		if origDuration <= 0 || ttsDuration <= 0 {
			continue
		}

		atempo := ttsDuration / origDuration
		if atempo < 1/maxStretch {
			atempo = 1 / maxStretch
		}
		if atempo > maxStretch {
			atempo = maxStretch
		}

		finalDuration := ttsDuration / atempo
		finalStart := seg.Start
		finalEnd := finalStart + finalDuration

		var overlapApplied float64
		if i+1 < len(segments) {
			next := segments[i+1]
			if finalEnd > next.Start {
				overlap := finalEnd - next.Start
				budget := maxOverlapSec
				ratioBudget := maxOverlapRatio * (next.End - next.Start)
				if ratioBudget > budget {
					budget = ratioBudget
				}
				if overlap > budget {
					finalEnd = finalStart + (origDuration * maxStretch)
					if finalEnd > next.Start+budget {
						finalEnd = next.Start + budget
					}
					seg.Flags.Shortened = true
					overlap = finalEnd - next.Start
					if overlap < 0 {
						overlap = 0
					}
				}
				overlapApplied = overlap
			}
		}

		seg.Timing.FinalStart = finalStart
		seg.Timing.FinalEnd = finalEnd
		seg.Timing.AtempoApplied = atempo
		seg.Timing.OverlapApplied = overlapApplied
	}

	return phase.Result{
		Success:  true,
		Metadata: map[string]any{"segments": segments},
	}
}

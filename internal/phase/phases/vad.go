package phases

import (
	"context"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

type vadOutput struct {
	Spans []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"spans"`
}

// VAD runs voice-activity detection over vocals.wav and annotates each
// segment with the fraction of its span actually containing detected
// speech, a signal the reference-audio phase weighs when scoring each
// speaker's candidate reference segments.
type VAD struct {
	TimeoutOverride time.Duration
}

func (p VAD) Name() string          { return "vad" }
func (p VAD) ID() models.PhaseID    { return models.PhaseVAD }
func (p VAD) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return defaultTimeout
}

func (p VAD) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	vocals := scratchPath(scratchDir, "vocals.wav")
	outPath := scratchPath(scratchDir, "vad.json")

	_, err := procrunner.Run(ctx, p.Timeout(), binaries.WhisperX(),
		vocals, "--vad_only", "--output_format", "json", "--output_dir", scratchDir,
	)
	if err != nil {
		return phase.Result{Err: err}
	}

	var out vadOutput
	if err := readJSON(outPath, &out); err != nil {
		return phase.Result{Err: err}
	}

	segments := job.Segments
	for i := range segments {
		segments[i].VADSpeechRatio = speechRatio(segments[i].Start, segments[i].End, out.Spans)
	}

	return phase.Result{
		Success:  true,
		Metadata: map[string]any{"segments": segments},
	}
}

func speechRatio(segStart, segEnd float64, spans []struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}) float64 {
	segDur := segEnd - segStart
	if segDur <= 0 {
		return 0
	}
	var covered float64
	for _, span := range spans {
		overlapStart := max(segStart, span.Start)
		overlapEnd := min(segEnd, span.End)
		if overlapEnd > overlapStart {
			covered += overlapEnd - overlapStart
		}
	}
	ratio := covered / segDur
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

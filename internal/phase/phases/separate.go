package phases

import (
	"context"
	"os"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

// Separate splits normalized.wav into vocal and instrumental stems via
// demucs, so translation/TTS work from clean vocals while the instrumental
// stem survives into the mix phase.
type Separate struct {
	TimeoutOverride time.Duration
}

func (p Separate) Name() string          { return "separate" }
func (p Separate) ID() models.PhaseID    { return models.PhaseSeparate }
func (p Separate) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return defaultTimeout
}

func (p Separate) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	src := scratchPath(scratchDir, "normalized.wav")
	outDir := scratchPath(scratchDir, "separated")
	if err := ensureDir(outDir); err != nil {
		return phase.Result{Err: err}
	}

	_, err := procrunner.Run(ctx, p.Timeout(), binaries.Demucs(),
		"--two-stems", "vocals",
		"-o", outDir,
		src,
	)
	if err != nil {
		return phase.Result{Err: err}
	}

	vocals := scratchPath(scratchDir, "vocals.wav")
	instrumental := scratchPath(scratchDir, "instrumental.wav")

	demucsVocals := outDir + "/htdemucs/normalized/vocals.wav"
	demucsOther := outDir + "/htdemucs/normalized/no_vocals.wav"
	if err := os.Rename(demucsVocals, vocals); err != nil {
		return phase.Result{Err: err}
	}
	if err := os.Rename(demucsOther, instrumental); err != nil {
		return phase.Result{Err: err}
	}

	return phase.Result{
		Success:     true,
		OutputFiles: map[string]string{"vocals": vocals, "instrumental": instrumental},
		Metadata:    map[string]any{},
	}
}

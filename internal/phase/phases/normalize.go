package phases

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

// Normalize converts the downloaded source into a single-channel, fixed
// sample-rate WAV via ffmpeg and records its duration probed via ffprobe.
type Normalize struct {
	TimeoutOverride time.Duration
}

func (p Normalize) Name() string          { return "normalize" }
func (p Normalize) ID() models.PhaseID    { return models.PhaseNormalize }
func (p Normalize) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return defaultTimeout
}

func (p Normalize) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	src := scratchPath(scratchDir, "source.mp4")
	dest := scratchPath(scratchDir, "normalized.wav")

	_, err := procrunner.Run(ctx, p.Timeout(), binaries.FFmpeg(),
		"-y", "-i", src,
		"-ac", "1", "-ar", "16000",
		dest,
	)
	if err != nil {
		return phase.Result{Err: err}
	}

	duration, err := probeDuration(ctx, p.Timeout(), dest)
	if err != nil {
		return phase.Result{Err: err}
	}

	return phase.Result{
		Success:     true,
		OutputFiles: map[string]string{"normalized": dest},
		Metadata: map[string]any{
			"media": map[string]any{"duration_sec": duration},
		},
	}
}

type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func probeDuration(ctx context.Context, timeout time.Duration, path string) (float64, error) {
	result, err := procrunner.Run(ctx, timeout, binaries.FFprobe(),
		"-v", "error", "-show_entries", "format=duration",
		"-of", "json", path,
	)
	if err != nil {
		return 0, err
	}

	var parsed ffprobeFormat
	if jsonErr := json.Unmarshal([]byte(result.Stdout), &parsed); jsonErr != nil {
		return 0, jsonErr
	}
	return strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
}

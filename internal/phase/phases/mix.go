package phases

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

// Mix renders the final dubbed track: each segment's synthesized audio is
// time-stretched to its timeline-computed atempo and placed at its
// final_start, then summed against the instrumental stem ducked by the
// job's configured duck level. Per-segment stem preparation runs
// concurrently via errgroup, since each stem is an independent ffmpeg
// invocation; the final multi-input amix is a single sequential ffmpeg
// call once every stem is ready.
type Mix struct {
	TimeoutOverride time.Duration
}

// mixStem is one prepared dub stem ready to be delayed and summed into the
// final mix.
type mixStem struct {
	path  string
	delay float64
}

func (p Mix) Name() string       { return "mix" }
func (p Mix) ID() models.PhaseID { return models.PhaseMix }
func (p Mix) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return 20 * time.Minute
}

func (p Mix) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	instrumental := scratchPath(scratchDir, "instrumental.wav")
	stemDir := scratchPath(scratchDir, "mix_stems")
	if err := ensureDir(stemDir); err != nil {
		return phase.Result{Err: err}
	}

	var stems []mixStem
	for _, seg := range job.Segments {
		if seg.TTS.Status != models.TTSCompleted || seg.TTS.WavPath == "" {
			continue
		}
		stems = append(stems, mixStem{path: scratchPath(stemDir, seg.SegID+".wav"), delay: seg.Timing.FinalStart})
	}

	g, gctx := errgroup.WithContext(ctx)
	segIdx := 0
	for _, seg := range job.Segments {
		if seg.TTS.Status != models.TTSCompleted || seg.TTS.WavPath == "" {
			continue
		}
		seg := seg
		out := stems[segIdx].path
		segIdx++
		g.Go(func() error {
			atempo := seg.Timing.AtempoApplied
			if atempo <= 0 {
				atempo = 1
			}
			_, err := procrunner.Run(gctx, p.Timeout(), binaries.FFmpeg(),
				"-y", "-i", seg.TTS.WavPath,
				"-filter:a", fmt.Sprintf("atempo=%s", formatFloat(atempo)),
				out,
			)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return phase.Result{Err: err}
	}

	dubPath := scratchPath(scratchDir, "dub.wav")
	args := []string{"-y"}
	for _, s := range stems {
		args = append(args, "-i", s.path)
	}
	args = append(args, "-i", instrumental)

	filter := buildMixFilter(stems, job.PipelineParams.DuckLevelDB)
	args = append(args, "-filter_complex", filter, "-map", "[mixed]", dubPath)

	if _, err := procrunner.Run(ctx, p.Timeout(), binaries.FFmpeg(), args...); err != nil {
		return phase.Result{Err: err}
	}

	return phase.Result{
		Success:     true,
		OutputFiles: map[string]string{"dub": dubPath},
		Metadata:    map[string]any{},
	}
}

// buildMixFilter constructs an ffmpeg filter_complex graph that delays each
// dub stem to its final_start, ducks the instrumental by duckLevelDB, and
// sums everything into a single [mixed] output label.
func buildMixFilter(stems []mixStem, duckLevelDB float64) string {
	var filter string
	var labels string
	for i, s := range stems {
		delayMs := int(s.delay * 1000)
		filter += fmt.Sprintf("[%d:a]adelay=%d|%d[d%d];", i, delayMs, delayMs, i)
		labels += fmt.Sprintf("[d%d]", i)
	}
	instrIdx := len(stems)
	filter += fmt.Sprintf("[%d:a]volume=%sdB[duck];", instrIdx, formatFloat(duckLevelDB))
	labels += "[duck]"
	filter += fmt.Sprintf("%samix=inputs=%d:normalize=0[mixed]", labels, len(stems)+1)
	return filter
}

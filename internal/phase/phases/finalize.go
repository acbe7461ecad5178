package phases

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"context"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
)

// Finalize moves the mixed dub track from scratch into the job's durable
// output directory and records final progress. A phase deletes its inputs
// once its outputs are persisted: finalize removes the scratch dub file
// (but not the whole scratch tree; stray intermediate files are swept by
// the expiry janitor) once the copy lands.
type Finalize struct {
	DataRoot string
	TimeoutOverride  time.Duration
}

func (p Finalize) Name() string       { return "finalize" }
func (p Finalize) ID() models.PhaseID { return models.PhaseFinalize }
func (p Finalize) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return 2 * time.Minute
}

func (p Finalize) Execute(_ context.Context, job models.Job, scratchDir string) phase.Result {
	outDir := job.OutputDir(p.DataRoot)
	if err := ensureDir(outDir); err != nil {
		return phase.Result{Err: err}
	}

	src := scratchPath(scratchDir, "dub.wav")
	dubFilename := "dub_" + job.Languages.Tgt + ".wav"
	dest := filepath.Join(outDir, dubFilename)

	if err := copyFile(src, dest); err != nil {
		return phase.Result{Err: err}
	}
	_ = os.Remove(src)

	completed := 0
	for _, seg := range job.Segments {
		if seg.Flags.SuspectedHallucination || seg.TTS.Status == models.TTSCompleted {
			completed++
		}
	}
	total := len(job.Segments)
	percent := 0.0
	if total > 0 {
		percent = float64(completed) / float64(total) * 100
	}

	return phase.Result{
		Success: true,
		Metadata: map[string]any{
			"outputs": map[string]any{"dub_audio_path": dest},
			"progress": map[string]any{
				"completed_segments": completed,
				"total_segments":     total,
				"percent":            percent,
			},
		},
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

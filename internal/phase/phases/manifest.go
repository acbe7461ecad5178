package phases

import (
	"context"
	"path/filepath"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
)

// manifestDoc is the delivered manifest.json summarizing a completed job,
// independent of the internal Job record shape so the public artifact
// contract can evolve separately from persistence.
type manifestDoc struct {
	JobID       string  `json:"job_id"`
	SourceURL   string  `json:"source_url"`
	SrcLang     string  `json:"src_lang"`
	TgtLang     string  `json:"tgt_lang"`
	DurationSec float64 `json:"duration_sec"`
	SegmentCount int    `json:"segment_count"`
	CreatedAt   string  `json:"created_at"`
}

// Manifest writes the delivered manifest.json and segments.json artifacts
// into the job's output directory and records their paths, the final step
// before the job is marked COMPLETED.
type Manifest struct {
	DataRoot string
	TimeoutOverride  time.Duration
}

func (p Manifest) Name() string       { return "manifest" }
func (p Manifest) ID() models.PhaseID { return models.PhaseManifest }
func (p Manifest) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return time.Minute
}

func (p Manifest) Execute(_ context.Context, job models.Job, _ string) phase.Result {
	outDir := job.OutputDir(p.DataRoot)
	if err := ensureDir(outDir); err != nil {
		return phase.Result{Err: err}
	}

	manifestPath := filepath.Join(outDir, "manifest.json")
	segmentsPath := filepath.Join(outDir, "segments.json")

	doc := manifestDoc{
		JobID:        job.JobID,
		SourceURL:    job.Source.URL,
		SrcLang:      job.Languages.Src,
		TgtLang:      job.Languages.Tgt,
		DurationSec:  job.Media.DurationSec,
		SegmentCount: len(job.Segments),
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}

	if err := writeJSON(manifestPath, doc); err != nil {
		return phase.Result{Err: err}
	}
	if err := writeJSON(segmentsPath, job.Segments); err != nil {
		return phase.Result{Err: err}
	}

	return phase.Result{
		Success:     true,
		OutputFiles: map[string]string{"manifest": manifestPath, "segments": segmentsPath},
		// A nested map merges key-wise with the outputs finalize already
		// recorded; a whole Outputs value would replace it and drop the
		// dub path.
		Metadata: map[string]any{"outputs": map[string]any{
			"manifest_path": manifestPath,
			"segments_path": segmentsPath,
		}},
	}
}

package phases

import (
	"context"
	"strings"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/downloader"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

// Download fetches the submitted URL into the job's scratch directory:
// direct media URLs go through pkg/downloader, everything else through
// yt-dlp.
type Download struct {
	TimeoutOverride time.Duration
}

func (p Download) Name() string         { return "download" }
func (p Download) ID() models.PhaseID   { return models.PhaseDownload }
func (p Download) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return defaultTimeout
}

func (p Download) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	if err := ensureDir(scratchDir); err != nil {
		return phase.Result{Err: err}
	}

	dest := scratchPath(scratchDir, "source.mp4")

	if isDirectMediaURL(job.Source.URL) {
		if err := downloader.DownloadFile(ctx, job.Source.URL, dest); err != nil {
			return phase.Result{Err: err}
		}
	} else {
		_, err := procrunner.Run(ctx, p.Timeout(), binaries.YtDLP(),
			"-f", "bestvideo*+bestaudio/best",
			"--merge-output-format", "mp4",
			"-o", dest,
			job.Source.URL,
		)
		if err != nil {
			return phase.Result{Err: err}
		}
	}

	return phase.Result{
		Success:     true,
		OutputFiles: map[string]string{"source": dest},
		Metadata:    map[string]any{},
	}
}

func isDirectMediaURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range []string{".mp4", ".mkv", ".webm", ".mov", ".m4a", ".wav", ".mp3"} {
		if strings.HasSuffix(strings.SplitN(lower, "?", 2)[0], ext) {
			return true
		}
	}
	return false
}

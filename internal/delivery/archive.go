package delivery

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/talkdub/talkdub/internal/models"
)

// buildArchive assembles the delivery zip into w: the dubbed waveform,
// segments.json, manifest.json, an upload guide, and a readme. Filenames
// are deterministic from the target language.
func buildArchive(w io.Writer, dataRoot string, job models.Job) error {
	zw := zip.NewWriter(w)

	outDir := job.OutputDir(dataRoot)
	dubName := "dub_" + job.Languages.Tgt + ".wav"

	if err := addFileIfExists(zw, filepath.Join(outDir, dubName), dubName); err != nil {
		return err
	}
	if err := addFileIfExists(zw, filepath.Join(outDir, "manifest.json"), "manifest.json"); err != nil {
		return err
	}
	if err := addFileIfExists(zw, filepath.Join(outDir, "segments.json"), "segments_"+job.Languages.Tgt+".json"); err != nil {
		return err
	}

	if err := addString(zw, "UPLOAD_GUIDE.txt", generateUploadGuide(job)); err != nil {
		return err
	}
	if err := addString(zw, "README.txt", generateReadme(job)); err != nil {
		return err
	}

	return zw.Close()
}

func addFileIfExists(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(entry, f)
	return err
}

func addString(zw *zip.Writer, name, content string) error {
	entry, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.WriteString(entry, content)
	return err
}

// generateUploadGuide produces the platform upload walkthrough. TalkDub
// only dubs YouTube sources today (see parseSource), so this is scoped to
// YouTube Studio's multi-language audio track flow, same as the original.
func generateUploadGuide(job models.Job) string {
	return fmt.Sprintf(`YOUTUBE STUDIO - MULTI-LANGUAGE AUDIO TRACK UPLOAD

1. Sign in to YouTube Studio
   https://studio.youtube.com

2. Open the left menu and select "Languages"

3. Select the target video
   Video ID: %s
   URL: %s

4. Add a language
   "Add Language" -> choose %s

5. Upload the audio track
   Next to "Dub", choose "Add" -> "Select file"
   -> choose dub_%s.wav

6. Publish
   Click "Publish"

Notes
- If an automatic dub already exists for this language, remove it first.
- The audio track has already been time-aligned to the source video.
- It may take a few minutes for the upload to propagate after publishing.

---
TalkDub
`, job.Source.VideoID, job.Source.URL, job.Languages.Tgt, job.Languages.Tgt)
}

// generateReadme produces the plain-text delivery summary.
func generateReadme(job models.Job) string {
	return fmt.Sprintf(`TALKDUB DELIVERY

Job
- Job ID: %s
- Created: %s
- Source language: %s
- Target language: %s

Contents
- dub_%s.wav: dubbed audio track
- manifest.json: processing metadata
- segments_%s.json: per-segment detail, for review
- UPLOAD_GUIDE.txt: YouTube Studio upload walkthrough

Notes
- This delivery is retained for a limited time and then deleted.
- No quality guarantee is made; this is a best-effort automated dub.
- Lip-sync is not supported.
- Please report problems to the project maintainers.

---
TalkDub
`, job.JobID, job.CreatedAt.Format("2006-01-02 15:04:05 MST"), job.Languages.Src, job.Languages.Tgt,
		job.Languages.Tgt, job.Languages.Tgt)
}

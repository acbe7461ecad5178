package phases

import (
	"context"
	"fmt"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

// asrOutput mirrors whisperx's per-segment JSON output shape.
type asrOutput struct {
	Segments []struct {
		Start        float64             `json:"start"`
		End          float64             `json:"end"`
		Text         string              `json:"text"`
		Speaker      string              `json:"speaker"`
		NoSpeechProb float64             `json:"no_speech_prob"`
		AvgLogprob   float64             `json:"avg_logprob"`
		Words        []models.WordTiming `json:"words"`
	} `json:"segments"`
}

// ASR transcribes vocals.wav with speaker diarization via whisperx,
// populating the job's segment list with source text, speaker id, and the
// recognizer's confidence signals the hallucination phase later consumes.
type ASR struct {
	TimeoutOverride time.Duration
}

func (p ASR) Name() string          { return "asr" }
func (p ASR) ID() models.PhaseID    { return models.PhaseASR }
func (p ASR) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return defaultTimeout
}

func (p ASR) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	vocals := scratchPath(scratchDir, "vocals.wav")
	// whisperx names its JSON after the input file's basename.
	outPath := scratchPath(scratchDir, "vocals.json")

	_, err := procrunner.Run(ctx, p.Timeout(), binaries.WhisperX(),
		vocals,
		"--language", job.Languages.Src,
		"--diarize",
		"--output_format", "json",
		"--output_dir", scratchDir,
	)
	if err != nil {
		return phase.Result{Err: err}
	}

	var out asrOutput
	if err := readJSON(outPath, &out); err != nil {
		return phase.Result{Err: err}
	}

	segments := make([]models.Segment, len(out.Segments))
	speakerSeen := make(map[string]bool)
	var speakers []models.Speaker

	for i, s := range out.Segments {
		segments[i] = models.Segment{
			SegID:     segID(i),
			Start:     s.Start,
			End:       s.End,
			SrcText:   s.Text,
			SpeakerID: s.Speaker,
			Whisper: models.Whisper{
				NoSpeechProb: s.NoSpeechProb,
				AvgLogprob:   s.AvgLogprob,
				Words:        s.Words,
			},
			Translation: models.Translation{Status: models.TranslationPending},
			TTS:         models.TTS{Status: models.TTSPending},
		}
		if !speakerSeen[s.Speaker] {
			speakerSeen[s.Speaker] = true
			speakers = append(speakers, models.Speaker{SpeakerID: s.Speaker})
		}
	}

	return phase.Result{
		Success: true,
		Metadata: map[string]any{
			"segments": segments,
			"speakers": speakers,
			"progress": map[string]any{"total_segments": len(segments)},
		},
	}
}

func segID(i int) string {
	return fmt.Sprintf("seg-%04d", i)
}

package phases

import (
	"context"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/logger"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

const (
	ttsTimeoutPerSegment = 5 * time.Minute
	ttsMinDurationRatio  = 0.5
	ttsMaxDurationRatio  = 2.5
	ttsMaxFailureRatio   = 0.5
)

// Shortener produces a length-capped re-translation of a single segment,
// used when the synthesized audio runs too long for its timeline slot.
type Shortener interface {
	TranslateShort(ctx context.Context, srcLang, tgtLang, text string, maxChars int) (string, error)
}

// TTS synthesizes target-language speech for every translated,
// non-hallucination-flagged segment via the neural TTS engine, conditioning
// on each speaker's reference audio where available and falling back to a
// preset voice otherwise (the speaker's fallback_mode). When a segment's
// synthesized audio overruns its duration budget and a Shortener is wired,
// the segment is re-translated under a character cap and synthesized once
// more before being written off as failed.
type TTS struct {
	Shortener Shortener

	// TimeoutOverride, if zero, leaves the whole phase at one hour; each
	// segment's synthesis and probe calls run under ttsTimeoutPerSegment.
	TimeoutOverride time.Duration
}

func (p TTS) Name() string       { return "tts" }
func (p TTS) ID() models.PhaseID { return models.PhaseTTS }
func (p TTS) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return time.Hour
}

func (p TTS) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	outDir := scratchPath(scratchDir, "tts_output")
	if err := ensureDir(outDir); err != nil {
		return phase.Result{Err: err}
	}

	speakerByID := make(map[string]models.Speaker, len(job.Speakers))
	for _, sp := range job.Speakers {
		speakerByID[sp.SpeakerID] = sp
	}

	segments := make([]models.Segment, len(job.Segments))
	copy(segments, job.Segments)

	var processable []int
	for i, seg := range segments {
		if seg.Flags.SuspectedHallucination {
			continue
		}
		if seg.Translation.Status != models.TranslationCompleted || seg.TgtText == nil {
			continue
		}
		processable = append(processable, i)
	}

	if len(processable) == 0 {
		logger.Warn("tts phase: no segments to synthesize", "job_id", job.JobID)
		return phase.Result{Success: true, Metadata: map[string]any{"segments": segments}}
	}

	segTimeout := ttsTimeoutPerSegment
	var failed int
	for _, idx := range processable {
		seg := &segments[idx]
		speaker := speakerByID[seg.SpeakerID]

		outPath := scratchPath(outDir, seg.SegID+".wav")
		args := []string{"--text", *seg.TgtText, "--language", job.Languages.Tgt, "--output", outPath}
		if speaker.FallbackMode == models.FallbackNormal && speaker.RefWavPath != "" {
			args = append(args, "--ref-audio", speaker.RefWavPath, "--ref-text", speaker.RefText)
		}

		_, err := procrunner.Run(ctx, segTimeout, binaries.PiperTTS(), args...)
		if err != nil {
			logger.Warn("tts synthesis failed", "job_id", job.JobID, "seg_id", seg.SegID, "error", err)
			seg.TTS.Status = models.TTSFailed
			seg.TTS.Retries++
			failed++
			if float64(failed)/float64(len(processable)) > ttsMaxFailureRatio {
				return phase.Result{Err: err, Metadata: map[string]any{"segments": segments}}
			}
			continue
		}

		duration, err := probeDuration(ctx, segTimeout, outPath)
		if err != nil {
			seg.TTS.Status = models.TTSFailed
			seg.TTS.Retries++
			failed++
			continue
		}

		origDuration := seg.End - seg.Start
		if !validTTSDuration(duration, origDuration) {
			if d, ok := p.shortenAndResynth(ctx, job, seg, speaker, outPath, duration, origDuration); ok {
				duration = d
			} else {
				logger.Warn("tts duration out of expected range", "job_id", job.JobID, "seg_id", seg.SegID,
					"duration", duration, "orig_duration", origDuration)
				seg.TTS.Status = models.TTSFailed
				seg.TTS.Retries++
				failed++
				continue
			}
		}

		seg.TTS.WavPath = outPath
		seg.TTS.Status = models.TTSCompleted
		seg.Timing.TTSDuration = duration
	}

	if float64(failed)/float64(len(processable)) > ttsMaxFailureRatio {
		return phase.Result{
			Err:      errTTSTooManyFailures,
			Metadata: map[string]any{"segments": segments},
		}
	}

	return phase.Result{
		Success:     true,
		OutputFiles: map[string]string{"tts_output_dir": outDir},
		Metadata:    map[string]any{"segments": segments},
	}
}

// shortenAndResynth re-translates seg's target text under a character cap
// proportional to how far the synthesized audio overran its slot, then
// synthesizes the shortened text into outPath and re-probes it. Returns the
// new duration and true only when the shortened take fits. The segment's
// TgtText and Shortened flag are updated in place on success.
func (p TTS) shortenAndResynth(ctx context.Context, job models.Job, seg *models.Segment, speaker models.Speaker, outPath string, actual, orig float64) (float64, bool) {
	if p.Shortener == nil || seg.TgtText == nil || orig <= 0 || actual <= orig {
		return 0, false
	}

	budget := orig * ttsMaxDurationRatio
	maxChars := int(float64(len([]rune(*seg.TgtText))) * budget / actual)
	if maxChars < 1 {
		return 0, false
	}

	shortened, err := p.Shortener.TranslateShort(ctx, job.Languages.Src, job.Languages.Tgt, *seg.TgtText, maxChars)
	if err != nil {
		logger.Warn("short-form re-translation failed", "job_id", job.JobID, "seg_id", seg.SegID, "error", err)
		return 0, false
	}

	args := []string{"--text", shortened, "--language", job.Languages.Tgt, "--output", outPath}
	if speaker.FallbackMode == models.FallbackNormal && speaker.RefWavPath != "" {
		args = append(args, "--ref-audio", speaker.RefWavPath, "--ref-text", speaker.RefText)
	}
	if _, err := procrunner.Run(ctx, ttsTimeoutPerSegment, binaries.PiperTTS(), args...); err != nil {
		return 0, false
	}

	duration, err := probeDuration(ctx, ttsTimeoutPerSegment, outPath)
	if err != nil || !validTTSDuration(duration, orig) {
		return 0, false
	}

	seg.TgtText = &shortened
	seg.Flags.Shortened = true
	seg.TTS.Retries++
	return duration, true
}

func validTTSDuration(actual, orig float64) bool {
	if orig <= 0 {
		return actual > 0
	}
	return actual >= orig*ttsMinDurationRatio && actual <= orig*ttsMaxDurationRatio
}

var errTTSTooManyFailures = ttsFailureError("tts: failure rate exceeded 50% of processable segments")

type ttsFailureError string

func (e ttsFailureError) Error() string { return string(e) }

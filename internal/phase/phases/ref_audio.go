package phases

import (
	"context"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/pkg/binaries"
	"github.com/talkdub/talkdub/pkg/procrunner"
)

// RefAudio extracts, per speaker, the cleanest single utterance from
// vocals.wav to use as a voice-cloning reference for TTS, falling back to a
// preset voice when no segment clears the quality bar.
type RefAudio struct {
	TimeoutOverride      time.Duration
	MinQuality   float64
}

func (p RefAudio) Name() string          { return "ref_audio" }
func (p RefAudio) ID() models.PhaseID    { return models.PhaseRefAudio }
func (p RefAudio) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return defaultTimeout
}

func (p RefAudio) Execute(ctx context.Context, job models.Job, scratchDir string) phase.Result {
	refDir := scratchPath(scratchDir, "ref_audio")
	if err := ensureDir(refDir); err != nil {
		return phase.Result{Err: err}
	}

	bestBySpeaker := make(map[string]models.Segment)
	for _, seg := range job.Segments {
		if seg.Flags.SuspectedHallucination {
			continue
		}
		current, ok := bestBySpeaker[seg.SpeakerID]
		if !ok || segmentQuality(seg) > segmentQuality(current) {
			bestBySpeaker[seg.SpeakerID] = seg
		}
	}

	speakers := make([]models.Speaker, len(job.Speakers))
	copy(speakers, job.Speakers)

	vocals := scratchPath(scratchDir, "vocals.wav")
	for i, sp := range speakers {
		best, ok := bestBySpeaker[sp.SpeakerID]
		quality := 0.0
		if ok {
			quality = segmentQuality(best)
		}

		if !ok || quality < p.minQuality() {
			speakers[i].FallbackMode = models.FallbackPreset
			continue
		}

		refWav := scratchPath(refDir, sp.SpeakerID+".wav")
		_, err := procrunner.Run(ctx, p.Timeout(), binaries.FFmpeg(),
			"-y", "-i", vocals,
			"-ss", formatFloat(best.Start), "-to", formatFloat(best.End),
			refWav,
		)
		if err != nil {
			speakers[i].FallbackMode = models.FallbackPreset
			continue
		}

		speakers[i].RefWavPath = refWav
		speakers[i].RefText = best.SrcText
		speakers[i].RefLanguage = job.Languages.Src
		speakers[i].RefQualityScore = quality
		speakers[i].FallbackMode = models.FallbackNormal
	}

	return phase.Result{
		Success:  true,
		Metadata: map[string]any{"speakers": speakers},
	}
}

func (p RefAudio) minQuality() float64 {
	if p.MinQuality > 0 {
		return p.MinQuality
	}
	return 0.5
}

// segmentQuality scores a segment as a voice-cloning reference: longer,
// more confident, more speech-dense spans score higher.
func segmentQuality(seg models.Segment) float64 {
	duration := seg.End - seg.Start
	if duration <= 0 {
		return 0
	}
	confidence := 1 - clamp01(-seg.Whisper.AvgLogprob/5)
	lengthScore := clamp01(duration / 8)
	return (confidence*0.4 + seg.VADSpeechRatio*0.3 + lengthScore*0.3)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}


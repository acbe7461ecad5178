package phases

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/phase"
)

// commonHallucinationPhrases are canned closing/outro phrases recognizers
// hallucinate onto silence or music, by source language. The phrase list
// only covers ja, en, zh; other source languages fall through to the
// statistical and confidence-based checks below with no phrase match
// possible.
var commonHallucinationPhrases = map[string][]string{
	"ja": {
		"ご視聴ありがとうございました", "チャンネル登録", "高評価", "コメント欄", "次回", "字幕",
	},
	"en": {
		"thank you for watching", "subscribe", "like and subscribe", "comment below", "next video", "subtitles",
	},
	"zh": {
		"感谢观看", "订阅", "点赞", "评论", "下一期",
	},
}

const (
	hallucinationFrequentPhraseThreshold = 0.2
	hallucinationMinChars                = 2
	hallucinationNoSpeechProbThreshold    = 0.7
)

var wordPattern = regexp.MustCompile(`\w+`)

// Hallucination flags recognizer output not supported by the audio:
// canned outro phrases, phrases repeated across an unusually large share of
// the job's segments, segments too short to be real speech, and segments
// whisper itself reports as probably silence.
type Hallucination struct {
	TimeoutOverride time.Duration
}

func (p Hallucination) Name() string          { return "hallucination" }
func (p Hallucination) ID() models.PhaseID    { return models.PhaseHallucination }
func (p Hallucination) Timeout() time.Duration {
	if p.TimeoutOverride > 0 {
		return p.TimeoutOverride
	}
	return 5 * time.Minute
}

func (p Hallucination) Execute(_ context.Context, job models.Job, _ string) phase.Result {
	segments := make([]models.Segment, len(job.Segments))
	copy(segments, job.Segments)

	phrases := commonHallucinationPhrases[strings.ToLower(job.Languages.Src)]
	frequentPhrases := frequentThreePhrases(segments, hallucinationFrequentPhraseThreshold)

	flagged := 0
	for i := range segments {
		if isHallucination(segments[i], phrases, frequentPhrases) {
			segments[i].Flags.SuspectedHallucination = true
			flagged++
		}
	}

	return phase.Result{
		Success:  true,
		Metadata: map[string]any{"segments": segments},
	}
}

func isHallucination(seg models.Segment, phrases []string, frequent map[string]bool) bool {
	text := strings.ToLower(seg.SrcText)

	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	for phrase := range frequent {
		if strings.Contains(text, phrase) {
			return true
		}
	}

	if len(strings.TrimSpace(seg.SrcText)) < hallucinationMinChars {
		return true
	}

	if seg.Whisper.NoSpeechProb > hallucinationNoSpeechProbThreshold {
		return true
	}

	return false
}

// frequentThreePhrases counts every occurrence of each 3-word phrase across
// all segment texts and returns those whose count is at least threshold
// times the number of segments (repeats within one segment count too), a proxy for
// ASR models echoing the same hallucinated phrase across a long silent
// stretch.
func frequentThreePhrases(segments []models.Segment, threshold float64) map[string]bool {
	counts := make(map[string]int)
	for _, seg := range segments {
		words := wordPattern.FindAllString(strings.ToLower(seg.SrcText), -1)
		for i := 0; i+2 < len(words); i++ {
			phrase := strings.Join(words[i:i+3], " ")
			counts[phrase]++
		}
	}

	min := threshold * float64(len(segments))
	frequent := make(map[string]bool)
	for phrase, count := range counts {
		if float64(count) >= min {
			frequent[phrase] = true
		}
	}
	return frequent
}

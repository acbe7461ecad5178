// Package translation implements the segment translation pipeline:
// chunking segments under joint character/count limits, per-chunk LLM
// translation through the rate limiter and cache, JSON-shape parsing,
// quality validation, retry policy, and partial-failure accounting.
package translation

import "github.com/talkdub/talkdub/internal/models"

// Chunk is a contiguous, ordered run of segments to translate together.
type Chunk struct {
	Segments []models.Segment
}

// Texts returns the chunk's source texts in order, the shape sent to the
// translation client.
func (c Chunk) Texts() []string {
	texts := make([]string, len(c.Segments))
	for i, seg := range c.Segments {
		texts[i] = seg.SrcText
	}
	return texts
}

// BuildChunks produces longest-prefix chunks over the input order:
// each chunk satisfies both the character and segment-count ceilings; a
// segment that alone exceeds charLimit still forms its own chunk rather
// than being split. Segments flagged suspected_hallucination are excluded
// entirely (their tgt_text stays nil and they never count toward a chunk or
// a failure).
func BuildChunks(segments []models.Segment, charLimit, segLimit int) []Chunk {
	var chunks []Chunk
	var current []models.Segment
	var currentChars int

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, Chunk{Segments: current})
			current = nil
			currentChars = 0
		}
	}

	for _, seg := range segments {
		if seg.Flags.SuspectedHallucination {
			continue
		}

		segChars := len(seg.SrcText)

		if len(current) > 0 && (currentChars+segChars > charLimit || len(current)+1 > segLimit) {
			flush()
		}

		current = append(current, seg)
		currentChars += segChars

		if segChars > charLimit {
			// A single over-limit segment still forms its own chunk; it is
			// never split, and nothing may be appended after it.
			flush()
		}
	}
	flush()

	return chunks
}

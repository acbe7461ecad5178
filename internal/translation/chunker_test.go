package translation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talkdub/talkdub/internal/models"
)

func seg(id, text string) models.Segment {
	return models.Segment{SegID: id, SrcText: text}
}

func TestBuildChunksConcatenationReproducesInput(t *testing.T) {
	segments := []models.Segment{seg("1", "a"), seg("2", "b"), seg("3", "c"), seg("4", "d")}
	chunks := BuildChunks(segments, 1000, 2)

	var got []models.Segment
	for _, c := range chunks {
		got = append(got, c.Segments...)
	}
	assert.Equal(t, segments, got)
}

func TestBuildChunksRespectsCharLimit(t *testing.T) {
	segments := []models.Segment{seg("1", "aaaaa"), seg("2", "bbbbb"), seg("3", "ccccc")}
	chunks := BuildChunks(segments, 10, 100)

	for _, c := range chunks {
		total := 0
		for _, s := range c.Segments {
			total += len(s.SrcText)
		}
		assert.LessOrEqual(t, total, 10)
	}
	assert.Len(t, chunks, 2)
}

func TestBuildChunksRespectsSegLimit(t *testing.T) {
	segments := []models.Segment{seg("1", "a"), seg("2", "b"), seg("3", "c")}
	chunks := BuildChunks(segments, 1000, 2)

	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[0].Segments, 2)
	assert.Len(t, chunks[1].Segments, 1)
}

func TestBuildChunksOversizedSegmentFormsOwnChunk(t *testing.T) {
	huge := strings.Repeat("x", 50)
	segments := []models.Segment{seg("1", "a"), seg("2", huge), seg("3", "b")}
	chunks := BuildChunks(segments, 10, 100)

	assert.Len(t, chunks, 3)
	assert.Equal(t, "2", chunks[1].Segments[0].SegID)
}

func TestBuildChunksExcludesSuspectedHallucinations(t *testing.T) {
	flagged := seg("2", "skip me")
	flagged.Flags.SuspectedHallucination = true
	segments := []models.Segment{seg("1", "a"), flagged, seg("3", "c")}

	chunks := BuildChunks(segments, 1000, 100)
	assert.Len(t, chunks, 1)
	assert.Len(t, chunks[0].Segments, 2)
	for _, s := range chunks[0].Segments {
		assert.NotEqual(t, "2", s.SegID)
	}
}

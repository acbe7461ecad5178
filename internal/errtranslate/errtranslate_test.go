package errtranslate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslateKnownPatterns(t *testing.T) {
	cases := map[string]string{
		"yt-dlp: ERROR: Video unavailable":          "the video is not viewable (deleted, private, or region-restricted)",
		"context deadline exceeded":                 "processing exceeded the time limit",
		"fatal error: runtime: out of memory":        "memory was exhausted; the video may be too long",
		"groq api error: 429 rate limit exceeded":    "the translation provider is rate-limiting requests; this will be retried",
		"dial tcp: connection refused":               "a network error interrupted processing; this will be retried",
	}
	for input, want := range cases {
		assert.Equal(t, want, Translate(input))
	}
}

func TestTranslateUnknownIsTruncated(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := Translate(long)
	assert.LessOrEqual(t, len(got), 200)
}

func TestTranslateUnknownShortPassesThrough(t *testing.T) {
	assert.Equal(t, "some completely novel failure", Translate("some completely novel failure"))
}

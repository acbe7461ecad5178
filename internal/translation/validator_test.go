package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateItemEmptyIsCritical(t *testing.T) {
	f, ok := ValidateItem(0, "en", "ja", "hello", "   ")
	assert.False(t, ok)
	assert.Equal(t, SeverityCritical, f.Severity)
}

func TestValidateItemRatioOutOfBoundsIsWarning(t *testing.T) {
	f, ok := ValidateItem(0, "en", "ja", "a very long sentence indeed", "x")
	assert.False(t, ok)
	assert.Equal(t, SeverityWarning, f.Severity)
}

func TestValidateItemResidualJapaneseForJaToEnIsWarning(t *testing.T) {
	f, ok := ValidateItem(0, "ja", "en", "こんにちは世界", "hello こんにちは world")
	assert.False(t, ok)
	assert.Equal(t, SeverityWarning, f.Severity)
}

func TestValidateItemIdenticalToSourceIsInformational(t *testing.T) {
	f, ok := ValidateItem(0, "en", "de", "Tokyo", "Tokyo")
	assert.False(t, ok)
	assert.Equal(t, SeverityInformational, f.Severity)
}

func TestValidateItemGoodTranslationPasses(t *testing.T) {
	_, ok := ValidateItem(0, "en", "de", "hello there", "hallo da")
	assert.True(t, ok)
}

func TestValidateChunkPassesUnderTenPercentCritical(t *testing.T) {
	sources := []string{"one", "two", "three", "four", "five",
		"six", "seven", "eight", "nine", "ten", "eleven"}
	translations := []string{"un", "deux", "trois", "quatre", "cinq",
		"six", "sept", "huit", "neuf", "dix", ""}

	_, pass := ValidateChunk("en", "fr", sources, translations)
	assert.True(t, pass)
}

func TestValidateChunkFailsAtTenPercentCritical(t *testing.T) {
	sources := []string{"one", "two", "three", "four", "five",
		"six", "seven", "eight", "nine", "ten"}
	translations := []string{"un", "deux", "trois", "quatre", "cinq",
		"six", "sept", "huit", "neuf", ""}

	_, pass := ValidateChunk("en", "fr", sources, translations)
	assert.False(t, pass)
}

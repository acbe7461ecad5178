package translationcache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/talkdub/talkdub/internal/models"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.TranslationCacheEntry{}))
	return New(db, ttl)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour)
	texts := []string{"hello", "world"}
	c.Set("en", "ja", texts, []string{"こんにちは", "世界"})

	got, ok := c.Get("en", "ja", texts)
	require.True(t, ok)
	assert.Equal(t, []string{"こんにちは", "世界"}, got)
}

func TestDifferentOrderYieldsDifferentKey(t *testing.T) {
	assert.NotEqual(t, Key([]string{"a", "b"}), Key([]string{"b", "a"}))
}

func TestDifferentCasingYieldsDifferentKey(t *testing.T) {
	assert.NotEqual(t, Key([]string{"Hello"}), Key([]string{"hello"}))
}

func TestMissReturnsFalse(t *testing.T) {
	c := newTestCache(t, time.Hour)
	_, ok := c.Get("en", "ja", []string{"nope"})
	assert.False(t, ok)
}

func TestExpiredEntryIsTreatedAsMiss(t *testing.T) {
	c := newTestCache(t, -time.Second) // already expired on write
	texts := []string{"x"}
	c.Set("en", "de", texts, []string{"y"})

	_, ok := c.Get("en", "de", texts)
	assert.False(t, ok)
}

func TestScopedByLanguagePair(t *testing.T) {
	c := newTestCache(t, time.Hour)
	texts := []string{"hi"}
	c.Set("en", "ja", texts, []string{"こんにちは"})

	_, ok := c.Get("en", "de", texts)
	assert.False(t, ok)
}

func TestSameCacheKeyDifferentLanguagePairsCoexist(t *testing.T) {
	c := newTestCache(t, time.Hour)
	texts := []string{"hi"}
	key := Key(texts)

	// Simulate two language pairs whose text batch hashes to the same
	// CacheKey (the normal path cannot force a real sha256 collision, but
	// the persistence layer must not treat CacheKey alone as unique).
	require.NoError(t, c.db.Create(&models.TranslationCacheEntry{
		CacheKey: key, SrcLang: "en", TgtLang: "ja",
		Translations: `["こんにちは"]`, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}).Error)
	require.NoError(t, c.db.Create(&models.TranslationCacheEntry{
		CacheKey: key, SrcLang: "en", TgtLang: "de",
		Translations: `["hallo"]`, CreatedAt: time.Now().UTC(), ExpiresAt: time.Now().UTC().Add(time.Hour),
	}).Error)

	ja, ok := c.Get("en", "ja", texts)
	require.True(t, ok)
	assert.Equal(t, []string{"こんにちは"}, ja)

	de, ok := c.Get("en", "de", texts)
	require.True(t, ok)
	assert.Equal(t, []string{"hallo"}, de)
}

func TestSetTwiceSameKeyAndLangsUpsertsRatherThanDuplicating(t *testing.T) {
	c := newTestCache(t, time.Hour)
	texts := []string{"hi"}
	c.Set("en", "ja", texts, []string{"first"})
	c.Set("en", "ja", texts, []string{"second"})

	got, ok := c.Get("en", "ja", texts)
	require.True(t, ok)
	assert.Equal(t, []string{"second"}, got)

	var count int64
	require.NoError(t, c.db.Model(&models.TranslationCacheEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "re-setting the same key/lang-pair must update in place, not duplicate")
}

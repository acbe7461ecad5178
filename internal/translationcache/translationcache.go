// Package translationcache is a content-addressed cache from (source
// language, target language, text batch hash) to translated batch. Misses
// and failures are silent; the cache is a performance aid, never a
// correctness dependency.
package translationcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talkdub/talkdub/internal/models"
)

// Cache is a gorm-backed content-addressed translation cache.
type Cache struct {
	db  *gorm.DB
	ttl time.Duration
}

// New creates a Cache with the given entry lifetime.
func New(db *gorm.DB, ttl time.Duration) *Cache {
	return &Cache{db: db, ttl: ttl}
}

// Key computes sha256(canonical_json(texts))[:16] hex-encoded, scoped by
// language pair via a separate column rather than folded into the hash:
// different text order or casing yields a different key because the JSON
// array encodes order and exact bytes.
func Key(texts []string) string {
	canonical, _ := json.Marshal(texts)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16]
}

// Get returns the cached translation list for texts scoped to (srcLang,
// tgtLang), or ok=false on any miss or error; callers never distinguish
// "not present" from "lookup failed", per the silent-failure contract.
func (c *Cache) Get(srcLang, tgtLang string, texts []string) ([]string, bool) {
	key := Key(texts)

	var entry models.TranslationCacheEntry
	err := c.db.First(&entry, "cache_key = ? AND src_lang = ? AND tgt_lang = ?", key, srcLang, tgtLang).Error
	if err != nil {
		return nil, false
	}
	if time.Now().UTC().After(entry.ExpiresAt) {
		return nil, false
	}

	var translations []string
	if err := json.Unmarshal([]byte(entry.Translations), &translations); err != nil {
		return nil, false
	}
	return translations, true
}

// Set stores translations for texts scoped to (srcLang, tgtLang) with the
// configured TTL. Errors are swallowed: a failed cache write must never
// fail the translation pipeline. Upserts on the full (cache_key, src_lang,
// tgt_lang) primary key via ON CONFLICT, rather than db.Save, since CacheKey
// is a self-assigned hash rather than a DB-generated id: Save would emit a
// plain UPDATE keyed on the primary key and silently affect zero rows for a
// combination never seen before.
func (c *Cache) Set(srcLang, tgtLang string, texts []string, translations []string) {
	key := Key(texts)
	data, err := json.Marshal(translations)
	if err != nil {
		return
	}

	now := time.Now().UTC()
	entry := models.TranslationCacheEntry{
		CacheKey:     key,
		SrcLang:      srcLang,
		TgtLang:      tgtLang,
		Translations: string(data),
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.ttl),
	}
	_ = c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}, {Name: "src_lang"}, {Name: "tgt_lang"}},
		DoUpdates: clause.AssignmentColumns([]string{"translations", "created_at", "expires_at"}),
	}).Create(&entry).Error
}

// CleanupExpired removes entries past their TTL.
func (c *Cache) CleanupExpired() (int64, error) {
	res := c.db.Where("expires_at < ?", time.Now().UTC()).Delete(&models.TranslationCacheEntry{})
	return res.RowsAffected, res.Error
}

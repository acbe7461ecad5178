package models

import "time"

// PINRecord is the gorm-backed row for one job's delivery PIN. The PIN
// itself is stored as a bcrypt hash, never in clear text; comparison goes
// through bcrypt and is constant-time.
type PINRecord struct {
	JobID     string    `gorm:"primaryKey;type:varchar(64)" json:"job_id"`
	PINHash   string    `gorm:"type:varchar(100);not null" json:"-"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

// RateLimitCounter is one per-UTC-minute bucket shared across workers.
// MinuteKey is the UTC minute formatted as "200601021504".
type RateLimitCounter struct {
	MinuteKey string    `gorm:"primaryKey;type:varchar(16)" json:"minute_key"`
	Count     int       `gorm:"not null;default:0" json:"count"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

// TranslationCacheEntry is a content-addressed cache row.
// CacheKey = sha256(canonical_json(texts))[:16], scoped by language pair.
// The language pair is part of the primary key (not just an index) so that
// two different language pairs whose source text happens to hash to the
// same CacheKey coexist as distinct rows instead of overwriting each other.
type TranslationCacheEntry struct {
	CacheKey     string    `gorm:"primaryKey;type:varchar(32)" json:"cache_key"`
	SrcLang      string    `gorm:"primaryKey;type:varchar(8)" json:"src_lang"`
	TgtLang      string    `gorm:"primaryKey;type:varchar(8)" json:"tgt_lang"`
	Translations string    `gorm:"type:text;not null" json:"translations"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	ExpiresAt    time.Time `gorm:"not null;index" json:"expires_at"`
}

// Package ratelimit implements a per-wall-clock-UTC-minute counter
// shared across workers, used to throttle
// outbound LLM traffic. It is intentionally approximate: a single token
// may be double-spent under contention, which is why bufferFactor leaves
// headroom; a stricter token-bucket discipline is explicitly out of scope.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/talkdub/talkdub/internal/models"
)

// Usage is a snapshot for observability.
type Usage struct {
	Current int
	Limit   int
	Remaining int
	Percent float64
}

// Limiter throttles callers against a per-minute limit shared via a gorm
// table.
type Limiter struct {
	db             *gorm.DB
	rpmLimit       int
	bufferFactor   float64
}

// New creates a Limiter. effectiveLimit = floor(rpmLimit * bufferFactor).
func New(db *gorm.DB, rpmLimit int, bufferFactor float64) *Limiter {
	return &Limiter{db: db, rpmLimit: rpmLimit, bufferFactor: bufferFactor}
}

func (l *Limiter) effectiveLimit() int {
	return int(float64(l.rpmLimit) * l.bufferFactor)
}

func minuteKey(t time.Time) string {
	return t.UTC().Format("200601021504")
}

// Acquire loops: read the counter for the current minute; if absent,
// initialize to 1 with a two-minute TTL and succeed; if below the effective
// limit, increment and succeed; otherwise sleep until the next minute
// boundary, bounded by timeout. Returns false if timeout elapses first.
func (l *Limiter) Acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.tryAcquireOnce()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}

		now := time.Now()
		if now.After(deadline) {
			return false, nil
		}

		nextMinute := now.Truncate(time.Minute).Add(time.Minute)
		wait := nextMinute.Sub(now)
		if nextMinute.After(deadline) {
			wait = deadline.Sub(now)
		}
		if wait <= 0 {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (l *Limiter) tryAcquireOnce() (bool, error) {
	key := minuteKey(time.Now())
	limit := l.effectiveLimit()

	var err error
	txErr := l.db.Transaction(func(tx *gorm.DB) error {
		var counter models.RateLimitCounter
		lookupErr := tx.First(&counter, "minute_key = ?", key).Error

		if lookupErr == gorm.ErrRecordNotFound {
			counter = models.RateLimitCounter{
				MinuteKey: key,
				Count:     1,
				ExpiresAt: time.Now().UTC().Add(2 * time.Minute),
			}
			return tx.Create(&counter).Error
		}
		if lookupErr != nil {
			return lookupErr
		}

		if counter.Count >= limit {
			err = errBelowLimitNotMet
			return nil
		}

		counter.Count++
		return tx.Save(&counter).Error
	})

	if txErr != nil {
		return false, fmt.Errorf("ratelimit: acquire: %w", txErr)
	}
	if err == errBelowLimitNotMet {
		return false, nil
	}
	return true, nil
}

var errBelowLimitNotMet = fmt.Errorf("ratelimit: at capacity for this minute")

// Usage reports the current minute's counter state for observability.
func (l *Limiter) Usage() (Usage, error) {
	key := minuteKey(time.Now())
	limit := l.effectiveLimit()

	var counter models.RateLimitCounter
	err := l.db.First(&counter, "minute_key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return Usage{Current: 0, Limit: limit, Remaining: limit, Percent: 0}, nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("ratelimit: usage: %w", err)
	}

	remaining := limit - counter.Count
	if remaining < 0 {
		remaining = 0
	}
	percent := 0.0
	if limit > 0 {
		percent = float64(counter.Count) / float64(limit) * 100
	}
	return Usage{Current: counter.Count, Limit: limit, Remaining: remaining, Percent: percent}, nil
}

// CleanupExpired removes counters past their TTL, a safety sweep like
// pinstore's.
func (l *Limiter) CleanupExpired() (int64, error) {
	res := l.db.Where("expires_at < ?", time.Now().UTC()).Delete(&models.RateLimitCounter{})
	return res.RowsAffected, res.Error
}

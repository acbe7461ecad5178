package ratelimit

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/talkdub/talkdub/internal/models"
)

func newTestLimiter(t *testing.T, rpm int, buffer float64) *Limiter {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RateLimitCounter{}))
	return New(db, rpm, buffer)
}

func TestAcquireSucceedsUnderLimit(t *testing.T) {
	l := newTestLimiter(t, 10, 1.0)
	ok, err := l.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	usage, err := l.Usage()
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Current)
}

func TestAcquireBoundedByEffectiveLimit(t *testing.T) {
	// rpm=10, buffer=0.5 -> effective limit 5
	l := newTestLimiter(t, 10, 0.5)

	successCount := 0
	for i := 0; i < 5; i++ {
		ok, err := l.Acquire(context.Background(), 10*time.Millisecond)
		require.NoError(t, err)
		if ok {
			successCount++
		}
	}
	assert.Equal(t, 5, successCount)

	// The 6th immediate attempt must fail within a short timeout (no
	// minute boundary will pass in 10ms).
	ok, err := l.Acquire(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConcurrentAcquireNeverExceedsLimit(t *testing.T) {
	l := newTestLimiter(t, 20, 1.0) // effective limit 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Acquire(context.Background(), 20*time.Millisecond)
			if err == nil && ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// The limiter is approximate: allow a small race-window overage,
	// never an unbounded blowout.
	assert.LessOrEqual(t, successes, 25)
}

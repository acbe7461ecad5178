package pinstore

import (
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

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PINRecord{}))
	return New(db, 72*time.Hour, 5)
}

func TestGenerateThenVerifySucceeds(t *testing.T) {
	s := newTestStore(t)
	pin, err := s.Generate("job-1")
	require.NoError(t, err)
	require.Len(t, pin, 6)

	ok, _, err := s.Verify("job-1", pin)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyWrongPinDecrementsThenLocks(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Generate("job-2")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		ok, msg, err := s.Verify("job-2", "000000")
		require.False(t, ok)
		assert.NotErrorIs(t, err, ErrLocked)
		assert.Contains(t, msg, "remaining")
	}

	ok, _, err := s.Verify("job-2", "000000")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestVerifyUnknownJobNotFound(t *testing.T) {
	s := newTestStore(t)
	ok, _, err := s.Verify("missing", "123456")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifySuccessResetsAttempts(t *testing.T) {
	s := newTestStore(t)
	pin, err := s.Generate("job-3")
	require.NoError(t, err)

	_, _, _ = s.Verify("job-3", "000000")
	_, _, _ = s.Verify("job-3", "000000")

	ok, _, err := s.Verify("job-3", pin)
	require.NoError(t, err)
	require.True(t, ok)

	var record models.PINRecord
	require.NoError(t, s.db.First(&record, "job_id = ?", "job-3").Error)
	assert.Equal(t, 0, record.Attempts)
}

func TestVerifyExpiredEntryIsNotFound(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PINRecord{}))
	s := New(db, -time.Second, 5) // entries expire on creation

	pin, err := s.Generate("job-exp")
	require.NoError(t, err)

	ok, _, err := s.Verify("job-exp", pin)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyConcurrentWrongAttemptsLockExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Generate("job-race")
	require.NoError(t, err)

	const attempts = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	locked := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.Verify("job-race", "000000")
			if err == ErrLocked {
				mu.Lock()
				locked++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	var record models.PINRecord
	require.NoError(t, s.db.First(&record, "job_id = ?", "job-race").Error)
	assert.Equal(t, 5, record.Attempts)
}

func TestGenerateOverwritesPriorEntry(t *testing.T) {
	s := newTestStore(t)
	first, err := s.Generate("job-4")
	require.NoError(t, err)
	second, err := s.Generate("job-4")
	require.NoError(t, err)

	ok, _, _ := s.Verify("job-4", first)
	assert.False(t, ok)

	ok, _, err = s.Verify("job-4", second)
	require.NoError(t, err)
	assert.True(t, ok)
}

package janitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/pinstore"
	"github.com/talkdub/talkdub/internal/ratelimit"
	"github.com/talkdub/talkdub/internal/translationcache"
)

func newTestSweeper(t *testing.T) (*Sweeper, *jobstore.Store, string) {
	t.Helper()
	dir := t.TempDir()

	store, err := jobstore.New(dir)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PINRecord{}, &models.RateLimitCounter{}, &models.TranslationCacheEntry{}))

	pinStore := pinstore.New(db, 72*time.Hour, 5)
	limiter := ratelimit.New(db, 60, 0.9)
	cache := translationcache.New(db, time.Hour)

	sweeper := New(store, pinStore, limiter, cache, dir, 7*24*time.Hour)
	return sweeper, store, dir
}

func TestRunOnceExpiresCompletedJobPastRetention(t *testing.T) {
	sweeper, store, dir := newTestSweeper(t)

	past := time.Now().UTC().Add(-time.Hour)
	job := models.Job{
		JobID:     "job-1",
		Status:    models.StatusCompleted,
		ExpiresAt: &past,
		Source:    models.Source{VideoID: "abc"},
	}
	require.NoError(t, store.Save(job))

	sweeper.runOnce()

	final, err := store.Load("job-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, final.Status)
	_ = dir
}

func TestRunOnceKeepsFailedJobUntilFailedRetentionElapses(t *testing.T) {
	sweeper, store, _ := newTestSweeper(t)
	sweeper.FailedJobRetention = 48 * time.Hour

	recentlyExpired := time.Now().UTC().Add(-time.Hour)
	job := models.Job{
		JobID:     "job-2",
		Status:    models.StatusFailed,
		ExpiresAt: &recentlyExpired,
	}
	require.NoError(t, store.Save(job))

	sweeper.runOnce()

	final, err := store.Load("job-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, final.Status)
}

func TestRunOnceLeavesUnexpiredJobsAlone(t *testing.T) {
	sweeper, store, _ := newTestSweeper(t)

	future := time.Now().UTC().Add(time.Hour)
	job := models.Job{
		JobID:     "job-3",
		Status:    models.StatusCompleted,
		ExpiresAt: &future,
	}
	require.NoError(t, store.Save(job))

	sweeper.runOnce()

	final, err := store.Load("job-3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
}

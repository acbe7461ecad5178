package jobstore

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkdub/talkdub/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	return s
}

func sampleJob(id string) models.Job {
	return models.Job{
		JobID:         id,
		SchemaVersion: models.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Status:        models.StatusQueued,
		Source:        models.Source{Platform: "youtube", VideoID: "abc123", URL: "https://youtu.be/abc123"},
		Languages:     models.Languages{Src: "ja", Tgt: "en"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	job := sampleJob("job-1")

	require.NoError(t, s.Save(job))
	require.True(t, s.Exists("job-1"))

	loaded, err := s.Load("job-1")
	require.NoError(t, err)
	assert.Equal(t, job.JobID, loaded.JobID)
	assert.Equal(t, job.Source.VideoID, loaded.Source.VideoID)
}

func TestLoadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorrupted(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.path("broken"), []byte("{not json"), 0644))

	_, err := s.Load("broken")
	assert.ErrorIs(t, err, ErrCorrupted)
}

func TestSaveNeverLeavesPartialFileAtFinalPath(t *testing.T) {
	s := newTestStore(t)
	job := sampleJob("job-2")
	require.NoError(t, s.Save(job))

	// No leftover temp file after a successful save.
	_, err := os.Stat(s.path("job-2") + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestIncrementDownloadCount(t *testing.T) {
	s := newTestStore(t)
	job := sampleJob("job-3")
	require.NoError(t, s.Save(job))

	n, err := s.IncrementDownloadCount("job-3")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncrementDownloadCount("job-3")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestIncrementDownloadCountIfBelowRejectsAtCap(t *testing.T) {
	s := newTestStore(t)
	job := sampleJob("job-cap")
	require.NoError(t, s.Save(job))

	for i := 0; i < 5; i++ {
		n, err := s.IncrementDownloadCountIfBelow("job-cap", 5)
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}

	_, err := s.IncrementDownloadCountIfBelow("job-cap", 5)
	assert.ErrorIs(t, err, ErrDownloadCapReached)

	final, err := s.Load("job-cap")
	require.NoError(t, err)
	assert.Equal(t, 5, final.DownloadCount)
}

func TestIncrementDownloadCountIfBelowConcurrentRaceStaysAtCap(t *testing.T) {
	s := newTestStore(t)
	job := sampleJob("job-race")
	require.NoError(t, s.Save(job))

	const max = 5
	const attempts = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementDownloadCountIfBelow("job-race", max); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, successes)

	final, err := s.Load("job-race")
	require.NoError(t, err)
	assert.Equal(t, max, final.DownloadCount)
}

func TestListExpired(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expiredJob := sampleJob("expired")
	expiredJob.ExpiresAt = &past
	require.NoError(t, s.Save(expiredJob))

	liveJob := sampleJob("live")
	liveJob.ExpiresAt = &future
	require.NoError(t, s.Save(liveJob))

	ids, err := s.ListExpired(now)
	require.NoError(t, err)
	assert.Equal(t, []string{"expired"}, ids)
}

func TestFindRecentByVideoID(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	job := sampleJob("recent")
	job.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, s.Save(job))

	id, found, err := s.FindRecentByVideoID("abc123", 24*time.Hour, now)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "recent", id)

	_, found, err = s.FindRecentByVideoID("nonexistent-video", 24*time.Hour, now)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteRemovesRecordAndDirectories(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	job := sampleJob("job-4")
	require.NoError(t, s.Save(job))

	require.NoError(t, os.MkdirAll(job.ScratchDir(dir), 0755))
	require.NoError(t, s.Delete(dir, "job-4", false))

	assert.False(t, s.Exists("job-4"))
	_, err = os.Stat(job.ScratchDir(dir))
	assert.True(t, os.IsNotExist(err))
}

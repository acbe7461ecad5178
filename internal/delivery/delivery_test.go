package delivery

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/talkdub/talkdub/internal/config"
	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/pinstore"
)

// fakeEnqueuer records enqueued job ids without starting a real worker.
type fakeEnqueuer struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeEnqueuer) Enqueue(jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, jobID)
	return nil
}

func (f *fakeEnqueuer) Stats() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{
		"queue_depth": len(f.ids),
		"queue_cap":   256,
		"running_job": "",
		"concurrency": 1,
		"prefetch":    1,
	}
}

func newTestHandler(t *testing.T) (*Handler, *jobstore.Store, *pinstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	store, err := jobstore.New(dir)
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.PINRecord{}))
	pins := pinstore.New(db, 72*time.Hour, 5)

	cfg := &config.Config{
		DataRoot:                    dir,
		PublicURL:                   "http://localhost:8080",
		MaxDownloadsPerJob:          5,
		SubmissionsPerHourPerClient: 1000,
		DownloadsPerMinutePerClient: 1000,
	}

	h := NewHandler(cfg, store, pins, &fakeEnqueuer{})
	return h, store, pins
}

func doJSON(t *testing.T, router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSubmitJob_AcceptsValidRequest(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h)

	body := `{"video_url":"https://youtu.be/dQw4w9WgXcQ","src_lang":"ja","tgt_lang":"en","email":"u@x.com"}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", body, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "QUEUED", resp["status"])
	assert.NotEmpty(t, resp["job_id"])
}

func TestSubmitJob_SameLanguagePairRejected(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h)

	body := `{"video_url":"https://youtu.be/dQw4w9WgXcQ","src_lang":"ja","tgt_lang":"ja","email":"u@x.com"}`
	rec := doJSON(t, router, http.MethodPost, "/api/v1/jobs", body, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitJob_DuplicateWithin24hReturnsAlreadyQueued(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h)

	body := `{"video_url":"https://youtu.be/dQw4w9WgXcQ","src_lang":"ja","tgt_lang":"en","email":"u@x.com"}`
	first := doJSON(t, router, http.MethodPost, "/api/v1/jobs", body, nil)
	require.Equal(t, http.StatusAccepted, first.Code)

	var firstResp map[string]any
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))

	second := doJSON(t, router, http.MethodPost, "/api/v1/jobs", body, nil)
	require.Equal(t, http.StatusOK, second.Code)

	var secondResp map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.Equal(t, "ALREADY_QUEUED", secondResp["status"])
	assert.Equal(t, firstResp["job_id"], secondResp["job_id"])
}

func TestAdminStats_ReflectsWorkerStats(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/admin/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["concurrency"])
	assert.Equal(t, float64(0), resp["queue_depth"])
}

func TestJobStatus_UnknownJobReturns404(t *testing.T) {
	h, _, _ := newTestHandler(t)
	router := NewRouter(h)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/does-not-exist/status", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func completedJobWithPIN(t *testing.T, store *jobstore.Store, pins *pinstore.Store, jobID string) string {
	t.Helper()
	expires := time.Now().UTC().Add(72 * time.Hour)
	job := models.Job{
		JobID:         jobID,
		SchemaVersion: models.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Status:        models.StatusCompleted,
		Source:        models.Source{Platform: "youtube", VideoID: "abc123", URL: "https://youtu.be/abc123"},
		Languages:     models.Languages{Src: "ja", Tgt: "en"},
		ExpiresAt:     &expires,
	}
	require.NoError(t, store.Save(job))
	pin, err := pins.Generate(jobID)
	require.NoError(t, err)
	return pin
}

func TestDownload_MissingPINHeaderRejected(t *testing.T) {
	h, store, pins := newTestHandler(t)
	router := NewRouter(h)
	completedJobWithPIN(t, store, pins, "job-nopin")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-nopin/download", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDownload_WrongPINFiveTimesLocks(t *testing.T) {
	h, store, pins := newTestHandler(t)
	router := NewRouter(h)
	pin := completedJobWithPIN(t, store, pins, "job-wrongpin")

	for i := 0; i < 5; i++ {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-wrongpin/download", "", map[string]string{"X-PIN": "000000"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	}

	// A sixth attempt, even with the correct PIN, must remain locked.
	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-wrongpin/download", "", map[string]string{"X-PIN": pin})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDownload_CorrectPINOnNonCompletedJobReturns400(t *testing.T) {
	h, store, pins := newTestHandler(t)
	router := NewRouter(h)

	job := models.Job{
		JobID:         "job-queued",
		SchemaVersion: models.SchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Status:        models.StatusQueued,
		Source:        models.Source{Platform: "youtube", VideoID: "xyz", URL: "https://youtu.be/xyz"},
		Languages:     models.Languages{Src: "ja", Tgt: "en"},
	}
	require.NoError(t, store.Save(job))
	pin, err := pins.Generate("job-queued")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-queued/download", "", map[string]string{"X-PIN": pin})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownload_ExpiredJobReturns410(t *testing.T) {
	h, store, pins := newTestHandler(t)
	router := NewRouter(h)

	past := time.Now().UTC().Add(-time.Hour)
	job := models.Job{
		JobID:         "job-expired",
		SchemaVersion: models.SchemaVersion,
		CreatedAt:     time.Now().UTC().Add(-100 * time.Hour),
		Status:        models.StatusCompleted,
		Source:        models.Source{Platform: "youtube", VideoID: "old1", URL: "https://youtu.be/old1"},
		Languages:     models.Languages{Src: "ja", Tgt: "en"},
		ExpiresAt:     &past,
	}
	require.NoError(t, store.Save(job))
	pin, err := pins.Generate("job-expired")
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-expired/download", "", map[string]string{"X-PIN": pin})
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestDownload_SuccessIncrementsCountExactlyOnceUnderConcurrency(t *testing.T) {
	h, store, pins := newTestHandler(t)
	router := NewRouter(h)
	pin := completedJobWithPIN(t, store, pins, "job-concurrent")

	const attempts = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-concurrent/download", "", map[string]string{"X-PIN": pin})
			if rec.Code == http.StatusOK {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, successes, "at most MaxDownloadsPerJob successes even under concurrent racing requests")

	final, err := store.Load("job-concurrent")
	require.NoError(t, err)
	assert.Equal(t, 5, final.DownloadCount)
}

func TestDownload_CapReachedReturns429(t *testing.T) {
	h, store, pins := newTestHandler(t)
	router := NewRouter(h)
	pin := completedJobWithPIN(t, store, pins, "job-cap")

	for i := 0; i < 5; i++ {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-cap/download", "", map[string]string{"X-PIN": pin})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/jobs/job-cap/download", "", map[string]string{"X-PIN": pin})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

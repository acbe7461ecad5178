package delivery

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/pinstore"
	"github.com/talkdub/talkdub/pkg/logger"
)

// DownloadJob is the delivery gate: PIN check, status check, expiry
// check, download-count cap, then archive assembly and an atomic count
// increment.
func (h *Handler) DownloadJob(c *gin.Context) {
	id := c.Param("id")

	if !h.downloadLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many download attempts, try again later"})
		return
	}

	pin := c.GetHeader("X-PIN")
	if pin == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "X-PIN header is required"})
		return
	}

	job, err := h.Store.Load(id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job record is unreadable"})
		return
	}

	ok, message, err := h.PINStore.Verify(id, pin)
	if err != nil {
		if errors.Is(err, pinstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no pin on file for this job"})
			return
		}
		if errors.Is(err, pinstore.ErrLocked) {
			c.JSON(http.StatusForbidden, gin.H{"error": message})
			return
		}
		logger.Error("delivery: pin verification error", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pin verification failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": message})
		return
	}

	if job.Status != models.StatusCompleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "download not available, status='" + string(job.Status) + "'"})
		return
	}

	if job.ExpiresAt != nil && time.Now().UTC().After(*job.ExpiresAt) {
		c.JSON(http.StatusGone, gin.H{"error": "this delivery has expired and was removed"})
		return
	}

	if job.DownloadCount >= h.Config.MaxDownloadsPerJob {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "maximum download count reached"})
		return
	}

	var buf bytes.Buffer
	if err := buildArchive(&buf, h.Config.DataRoot, job); err != nil {
		logger.Error("delivery: failed to build archive", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to assemble delivery archive"})
		return
	}

	// The cap was already checked above against a possibly-stale snapshot;
	// the check-and-increment below is the single atomic point that
	// prevents two concurrent requests from both sneaking past the cap.
	count, err := h.Store.IncrementDownloadCountIfBelow(id, h.Config.MaxDownloadsPerJob)
	if err != nil {
		if errors.Is(err, jobstore.ErrDownloadCapReached) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "maximum download count reached"})
			return
		}
		logger.Error("delivery: failed to increment download count", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record download"})
		return
	}

	filename := "talkdub_" + job.Languages.Tgt + ".zip"
	c.Header("X-Download-Count", strconv.Itoa(count))
	if job.ExpiresAt != nil {
		c.Header("X-Expires-At", job.ExpiresAt.UTC().Format(time.RFC3339))
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

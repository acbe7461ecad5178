package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
)

// JobStatus handles GET /api/v1/jobs/:id/status.
func (h *Handler) JobStatus(c *gin.Context) {
	id := c.Param("id")

	job, err := h.Store.Load(id)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "job record is unreadable"})
		return
	}

	resp := gin.H{
		"job_id":               job.JobID,
		"status":               job.Status,
		"current_phase":        job.CurrentPhase,
		"progress":             job.Progress,
		"created_at":           job.CreatedAt,
		"estimated_completion": job.CreatedAt.Add(estimatedPipelineDuration),
		"download_available":   job.Status == models.StatusCompleted,
		"download_expires_at":  job.ExpiresAt,
		"error":                job.Error,
	}

	c.JSON(http.StatusOK, resp)
}

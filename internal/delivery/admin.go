package delivery

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetQueueStats handles GET /api/v1/admin/stats, an operator-facing status
// surface reporting job-worker queue depth and concurrency. A thin
// pass-through to the worker's own stats accounting.
func (h *Handler) GetQueueStats(c *gin.Context) {
	stats := h.Worker.Stats()
	c.JSON(http.StatusOK, stats)
}

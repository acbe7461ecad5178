// Package delivery is the HTTP surface: a pool of short-lived gin
// handlers for job submission, status polling, and PIN-gated download.
// Handlers never run phases; they validate, enqueue, check, and stream.
package delivery

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"

	"github.com/talkdub/talkdub/internal/config"
	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/pinstore"
	"github.com/talkdub/talkdub/pkg/logger"
	"github.com/talkdub/talkdub/pkg/middleware"
)

// JobEnqueuer is the narrow seam into the Job Worker the submission and
// admin handlers need: enough to push a job id onto the backlog and read
// queue status without importing the worker package's full surface (avoids
// an import cycle, since the worker constructs phases that may eventually
// want delivery-side collaborators).
type JobEnqueuer interface {
	Enqueue(jobID string) error
	Stats() map[string]any
}

// Handler bundles the collaborators every delivery endpoint needs.
type Handler struct {
	Config   *config.Config
	Store    *jobstore.Store
	PINStore *pinstore.Store
	Worker   JobEnqueuer

	submitLimiter   *clientLimiter
	downloadLimiter *clientLimiter
}

// NewHandler constructs a Handler with the per-client rate limiters sized
// from config.
func NewHandler(cfg *config.Config, store *jobstore.Store, pinStore *pinstore.Store, worker JobEnqueuer) *Handler {
	return &Handler{
		Config:          cfg,
		Store:           store,
		PINStore:        pinStore,
		Worker:          worker,
		submitLimiter:   newClientLimiter(cfg.SubmissionsPerHourPerClient, time.Hour),
		downloadLimiter: newClientLimiter(cfg.DownloadsPerMinutePerClient, time.Minute),
	}
}

// NewRouter builds the gin engine: recovery, structured request logging,
// compression, CORS, and the /api/v1/jobs group, plus Swagger docs.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	logger.SetGinOutput()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinLogger())
	router.Use(middleware.CompressionMiddleware())
	router.Use(ginCORS())

	router.GET("/health", h.HealthCheck)
	router.GET("/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))

	v1 := router.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", h.SubmitJob)
			jobs.GET("/:id/status", h.JobStatus)
			jobs.GET("/:id/download", h.DownloadJob)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/stats", h.GetQueueStats)
		}
	}

	return router
}

// ginCORS wraps rs/cors as gin middleware, permissive and
// origin-echoing.
func ginCORS() gin.HandlerFunc {
	c := cors.New(cors.Options{
		AllowOriginFunc:  func(string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "X-PIN"},
		AllowCredentials: true,
	})

	return func(ctx *gin.Context) {
		c.HandlerFunc(ctx.Writer, ctx.Request)
		if ctx.Request.Method == http.MethodOptions {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}

// HealthCheck is an unauthenticated liveness probe.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

package delivery

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/talkdub/talkdub/internal/config"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/pkg/logger"
)

// duplicateWindow is how far back FindRecentByVideoID looks for an
// in-flight submission of the same video.
const duplicateWindow = 24 * time.Hour

// estimatedPipelineDuration is a rough per-job completion estimate
// surfaced to the client; it is not load-bearing, only informational.
const estimatedPipelineDuration = 20 * time.Minute

var youtubeHostPattern = regexp.MustCompile(`(?i)^(www\.|m\.)?(youtube\.com|youtu\.be)$`)
var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// submitRequest is the wire shape of POST /api/v1/jobs.
type submitRequest struct {
	VideoURL   string `json:"video_url" binding:"required"`
	SrcLang    string `json:"src_lang" binding:"required"`
	TgtLang    string `json:"tgt_lang" binding:"required"`
	Email      string `json:"email" binding:"required"`
	WebhookURL string `json:"webhook_url"`
}

// SubmitJob handles POST /api/v1/jobs: validates the request, resolves the
// video identifier, checks for an in-flight duplicate, and otherwise
// creates and enqueues a new job record.
func (h *Handler) SubmitJob(c *gin.Context) {
	if !h.submitLimiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many submissions, try again later"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	platform, videoID, err := parseSource(req.VideoURL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !config.SupportedLanguages[req.SrcLang] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported src_lang: " + req.SrcLang})
		return
	}
	if !config.SupportedLanguages[req.TgtLang] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported tgt_lang: " + req.TgtLang})
		return
	}
	if req.SrcLang == req.TgtLang {
		c.JSON(http.StatusBadRequest, gin.H{"error": "src_lang and tgt_lang must differ"})
		return
	}

	now := time.Now().UTC()
	if existingID, found, err := h.Store.FindRecentByVideoID(videoID, duplicateWindow, now); err == nil && found {
		c.JSON(http.StatusOK, gin.H{"job_id": existingID, "status": "ALREADY_QUEUED"})
		return
	}

	jobID := uuid.NewString()
	job := models.Job{
		JobID:         jobID,
		SchemaVersion: models.SchemaVersion,
		CreatedAt:     now,
		Status:        models.StatusQueued,
		Source: models.Source{
			Platform: platform,
			VideoID:  videoID,
			URL:      req.VideoURL,
		},
		Languages:      models.Languages{Src: req.SrcLang, Tgt: req.TgtLang},
		PipelineParams: models.DefaultPipelineParams(),
		UserEmail:      req.Email,
		WebhookURL:     req.WebhookURL,
	}

	if err := h.Store.Save(job); err != nil {
		logger.Error("delivery: failed to persist new job", "job_id", jobID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create job"})
		return
	}

	if err := h.Worker.Enqueue(jobID); err != nil {
		logger.Error("delivery: failed to enqueue job", "job_id", jobID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "job accepted but worker queue is full; it will be retried"})
		return
	}

	publicBase := strings.TrimRight(h.Config.PublicURL, "/")
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":               jobID,
		"status":               string(models.StatusQueued),
		"estimated_completion": now.Add(estimatedPipelineDuration),
		"status_url":           publicBase + "/api/v1/jobs/" + jobID + "/status",
		"download_url":         publicBase + "/api/v1/jobs/" + jobID + "/download",
		"message":              "job accepted and queued for processing",
	})
}

// parseSource validates the submitted URL against the accepted host
// patterns and extracts a stable video identifier. The yt-dlp-backed
// download phase only exercises YouTube in practice, so host validation is
// scoped to youtube.com/youtu.be for now.
func parseSource(rawURL string) (platform, videoID string, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", "", errInvalidURL
	}

	if !youtubeHostPattern.MatchString(u.Hostname()) {
		return "", "", errUnsupportedHost
	}

	if strings.Contains(strings.ToLower(u.Hostname()), "youtu.be") {
		id := strings.Trim(u.Path, "/")
		if !youtubeIDPattern.MatchString(id) {
			return "", "", errUnresolvableVideoID
		}
		return "youtube", id, nil
	}

	id := u.Query().Get("v")
	if !youtubeIDPattern.MatchString(id) {
		return "", "", errUnresolvableVideoID
	}
	return "youtube", id, nil
}

var (
	errInvalidURL          = errSource("video_url is not a valid URL")
	errUnsupportedHost     = errSource("this video platform is not supported")
	errUnresolvableVideoID = errSource("could not extract a video identifier from video_url")
)

type errSource string

func (e errSource) Error() string { return string(e) }

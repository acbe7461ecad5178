package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// submitRequest mirrors internal/delivery's wire shape for POST
// /api/v1/jobs.
type submitRequest struct {
	VideoURL   string `json:"video_url"`
	SrcLang    string `json:"src_lang"`
	TgtLang    string `json:"tgt_lang"`
	Email      string `json:"email"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// SubmitResponse is the decoded response of a successful submission (new
// or deduplicated).
type SubmitResponse struct {
	JobID               string `json:"job_id"`
	Status              string `json:"status"`
	EstimatedCompletion string `json:"estimated_completion"`
	StatusURL           string `json:"status_url"`
	DownloadURL         string `json:"download_url"`
	Message             string `json:"message"`
}

// SubmitJob posts a new dubbing job to the configured TalkDub server.
func SubmitJob(videoURL, srcLang, tgtLang, email string) (*SubmitResponse, error) {
	config := GetConfig()
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL not configured; run 'talkdubctl configure --server <url>'")
	}

	body, err := json.Marshal(submitRequest{
		VideoURL: videoURL,
		SrcLang:  srcLang,
		TgtLang:  tgtLang,
		Email:    email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/jobs", config.ServerURL)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("submission failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var out SubmitResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// JobStatus fetches GET /api/v1/jobs/:id/status as a raw decoded map,
// since the shape varies (current_phase and error are nullable).
func JobStatus(jobID string) (map[string]any, error) {
	config := GetConfig()
	if config.ServerURL == "" {
		return nil, fmt.Errorf("server URL not configured; run 'talkdubctl configure --server <url>'")
	}

	url := fmt.Sprintf("%s/api/v1/jobs/%s/status", config.ServerURL, jobID)
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status check failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var out map[string]any
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}

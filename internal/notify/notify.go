// Package notify delivers terminal job-outcome notifications:
// JSON-over-HTTP webhooks with a linear-backoff retry loop, behind a
// Notifier interface so the worker can fan a single completion/failure
// event out to every channel a job registered. Email delivery happens in
// an external system; the EmailNotifier here is only the seam.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/pkg/logger"
)

// Payload is the data sent to a job's registered callback on completion or
// failure.
type Payload struct {
	JobID        string           `json:"job_id"`
	Status       models.JobStatus `json:"status"`
	SrcLang      string           `json:"src_lang"`
	TgtLang      string           `json:"tgt_lang"`
	DeliveryPIN  string           `json:"delivery_pin,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CompletedAt  time.Time        `json:"completed_at"`
}

// Notifier delivers a terminal job outcome to whatever channel the job
// registered at submission time.
type Notifier interface {
	NotifyCompleted(ctx context.Context, job models.Job, deliveryPIN string)
	NotifyFailed(ctx context.Context, job models.Job, errMsg string)
}

// Dispatcher fans a notification out to every configured channel. Each
// channel's own failure is logged and swallowed; a broken webhook must
// never fail the job it is reporting on.
type Dispatcher struct {
	Webhook *WebhookNotifier
	Email   *EmailNotifier
}

// New constructs a Dispatcher with the webhook notifier always present
// and an optional email notifier.
func New(email *EmailNotifier) *Dispatcher {
	return &Dispatcher{Webhook: NewWebhookNotifier(), Email: email}
}

func (d *Dispatcher) NotifyCompleted(ctx context.Context, job models.Job, deliveryPIN string) {
	payload := Payload{
		JobID:       job.JobID,
		Status:      models.StatusCompleted,
		SrcLang:     job.Languages.Src,
		TgtLang:     job.Languages.Tgt,
		DeliveryPIN: deliveryPIN,
		CompletedAt: time.Now().UTC(),
	}
	d.dispatch(ctx, job, payload)
}

func (d *Dispatcher) NotifyFailed(ctx context.Context, job models.Job, errMsg string) {
	payload := Payload{
		JobID:        job.JobID,
		Status:       models.StatusFailed,
		SrcLang:      job.Languages.Src,
		TgtLang:      job.Languages.Tgt,
		ErrorMessage: errMsg,
		CompletedAt:  time.Now().UTC(),
	}
	d.dispatch(ctx, job, payload)
}

func (d *Dispatcher) dispatch(ctx context.Context, job models.Job, payload Payload) {
	if job.WebhookURL != "" && d.Webhook != nil {
		if err := d.Webhook.Send(ctx, job.WebhookURL, payload); err != nil {
			logger.Warn("notify: webhook delivery failed", "job_id", job.JobID, "error", err)
		}
	}
	if job.UserEmail != "" && d.Email != nil {
		if err := d.Email.Send(ctx, job.UserEmail, payload); err != nil {
			logger.Warn("notify: email delivery failed", "job_id", job.JobID, "error", err)
		}
	}
}

// WebhookNotifier POSTs a JSON payload to a job's registered callback URL,
// retrying with linear backoff (1s, 2s, ...).
type WebhookNotifier struct {
	client     *http.Client
	maxRetries int
}

// NewWebhookNotifier constructs a WebhookNotifier with a 10-second
// request timeout.
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
	}
}

// Send delivers payload to url, retrying transient failures.
func (n *WebhookNotifier) Send(ctx context.Context, url string, payload Payload) error {
	if url == "" {
		return nil
	}

	logger.Info("notify: sending webhook", "job_id", payload.JobID, "url", url, "status", payload.Status)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(i) * time.Second)
			logger.Info("notify: retrying webhook", "job_id", payload.JobID, "attempt", i+1)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "TalkDub-Webhook/1.0")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("notify: webhook request failed", "error", err, "attempt", i+1)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notify: webhook delivered", "job_id", payload.JobID, "status_code", resp.StatusCode)
			return nil
		}

		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		logger.Warn("notify: webhook returned error status", "status_code", resp.StatusCode, "attempt", i+1)
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", n.maxRetries, lastErr)
}

// EmailNotifier is a narrow stub. Outbound email is owned by a separate
// delivery system; this type keeps the seam so an SMTP backend can be
// dropped in without touching the dispatcher. Send only logs; it never
// dials out.
type EmailNotifier struct {
	From string
}

// NewEmailNotifier constructs a stub EmailNotifier.
func NewEmailNotifier(from string) *EmailNotifier {
	return &EmailNotifier{From: from}
}

// Send records that an email would have been sent. No SMTP client is
// wired here.
func (n *EmailNotifier) Send(_ context.Context, to string, payload Payload) error {
	logger.Info("notify: email delivery stubbed", "job_id", payload.JobID, "to", to, "status", payload.Status)
	return nil
}

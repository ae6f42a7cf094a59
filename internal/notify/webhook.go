package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/medgrid/scanflow/internal/config"
	"github.com/medgrid/scanflow/internal/logger"
)

// Job event names posted to the webhook.
const (
	EventCompleted = "job.completed"
	EventFailed    = "job.failed"
)

// JobEvent is the payload posted to the configured webhook when a job
// reaches a terminal state.
type JobEvent struct {
	Event    string    `json:"event"`
	JobID    string    `json:"job_id"`
	Modality string    `json:"modality"`
	Status   string    `json:"status"`
	WorkerID string    `json:"worker_id,omitempty"`
	At       time.Time `json:"at"`
}

// Webhook posts job lifecycle events to an external URL. Delivery is
// best-effort: failures are logged and never retried by the core; the
// receiving side is expected to poll job status for anything it missed.
type Webhook struct {
	client *resty.Client
	url    string
}

// NewWebhook creates a Webhook from config, or nil when no URL is set.
func NewWebhook(cfg *config.WebhookConfig) *Webhook {
	if cfg == nil || cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: client, url: cfg.URL}
}

// JobEvent posts one event. Safe to call on a nil receiver.
func (w *Webhook) JobEvent(ctx context.Context, ev JobEvent) {
	if w == nil {
		return
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(ev).
		Post(w.url)
	if err != nil {
		logger.CtxWarn(ctx, "Webhook delivery failed for job %s: %v", ev.JobID, err)
		return
	}
	if resp.IsError() {
		logger.CtxWarn(ctx, "Webhook returned %d for job %s", resp.StatusCode(), ev.JobID)
	}
}

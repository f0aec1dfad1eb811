// Package notify posts deploy outcomes to an optional webhook.
// Notification failures never change the deploy outcome.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hadeploy/hadeploy/internal/logging"
)

// Event describes a finished deploy.
type Event struct {
	Event     string `json:"event"`
	State     string `json:"state"`
	BackupID  string `json:"backup_id,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Webhook sends events via HTTP POST.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier. An empty URL yields nil, meaning
// notifications are disabled.
func NewWebhook(url string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the event, retrying once on a 5xx or network error.
func (w *Webhook) Send(ctx context.Context, event Event) error {
	if w == nil {
		return nil
	}
	if event.Timestamp == "" {
		event.Timestamp = time.Now().Format(time.RFC3339)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			break
		}
	}

	logging.Warn("notify").Err(lastErr).Msg("webhook notification failed")
	return fmt.Errorf("failed to send webhook: %w", lastErr)
}

// Package notify hands triggered alerts to the notification collaborator
// over a webhook. Delivery to trusted contacts is that service's problem;
// this package only guarantees a best-effort, at-least-once handoff that
// never feeds back into the alert's terminal state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/guardian/internal/events"
)

const maxAttempts = 3

// Notifier posts alert-raised events to the configured webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
	backoff    time.Duration

	mu      sync.Mutex
	lastDLQ time.Time
}

func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		backoff:    time.Second,
	}
}

// PostAlert delivers one alert-raised event, retrying transient failures
// with backoff. The alert is already real by the time this runs: a delivery
// failure is logged for the collaborator's retry queue, never propagated
// back into session state.
func (n *Notifier) PostAlert(ctx context.Context, raised events.AlertRaised) error {
	body, err := json.Marshal(raised)
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := n.post(ctx, body); err != nil {
			lastErr = err
			slog.Warn("alert webhook post failed",
				"alert_id", raised.AlertID,
				"attempt", attempt,
				"error", err,
			)
			select {
			case <-time.After(time.Duration(attempt) * n.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		slog.Info("alert posted to notification service", "alert_id", raised.AlertID, "attempt", attempt)
		return nil
	}
	return fmt.Errorf("post alert %s after %d attempts: %w", raised.AlertID, maxAttempts, lastErr)
}

// PostDLQAlert reports an undecodable ingress payload. It rate-limits to at
// most one alert per 30 seconds to protect against burst storms.
func (n *Notifier) PostDLQAlert(ctx context.Context, subject string, size int) error {
	n.mu.Lock()
	if time.Since(n.lastDLQ) < 30*time.Second {
		n.mu.Unlock()
		return nil
	}
	n.lastDLQ = time.Now()
	n.mu.Unlock()

	body, err := json.Marshal(map[string]any{
		"type":     "dlq_entry",
		"subject":  subject,
		"raw_size": size,
		"sent_at":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}
	return n.post(ctx, body)
}

func (n *Notifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

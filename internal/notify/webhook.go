package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type webhookMessage struct {
	RecipientID int64 `json:"recipientId"`
	Payload
}

// WebhookSink POSTs each reminder as JSON to a fixed URL.
// Any 2xx response counts as delivered.
type WebhookSink struct {
	logger *slog.Logger
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink posting to url. A zero timeout means 10 seconds.
func NewWebhookSink(logger *slog.Logger, url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		logger: logger,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSink) Notify(ctx context.Context, recipientID int64, p Payload) error {
	body, err := json.Marshal(webhookMessage{RecipientID: recipientID, Payload: p})
	if err != nil {
		return fmt.Errorf("failed to encode reminder: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post reminder: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	s.logger.Debug("Reminder posted to webhook.", "recipientID", recipientID, "eventID", p.EventID)
	return nil
}

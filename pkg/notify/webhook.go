package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts alerts as JSON to a Slack-compatible webhook.
type WebhookNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendAlert posts the alert to the webhook endpoint.
func (w *WebhookNotifier) SendAlert(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"text":  w.formatMessage(alert),
		"alert": alert,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookNotifier) formatMessage(alert Alert) string {
	prefix := map[Level]string{
		LevelInfo:     "INFO",
		LevelWarning:  "WARNING",
		LevelCritical: "CRITICAL",
	}[alert.Level]
	msg := fmt.Sprintf("[%s] %s", prefix, alert.Message)
	if alert.ManualReview {
		msg += " | MANUAL REVIEW REQUIRED"
	}
	return msg
}

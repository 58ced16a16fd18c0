// Package notify posts meal events to an optional outbound webhook.
// Delivery is best-effort: failures are logged and never propagated.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nutrilens-be/internal/pkg/logger"
)

type WebhookClient struct {
	url        string
	httpClient *http.Client
	logger     logger.ILogger
}

func NewWebhookClient(url string, log logger.ILogger) *WebhookClient {
	return &WebhookClient{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

// Notify POSTs the payload as JSON. A missing URL disables notification.
func (c *WebhookClient) Notify(ctx context.Context, payload map[string]interface{}) {
	if c.url == "" {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Warn("Webhook", "Failed to marshal payload", map[string]interface{}{"error": err.Error()})
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(body))
	if err != nil {
		c.logger.Warn("Webhook", "Failed to build request", map[string]interface{}{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Webhook", "Delivery failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		c.logger.Warn("Webhook", "Non-success status from webhook", map[string]interface{}{"status": res.StatusCode})
	}
}

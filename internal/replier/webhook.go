package replier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/concierge/internal/httpkit"
)

// Webhook posts replies as JSON to a fixed URL, for messaging gateways
// that accept outbound messages over HTTP.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// WebhookPayload is the body posted for each reply.
type WebhookPayload struct {
	BusinessID string    `json:"business_id"`
	UserID     string    `json:"user_id"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sent_at"`
}

// NewWebhook creates a webhook replier.
func NewWebhook(url string, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url: url,
		client: httpkit.NewClient(
			httpkit.WithTimeout(15*time.Second),
			httpkit.WithRetry(httpkit.Retry{
				Attempts: 2,
				Delay:    time.Second,
				Statuses: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable},
			}),
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// SendReply implements Replier.
func (w *Webhook) SendReply(ctx context.Context, businessID, userID, text string) error {
	body, err := json.Marshal(WebhookPayload{
		BusinessID: businessID,
		UserID:     userID,
		Text:       text,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 1024))
	}
	httpkit.DrainAndClose(resp.Body, 4096)
	return nil
}

package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/good-yellow-bee/logtrap/internal/models"
)

// WebhookNotifier POSTs a generic JSON payload to the configured URL.
type WebhookNotifier struct {
	httpClient *http.Client
}

// NewWebhookNotifier creates a generic webhook notifier.
func NewWebhookNotifier(client *http.Client) *WebhookNotifier {
	return &WebhookNotifier{httpClient: client}
}

// Type returns WEBHOOK.
func (w *WebhookNotifier) Type() models.ChannelType {
	return models.ChannelWebhook
}

// webhookPayload is the generic JSON body sent to webhook channels.
type webhookPayload struct {
	AlertID  string `json:"alert_id"`
	RuleID   string `json:"rule_id"`
	TrapID   string `json:"trap_id"`
	TrapName string `json:"trap_name,omitempty"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	TeamID   string `json:"team_id"`
	FiredAt  string `json:"fired_at"`
}

// Send POSTs the notification to the channel's URL.
func (w *WebhookNotifier) Send(ctx context.Context, ch *models.AlertChannel, n *Notification) error {
	url, err := ch.URL()
	if err != nil {
		return err
	}

	payload := webhookPayload{
		AlertID:  n.AlertID,
		RuleID:   n.RuleID,
		TrapID:   n.TrapID,
		TrapName: n.TrapName,
		Severity: string(n.Severity),
		Status:   string(models.StatusFired),
		Message:  n.Message,
		TeamID:   n.TeamID,
		FiredAt:  n.FiredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	return postJSON(ctx, w.httpClient, url, payload, "webhook")
}

// postJSON marshals the payload and POSTs it, treating any non-2xx
// response as an error.
func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}, name string) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s error: status %d, body: %s", name, resp.StatusCode, string(body))
	}
	return nil
}

package notifier

import (
	"context"
	"encoding/json"

	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

// EmailNotifier records intended email deliveries. SMTP delivery is not
// wired up; the notification is logged with its recipients so operators can
// confirm the routing while the mail relay integration is pending.
type EmailNotifier struct{}

// NewEmailNotifier creates an email notifier.
func NewEmailNotifier() *EmailNotifier {
	return &EmailNotifier{}
}

// Type returns EMAIL.
func (e *EmailNotifier) Type() models.ChannelType {
	return models.ChannelEmail
}

// emailConfig holds the comma-separated recipient list from the channel
// configuration.
type emailConfig struct {
	Recipients string `json:"recipients"`
}

// Send logs the intended delivery.
func (e *EmailNotifier) Send(ctx context.Context, ch *models.AlertChannel, n *Notification) error {
	var cfg emailConfig
	if err := json.Unmarshal([]byte(ch.Configuration), &cfg); err != nil {
		return err
	}

	log := logger.WithComponent("notifier")
	log.Info().
		Str("channel_id", ch.ID).
		Str("alert_id", n.AlertID).
		Str("severity", string(n.Severity)).
		Str("recipients", cfg.Recipients).
		Msg("email delivery recorded (SMTP relay not configured)")
	return nil
}

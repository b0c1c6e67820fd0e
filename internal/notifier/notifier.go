// Package notifier provides outbound notification dispatch for fired
// alerts: SSRF validation of channel configuration and best-effort delivery
// to webhook, Slack, Teams and email channels.
package notifier

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
	"github.com/good-yellow-bee/logtrap/internal/metrics"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

// Outbound call bounds: connect within 5s, full request within 10s.
const (
	connectTimeout = 5 * time.Second
	requestTimeout = 10 * time.Second
)

// Notification is the payload handed to a channel sender.
type Notification struct {
	AlertID  string          `json:"alert_id"`
	RuleID   string          `json:"rule_id"`
	TrapID   string          `json:"trap_id"`
	TrapName string          `json:"trap_name,omitempty"`
	Severity models.Severity `json:"severity"`
	Message  string          `json:"message"`
	TeamID   string          `json:"team_id"`
	FiredAt  time.Time       `json:"fired_at"`
}

// Notifier sends a notification to one channel type.
type Notifier interface {
	// Type returns the channel type this notifier serves.
	Type() models.ChannelType
	// Send delivers the notification to the channel's configured target.
	Send(ctx context.Context, ch *models.AlertChannel, n *Notification) error
}

// Dispatcher validates channel configuration and routes deliveries by
// channel type. Delivery is best-effort: failures are reported to the
// caller but never retried here.
type Dispatcher struct {
	notifiers map[models.ChannelType]Notifier
	limiter   *RateLimiter
	validator *URLValidator
}

// NewDispatcher creates a dispatcher with all built-in channel senders
// registered and default rate limiting.
func NewDispatcher() *Dispatcher {
	return NewDispatcherWithRateLimit(DefaultRateLimitConfig())
}

// NewDispatcherWithRateLimit creates a dispatcher with custom rate limit
// configuration.
func NewDispatcherWithRateLimit(config RateLimitConfig) *Dispatcher {
	client := newHTTPClient()
	d := &Dispatcher{
		notifiers: make(map[models.ChannelType]Notifier),
		limiter:   NewRateLimiter(config),
		validator: NewURLValidator(),
	}
	d.Register(NewWebhookNotifier(client))
	d.Register(NewSlackNotifier(client))
	d.Register(NewTeamsNotifier(client))
	d.Register(NewEmailNotifier())
	return d
}

// Register adds or replaces the notifier for its channel type.
func (d *Dispatcher) Register(n Notifier) {
	d.notifiers[n.Type()] = n
}

// ValidateChannelConfig checks a channel configuration document before it
// is persisted. URL-bearing channel types must carry a URL whose resolved
// host is not in a private, loopback or link-local range.
func (d *Dispatcher) ValidateChannelConfig(ctx context.Context, chType models.ChannelType, configuration string) error {
	ch := &models.AlertChannel{Type: chType, Configuration: configuration}
	if !chType.RequiresURL() {
		return nil
	}
	url, err := ch.URL()
	if err != nil {
		return err
	}
	return d.validator.Validate(ctx, url)
}

// ErrRateLimited is returned when a notification is dropped due to rate
// limiting.
var ErrRateLimited = fmt.Errorf("notification rate limited")

// Deliver sends the notification to the channel's configured target,
// routed by channel type.
func (d *Dispatcher) Deliver(ctx context.Context, ch *models.AlertChannel, n *Notification) error {
	notifier, ok := d.notifiers[ch.Type]
	if !ok {
		return errs.Validation("no notifier for channel type %q", ch.Type)
	}

	if d.limiter != nil && !d.limiter.Allow() {
		metrics.Deliveries.WithLabelValues(string(ch.Type), "rate_limited").Inc()
		return ErrRateLimited
	}

	start := time.Now()
	err := notifier.Send(ctx, ch, n)
	metrics.DeliveryDuration.WithLabelValues(string(ch.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Deliveries.WithLabelValues(string(ch.Type), "error").Inc()
		return fmt.Errorf("deliver to %s channel %s: %w", ch.Type, ch.ID, err)
	}
	metrics.Deliveries.WithLabelValues(string(ch.Type), "ok").Inc()
	return nil
}

// RateLimitStats returns the rate limiter statistics.
func (d *Dispatcher) RateLimitStats() RateLimitStats {
	if d.limiter == nil {
		return RateLimitStats{}
	}
	return d.limiter.Stats()
}

// newHTTPClient builds the outbound HTTP client shared by the URL-based
// senders.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: connectTimeout,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: connectTimeout,
		},
	}
}

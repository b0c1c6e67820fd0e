// Package alerts implements alert firing with persistent throttling and
// the FIRED -> ACKNOWLEDGED -> RESOLVED lifecycle.
package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/metrics"
	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/notifier"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// Service fires alerts for triggered traps and manages their lifecycle.
type Service struct {
	traps      storage.TrapRepository
	rules      storage.RuleRepository
	channels   storage.ChannelRepository
	history    storage.AlertHistoryRepository
	dispatcher *notifier.Dispatcher

	// now is swappable for tests.
	now func() time.Time
}

// NewService creates an alert service.
func NewService(st storage.Storage, dispatcher *notifier.Dispatcher) *Service {
	return &Service{
		traps:      st.Traps(),
		rules:      st.Rules(),
		channels:   st.Channels(),
		history:    st.AlertHistory(),
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// FireAlerts fires every active rule bound to the trap, subject to each
// rule's throttle window, and returns the alert records created. A rule
// whose throttle window holds an earlier alert is skipped. A failure on
// one rule (storage, channel lookup, delivery) is logged and does not
// affect the remaining rules.
func (s *Service) FireAlerts(ctx context.Context, teamID, trapID, message string) ([]*models.AlertHistory, error) {
	rules, err := s.rules.ListActiveByTrap(ctx, teamID, trapID)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	trap, err := s.traps.GetByID(ctx, teamID, trapID)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("alerts")

	var fired []*models.AlertHistory
	for _, rule := range rules {
		alert, err := s.fireRule(ctx, trap, rule, message)
		if err != nil {
			log.Error().Err(err).
				Str("rule_id", rule.ID).
				Str("trap_id", trapID).
				Str("team_id", teamID).
				Msg("failed to fire alert rule")
			continue
		}
		if alert != nil {
			fired = append(fired, alert)
		}
	}
	return fired, nil
}

// fireRule attempts to fire one rule. Returns (nil, nil) when the rule is
// throttled. The alert record is persisted before delivery is attempted,
// so a delivery failure never loses the alert.
func (s *Service) fireRule(ctx context.Context, trap *models.LogTrap, rule *models.AlertRule, message string) (*models.AlertHistory, error) {
	now := s.now().UTC()

	alert := &models.AlertHistory{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		TrapID:    trap.ID,
		ChannelID: rule.ChannelID,
		Severity:  rule.Severity,
		Status:    models.StatusFired,
		Message:   message,
		TeamID:    rule.TeamID,
		CreatedAt: now,
	}

	cutoff := now.Add(-rule.ThrottleWindow())
	created, err := s.history.CreateIfNoneSince(ctx, alert, cutoff)
	if err != nil {
		return nil, err
	}
	if !created {
		metrics.AlertsThrottled.Inc()
		return nil, nil
	}
	metrics.AlertsFired.WithLabelValues(string(rule.Severity)).Inc()

	s.deliver(ctx, trap, rule, alert)
	return alert, nil
}

// deliver sends the notification for a persisted alert. Delivery is
// best-effort: failures are logged, never retried, and never propagated.
func (s *Service) deliver(ctx context.Context, trap *models.LogTrap, rule *models.AlertRule, alert *models.AlertHistory) {
	log := logger.WithComponent("alerts")

	ch, err := s.channels.GetByID(ctx, rule.TeamID, rule.ChannelID)
	if err != nil {
		log.Error().Err(err).
			Str("alert_id", alert.ID).
			Str("channel_id", rule.ChannelID).
			Msg("failed to load alert channel")
		return
	}
	if !ch.IsActive {
		log.Warn().
			Str("alert_id", alert.ID).
			Str("channel_id", ch.ID).
			Msg("alert channel is inactive, skipping delivery")
		return
	}

	n := &notifier.Notification{
		AlertID:  alert.ID,
		RuleID:   rule.ID,
		TrapID:   trap.ID,
		TrapName: trap.Name,
		Severity: alert.Severity,
		Message:  alert.Message,
		TeamID:   alert.TeamID,
		FiredAt:  alert.CreatedAt,
	}
	if err := s.dispatcher.Deliver(ctx, ch, n); err != nil {
		log.Error().Err(err).
			Str("alert_id", alert.ID).
			Str("channel_id", ch.ID).
			Str("channel_type", string(ch.Type)).
			Msg("alert delivery failed")
	}
}

// Acknowledge marks a fired alert as acknowledged by the given user.
func (s *Service) Acknowledge(ctx context.Context, teamID, alertID, userID string) (*models.AlertHistory, error) {
	alert, err := s.history.GetByID(ctx, teamID, alertID)
	if err != nil {
		return nil, err
	}
	if err := alert.Acknowledge(userID, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.history.UpdateStatus(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Resolve marks an alert as resolved by the given user. Resolving an alert
// that was never acknowledged records the resolver as the acknowledger.
func (s *Service) Resolve(ctx context.Context, teamID, alertID, userID string) (*models.AlertHistory, error) {
	alert, err := s.history.GetByID(ctx, teamID, alertID)
	if err != nil {
		return nil, err
	}
	if err := alert.Resolve(userID, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.history.UpdateStatus(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Get returns one alert, scoped to the team.
func (s *Service) Get(ctx context.Context, teamID, alertID string) (*models.AlertHistory, error) {
	return s.history.GetByID(ctx, teamID, alertID)
}

// List returns a page of the team's alert history, newest first, with the
// total count for pagination.
func (s *Service) List(ctx context.Context, teamID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	return s.history.List(ctx, teamID, limit, offset)
}

// ListByTrap returns a page of alerts fired by one trap.
func (s *Service) ListByTrap(ctx context.Context, teamID, trapID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	return s.history.ListByTrap(ctx, teamID, trapID, limit, offset)
}

// ActiveCounts returns the number of unresolved alerts per severity.
func (s *Service) ActiveCounts(ctx context.Context, teamID string) (map[models.Severity]int64, error) {
	return s.history.CountActiveBySeverity(ctx, teamID)
}

// Prune deletes alert history older than the retention period and returns
// the number of rows removed.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	return s.history.DeleteBefore(ctx, s.now().UTC().Add(-retention))
}

// CreateChannel validates and persists a notification channel. URL-bearing
// channel types must pass the dispatcher's SSRF guard before the channel is
// stored.
func (s *Service) CreateChannel(ctx context.Context, ch *models.AlertChannel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	if err := s.dispatcher.ValidateChannelConfig(ctx, ch.Type, ch.Configuration); err != nil {
		return err
	}
	now := s.now().UTC()
	ch.ID = uuid.New().String()
	ch.CreatedAt = now
	ch.UpdatedAt = now
	return s.channels.Create(ctx, ch)
}

// UpdateChannel re-validates the channel, SSRF guard included, before
// persisting the edit.
func (s *Service) UpdateChannel(ctx context.Context, ch *models.AlertChannel) error {
	if err := ch.Validate(); err != nil {
		return err
	}
	if err := s.dispatcher.ValidateChannelConfig(ctx, ch.Type, ch.Configuration); err != nil {
		return err
	}
	ch.UpdatedAt = s.now().UTC()
	return s.channels.Update(ctx, ch)
}

// GetChannel returns one channel, scoped to the team.
func (s *Service) GetChannel(ctx context.Context, teamID, id string) (*models.AlertChannel, error) {
	return s.channels.GetByID(ctx, teamID, id)
}

// DeleteChannel removes a channel. Rules referencing it keep their snapshot
// id; delivery for those rules fails until they are repointed.
func (s *Service) DeleteChannel(ctx context.Context, teamID, id string) error {
	return s.channels.Delete(ctx, teamID, id)
}

// ListChannels returns all of a team's channels.
func (s *Service) ListChannels(ctx context.Context, teamID string) ([]*models.AlertChannel, error) {
	return s.channels.List(ctx, teamID)
}

// CreateRule validates and persists an alert rule. The referenced trap and
// channel must exist within the rule's team.
func (s *Service) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := s.traps.GetByID(ctx, rule.TeamID, rule.TrapID); err != nil {
		return err
	}
	if _, err := s.channels.GetByID(ctx, rule.TeamID, rule.ChannelID); err != nil {
		return err
	}
	now := s.now().UTC()
	rule.ID = uuid.New().String()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return s.rules.Create(ctx, rule)
}

// UpdateRule validates and persists rule edits. The channel reference may
// change, so it is re-checked.
func (s *Service) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if _, err := s.channels.GetByID(ctx, rule.TeamID, rule.ChannelID); err != nil {
		return err
	}
	rule.UpdatedAt = s.now().UTC()
	return s.rules.Update(ctx, rule)
}

// DeleteRule removes a rule. Its fired alerts remain in history.
func (s *Service) DeleteRule(ctx context.Context, teamID, id string) error {
	return s.rules.Delete(ctx, teamID, id)
}

// ListRules returns all of a team's rules.
func (s *Service) ListRules(ctx context.Context, teamID string) ([]*models.AlertRule, error) {
	return s.rules.List(ctx, teamID)
}

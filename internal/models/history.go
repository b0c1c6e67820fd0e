package models

import (
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
)

// AlertStatus is the lifecycle state of a fired alert. Transitions are
// monotonic: FIRED -> ACKNOWLEDGED -> RESOLVED, or FIRED -> RESOLVED.
// Nothing leaves RESOLVED.
type AlertStatus string

const (
	StatusFired        AlertStatus = "FIRED"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
)

// ParseAlertStatus converts a string to an AlertStatus.
func ParseAlertStatus(s string) (AlertStatus, error) {
	switch s {
	case "FIRED":
		return StatusFired, nil
	case "ACKNOWLEDGED":
		return StatusAcknowledged, nil
	case "RESOLVED":
		return StatusResolved, nil
	default:
		return "", errs.Validation("invalid alert status %q", s)
	}
}

// CanTransitionTo reports whether moving from s to next is a legal advance.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch s {
	case StatusFired:
		return next == StatusAcknowledged || next == StatusResolved
	case StatusAcknowledged:
		return next == StatusResolved
	default:
		return false
	}
}

// AlertHistory records one fired alert instance. Rule, trap and channel
// references are snapshotted by id at firing time.
type AlertHistory struct {
	ID             string      `json:"id"`
	RuleID         string      `json:"rule_id"`
	TrapID         string      `json:"trap_id"`
	ChannelID      string      `json:"channel_id"`
	Severity       Severity    `json:"severity"`
	Status         AlertStatus `json:"status"`
	Message        string      `json:"message"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
	ResolvedBy     string      `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time  `json:"resolved_at,omitempty"`
	TeamID         string      `json:"team_id"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Acknowledge advances the alert to ACKNOWLEDGED, stamping the actor and
// time. Acknowledging a resolved alert is a validation error.
func (h *AlertHistory) Acknowledge(userID string, at time.Time) error {
	if !h.Status.CanTransitionTo(StatusAcknowledged) {
		return errs.Validation("cannot acknowledge alert in status %s", h.Status)
	}
	h.Status = StatusAcknowledged
	h.AcknowledgedBy = userID
	h.AcknowledgedAt = &at
	return nil
}

// Resolve advances the alert to RESOLVED. A never-acknowledged alert gets
// its acknowledgment fields stamped with the same actor and time.
func (h *AlertHistory) Resolve(userID string, at time.Time) error {
	if !h.Status.CanTransitionTo(StatusResolved) {
		return errs.Validation("cannot resolve alert in status %s", h.Status)
	}
	if h.AcknowledgedAt == nil {
		h.AcknowledgedBy = userID
		h.AcknowledgedAt = &at
	}
	h.Status = StatusResolved
	h.ResolvedBy = userID
	h.ResolvedAt = &at
	return nil
}

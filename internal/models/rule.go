package models

import (
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
)

// Severity represents alert severity level.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity converts a string to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "INFO":
		return SeverityInfo, nil
	case "WARNING":
		return SeverityWarning, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return "", errs.Validation("invalid severity %q", s)
	}
}

// AlertRule connects exactly one trap to exactly one channel. Many rules may
// reference the same trap or channel; links are ID references, not pointers.
type AlertRule struct {
	ID              string    `json:"id"`
	TrapID          string    `json:"trap_id"`
	ChannelID       string    `json:"channel_id"`
	Severity        Severity  `json:"severity"`
	ThrottleMinutes int       `json:"throttle_minutes"`
	IsActive        bool      `json:"is_active"`
	TeamID          string    `json:"team_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ThrottleWindow returns the rule's throttle as a duration.
func (r *AlertRule) ThrottleWindow() time.Duration {
	return time.Duration(r.ThrottleMinutes) * time.Minute
}

// Validate checks the rule's fields.
func (r *AlertRule) Validate() error {
	if r.TrapID == "" {
		return errs.Validation("rule trap id is required")
	}
	if r.ChannelID == "" {
		return errs.Validation("rule channel id is required")
	}
	if r.TeamID == "" {
		return errs.Validation("rule team id is required")
	}
	if _, err := ParseSeverity(string(r.Severity)); err != nil {
		return err
	}
	if r.ThrottleMinutes < 1 {
		return errs.Validation("throttle_minutes must be at least 1, got %d", r.ThrottleMinutes)
	}
	return nil
}

package models

import (
	"regexp"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
)

// TrapType defines how a trap's conditions are combined.
type TrapType string

const (
	// TrapTypePattern fires when every condition matches the entry (AND).
	TrapTypePattern TrapType = "PATTERN"
	// TrapTypeFrequency fires when a threshold condition is met over a
	// trailing time window.
	TrapTypeFrequency TrapType = "FREQUENCY"
	// TrapTypeAbsence fires when no matching entry was observed in the
	// trailing time window.
	TrapTypeAbsence TrapType = "ABSENCE"
)

// ParseTrapType converts a string to a TrapType.
func ParseTrapType(s string) (TrapType, error) {
	switch s {
	case "PATTERN":
		return TrapTypePattern, nil
	case "FREQUENCY":
		return TrapTypeFrequency, nil
	case "ABSENCE":
		return TrapTypeAbsence, nil
	default:
		return "", errs.Validation("invalid trap type %q", s)
	}
}

// ConditionType defines a single predicate kind within a trap.
type ConditionType string

const (
	ConditionRegex              ConditionType = "REGEX"
	ConditionKeyword            ConditionType = "KEYWORD"
	ConditionFrequencyThreshold ConditionType = "FREQUENCY_THRESHOLD"
	ConditionAbsence            ConditionType = "ABSENCE"
)

// ParseConditionType converts a string to a ConditionType.
func ParseConditionType(s string) (ConditionType, error) {
	switch s {
	case "REGEX":
		return ConditionRegex, nil
	case "KEYWORD":
		return ConditionKeyword, nil
	case "FREQUENCY_THRESHOLD":
		return ConditionFrequencyThreshold, nil
	case "ABSENCE":
		return ConditionAbsence, nil
	default:
		return "", errs.Validation("invalid condition type %q", s)
	}
}

// Trap condition bounds.
const (
	MinTrapConditions = 1
	MaxTrapConditions = 10
)

// TrapCondition is one predicate within a trap. Conditions are owned
// exclusively by their trap and deleted with it.
type TrapCondition struct {
	ID     string        `json:"id"`
	TrapID string        `json:"trap_id"`
	Type   ConditionType `json:"type"`

	// Field is the entry field the condition inspects (REGEX/KEYWORD).
	Field string `json:"field,omitempty"`

	// Pattern is the regex, keyword, or historical match expression.
	Pattern string `json:"pattern"`

	// Threshold is the minimum count for FREQUENCY_THRESHOLD conditions.
	Threshold int `json:"threshold,omitempty"`

	// WindowSeconds is the trailing window for historical conditions.
	WindowSeconds int `json:"window_seconds,omitempty"`

	// ServiceName optionally narrows historical counting to one service.
	ServiceName string `json:"service_name,omitempty"`

	// LogLevel optionally narrows historical counting to one level.
	LogLevel LogLevel `json:"log_level,omitempty"`

	compiled *regexp.Regexp
}

// Validate checks the condition and compiles its regex if applicable.
// REGEX patterns are compiled case-insensitively unless the pattern carries
// its own inline flags.
func (c *TrapCondition) Validate() error {
	switch c.Type {
	case ConditionRegex:
		if c.Pattern == "" {
			return errs.Validation("pattern is required for REGEX condition")
		}
		if c.Field == "" {
			return errs.Validation("field is required for REGEX condition")
		}
		re, err := regexp.Compile("(?i)" + c.Pattern)
		if err != nil {
			return errs.Validation("invalid regex pattern %q: %v", c.Pattern, err)
		}
		c.compiled = re
	case ConditionKeyword:
		if c.Pattern == "" {
			return errs.Validation("pattern is required for KEYWORD condition")
		}
		if c.Field == "" {
			return errs.Validation("field is required for KEYWORD condition")
		}
	case ConditionFrequencyThreshold:
		if c.Threshold < 1 {
			return errs.Validation("threshold must be at least 1")
		}
		if c.WindowSeconds < 1 {
			return errs.Validation("window_seconds must be at least 1")
		}
	case ConditionAbsence:
		if c.WindowSeconds < 1 {
			return errs.Validation("window_seconds must be at least 1")
		}
	default:
		return errs.Validation("invalid condition type %q", string(c.Type))
	}
	return nil
}

// CompiledPattern returns the compiled regex, compiling it lazily for
// conditions loaded from storage.
func (c *TrapCondition) CompiledPattern() (*regexp.Regexp, error) {
	if c.compiled != nil {
		return c.compiled, nil
	}
	re, err := regexp.Compile("(?i)" + c.Pattern)
	if err != nil {
		return nil, errs.Validation("invalid regex pattern %q: %v", c.Pattern, err)
	}
	c.compiled = re
	return re, nil
}

// Window returns the condition's trailing window as a duration.
func (c *TrapCondition) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// LogTrap is a user-defined rule over log entries. A trap owns an ordered,
// non-empty set of conditions (1..10).
type LogTrap struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            TrapType        `json:"type"`
	Conditions      []TrapCondition `json:"conditions"`
	IsActive        bool            `json:"is_active"`
	TeamID          string          `json:"team_id"`
	CreatedBy       string          `json:"created_by,omitempty"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
	TriggerCount    int64           `json:"trigger_count"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Validate checks the trap and all of its conditions.
func (t *LogTrap) Validate() error {
	if t.Name == "" {
		return errs.Validation("trap name is required")
	}
	if t.TeamID == "" {
		return errs.Validation("trap team id is required")
	}
	if _, err := ParseTrapType(string(t.Type)); err != nil {
		return err
	}
	if len(t.Conditions) < MinTrapConditions || len(t.Conditions) > MaxTrapConditions {
		return errs.Validation("trap must have between %d and %d conditions, got %d",
			MinTrapConditions, MaxTrapConditions, len(t.Conditions))
	}
	for i := range t.Conditions {
		if err := t.Conditions[i].Validate(); err != nil {
			return errs.Validation("condition %d: %v", i+1, err)
		}
	}
	return nil
}

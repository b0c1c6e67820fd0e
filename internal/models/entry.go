// Package models contains the core data structures for the alerting core.
package models

import (
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	LevelTrace LogLevel = "TRACE"
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
	LevelFatal LogLevel = "FATAL"
)

// ParseLogLevel converts a string to a LogLevel. Unknown values are a
// validation error; levels are parsed once at the system boundary.
func ParseLogLevel(s string) (LogLevel, error) {
	switch s {
	case "TRACE", "trace":
		return LevelTrace, nil
	case "DEBUG", "debug":
		return LevelDebug, nil
	case "INFO", "info":
		return LevelInfo, nil
	case "WARN", "warn", "WARNING", "warning":
		return LevelWarn, nil
	case "ERROR", "error":
		return LevelError, nil
	case "FATAL", "fatal":
		return LevelFatal, nil
	default:
		return "", errs.Validation("invalid log level %q", s)
	}
}

// LogEntry represents a single ingested log entry. Entries are append-only:
// created once at ingestion, never mutated, and scoped to exactly one team.
type LogEntry struct {
	// ID is the unique identifier assigned at ingestion.
	ID string `json:"id"`

	// Timestamp is when the log event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Level is the severity level of the log.
	Level LogLevel `json:"level"`

	// Message is the main log message content.
	Message string `json:"message"`

	// ServiceName identifies the emitting service.
	ServiceName string `json:"service_name,omitempty"`

	// CorrelationID links entries belonging to one request or trace.
	CorrelationID string `json:"correlation_id,omitempty"`

	// TeamID is the owning team. Every read and write of this entry is
	// scoped by it.
	TeamID string `json:"team_id"`

	// SourceID identifies the ingestion source (agent, queue, API client).
	SourceID string `json:"source_id,omitempty"`

	// Fields contains additional structured attributes.
	Fields map[string]string `json:"fields,omitempty"`
}

// FieldValue returns the value of a named field for condition evaluation.
// Well-known fields are checked first, then the Fields map. The second
// return value is false when the field is absent.
func (e *LogEntry) FieldValue(field string) (string, bool) {
	switch field {
	case "level":
		return string(e.Level), true
	case "message":
		return e.Message, true
	case "service_name", "serviceName":
		return e.ServiceName, true
	case "correlation_id", "correlationId":
		return e.CorrelationID, true
	case "source_id", "sourceId":
		return e.SourceID, true
	default:
		if e.Fields == nil {
			return "", false
		}
		v, ok := e.Fields[field]
		return v, ok
	}
}

// SetField sets an additional attribute on the entry.
func (e *LogEntry) SetField(key, value string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[key] = value
}

// String returns a short human-readable representation of the entry.
func (e *LogEntry) String() string {
	return e.Timestamp.Format(time.RFC3339) + " [" + string(e.Level) + "] " + e.Message
}

package storage

import (
	"context"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/models"
)

// LogStore defines operations for log entry persistence. This is separate
// from the metadata Storage interface as entries have different access
// patterns (high-volume appends, time-series window reads).
type LogStore interface {
	// Open initializes the log store connection.
	Open() error
	// Close closes the log store connection.
	Close() error
	// Migrate creates or updates the log store schema.
	Migrate() error
	// Ping checks the connection health.
	Ping(ctx context.Context) error

	// Entries returns the entry repository.
	Entries() EntryRepository
}

// CountFilter selects entries for historical window counting. TeamID and
// the time bounds are required; the other filters narrow the count.
type CountFilter struct {
	// TeamID scopes the count to one team.
	TeamID string

	// ServiceName narrows the count to one emitting service.
	ServiceName string

	// Level narrows the count to one log level.
	Level models.LogLevel

	// Pattern is matched case-insensitively as a substring of the message.
	// Empty means every entry in the window counts.
	Pattern string

	// Since is the inclusive start of the trailing window.
	Since time.Time

	// Until is the inclusive end of the trailing window.
	Until time.Time
}

// EntryFilter selects entries for windowed reads (backtesting).
type EntryFilter struct {
	TeamID string
	Since  time.Time
	Until  time.Time
	Limit  int
	Offset int
}

// EntryRepository defines log entry operations consumed by the core.
type EntryRepository interface {
	// InsertBatch appends entries. Entries are immutable once stored.
	InsertBatch(ctx context.Context, entries []*models.LogEntry) error

	// CountMatching counts entries matching the filter, used by frequency
	// and absence conditions.
	CountMatching(ctx context.Context, f CountFilter) (int64, error)

	// Query retrieves entries in a time window, oldest first.
	Query(ctx context.Context, f EntryFilter) ([]*models.LogEntry, error)

	// DeleteBefore removes a team's entries older than the given time.
	DeleteBefore(ctx context.Context, teamID string, before time.Time) (int64, error)
}

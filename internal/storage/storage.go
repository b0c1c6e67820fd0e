// Package storage provides the persistence collaborators consumed by the
// alerting core: a SQLite metadata store for traps, rules, channels and
// alert history, and a ClickHouse store for log entries.
package storage

import (
	"context"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/models"
)

// Storage is the main interface for metadata persistence. Every repository
// method that reads or mutates team-owned rows takes the owning team id;
// no operation may observe another team's data.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Traps() TrapRepository
	Rules() RuleRepository
	Channels() ChannelRepository
	AlertHistory() AlertHistoryRepository
}

// TrapRepository defines operations for trap management. A trap exclusively
// owns its conditions; deleting the trap cascades to them.
type TrapRepository interface {
	Create(ctx context.Context, trap *models.LogTrap) error
	GetByID(ctx context.Context, teamID, id string) (*models.LogTrap, error)
	Update(ctx context.Context, trap *models.LogTrap) error
	Delete(ctx context.Context, teamID, id string) error
	List(ctx context.Context, teamID string) ([]*models.LogTrap, error)
	ListActive(ctx context.Context, teamID string) ([]*models.LogTrap, error)
	SetActive(ctx context.Context, teamID, id string, active bool) error

	// UpdateStats records a trigger: increments the trigger count and sets
	// the last-triggered timestamp.
	UpdateStats(ctx context.Context, teamID, id string, triggeredAt time.Time) error
}

// RuleRepository defines operations for alert rule management.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, teamID, id string) (*models.AlertRule, error)
	Update(ctx context.Context, rule *models.AlertRule) error
	Delete(ctx context.Context, teamID, id string) error
	List(ctx context.Context, teamID string) ([]*models.AlertRule, error)
	ListActiveByTrap(ctx context.Context, teamID, trapID string) ([]*models.AlertRule, error)
}

// ChannelRepository defines operations for notification channel management.
type ChannelRepository interface {
	Create(ctx context.Context, ch *models.AlertChannel) error
	GetByID(ctx context.Context, teamID, id string) (*models.AlertChannel, error)
	Update(ctx context.Context, ch *models.AlertChannel) error
	Delete(ctx context.Context, teamID, id string) error
	List(ctx context.Context, teamID string) ([]*models.AlertChannel, error)
	ListActive(ctx context.Context, teamID string) ([]*models.AlertChannel, error)
}

// AlertHistoryRepository defines operations for fired alert records.
type AlertHistoryRepository interface {
	// CreateIfNoneSince inserts the history row only if no row exists for
	// the same rule created at or after cutoff. It returns true when the
	// row was inserted and false when the firing was throttled. The check
	// and insert execute as one atomic statement.
	CreateIfNoneSince(ctx context.Context, h *models.AlertHistory, cutoff time.Time) (bool, error)

	// ExistsSince reports whether an alert for the rule was created at or
	// after cutoff.
	ExistsSince(ctx context.Context, teamID, ruleID string, cutoff time.Time) (bool, error)

	GetByID(ctx context.Context, teamID, id string) (*models.AlertHistory, error)
	UpdateStatus(ctx context.Context, h *models.AlertHistory) error
	List(ctx context.Context, teamID string, limit, offset int) ([]*models.AlertHistory, int64, error)
	ListByTrap(ctx context.Context, teamID, trapID string, limit, offset int) ([]*models.AlertHistory, int64, error)

	// CountActiveBySeverity returns counts of FIRED and ACKNOWLEDGED alerts
	// grouped by severity.
	CountActiveBySeverity(ctx context.Context, teamID string) (map[models.Severity]int64, error)

	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

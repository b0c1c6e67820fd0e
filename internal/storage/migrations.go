package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Trap definitions
			CREATE TABLE IF NOT EXISTS traps (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				team_id TEXT NOT NULL,
				created_by TEXT,
				last_triggered_at DATETIME,
				trigger_count INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_traps_team ON traps(team_id, is_active);

			-- Conditions are owned by their trap; deleting the trap cascades.
			CREATE TABLE IF NOT EXISTS trap_conditions (
				id TEXT PRIMARY KEY,
				trap_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				type TEXT NOT NULL,
				field TEXT,
				pattern TEXT NOT NULL DEFAULT '',
				threshold INTEGER,
				window_seconds INTEGER,
				service_name TEXT,
				log_level TEXT,
				FOREIGN KEY (trap_id) REFERENCES traps(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_conditions_trap ON trap_conditions(trap_id, position);

			-- Notification channels
			CREATE TABLE IF NOT EXISTS channels (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				configuration TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				team_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_channels_team ON channels(team_id, is_active);

			-- Alert rules: one trap, one channel
			CREATE TABLE IF NOT EXISTS alert_rules (
				id TEXT PRIMARY KEY,
				trap_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				severity TEXT NOT NULL,
				throttle_minutes INTEGER NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				team_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY (trap_id) REFERENCES traps(id) ON DELETE CASCADE,
				FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
			);
			CREATE INDEX IF NOT EXISTS idx_rules_trap ON alert_rules(team_id, trap_id, is_active);

			-- Fired alert records
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				rule_id TEXT NOT NULL,
				trap_id TEXT NOT NULL,
				channel_id TEXT NOT NULL,
				severity TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'FIRED',
				message TEXT NOT NULL,
				acknowledged_by TEXT,
				acknowledged_at DATETIME,
				resolved_by TEXT,
				resolved_at DATETIME,
				team_id TEXT NOT NULL,
				created_at DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_history_rule ON alert_history(rule_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_history_team_status ON alert_history(team_id, status);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

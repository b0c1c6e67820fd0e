package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

type sqliteTrapRepo struct {
	db *sql.DB
}

func (r *sqliteTrapRepo) Create(ctx context.Context, trap *models.LogTrap) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO traps (id, name, type, is_active, team_id, created_by,
			last_triggered_at, trigger_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		trap.ID, trap.Name, trap.Type, boolToInt(trap.IsActive), trap.TeamID,
		nullString(trap.CreatedBy), trap.LastTriggeredAt, trap.TriggerCount,
		trap.CreatedAt, trap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trap: %w", err)
	}

	if err := insertConditions(ctx, tx, trap); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *sqliteTrapRepo) GetByID(ctx context.Context, teamID, id string) (*models.LogTrap, error) {
	query := `
		SELECT id, name, type, is_active, team_id, created_by,
			last_triggered_at, trigger_count, created_at, updated_at
		FROM traps WHERE id = ? AND team_id = ?
	`
	trap, err := scanTrap(r.db.QueryRowContext(ctx, query, id, teamID))
	if err != nil {
		return nil, err
	}
	if trap == nil {
		return nil, errs.NotFound("trap", id)
	}
	if err := r.loadConditions(ctx, trap); err != nil {
		return nil, err
	}
	return trap, nil
}

func (r *sqliteTrapRepo) Update(ctx context.Context, trap *models.LogTrap) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE traps SET name = ?, type = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND team_id = ?
	`
	result, err := tx.ExecContext(ctx, query,
		trap.Name, trap.Type, boolToInt(trap.IsActive), trap.UpdatedAt,
		trap.ID, trap.TeamID,
	)
	if err != nil {
		return fmt.Errorf("update trap: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("trap", trap.ID)
	}

	// Conditions are owned by the trap: replace the set wholesale.
	if _, err := tx.ExecContext(ctx, "DELETE FROM trap_conditions WHERE trap_id = ?", trap.ID); err != nil {
		return fmt.Errorf("delete conditions: %w", err)
	}
	if err := insertConditions(ctx, tx, trap); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *sqliteTrapRepo) Delete(ctx context.Context, teamID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM traps WHERE id = ? AND team_id = ?", id, teamID)
	if err != nil {
		return fmt.Errorf("delete trap: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("trap", id)
	}
	return nil
}

func (r *sqliteTrapRepo) List(ctx context.Context, teamID string) ([]*models.LogTrap, error) {
	query := `
		SELECT id, name, type, is_active, team_id, created_by,
			last_triggered_at, trigger_count, created_at, updated_at
		FROM traps WHERE team_id = ? ORDER BY name
	`
	return r.queryTraps(ctx, query, teamID)
}

func (r *sqliteTrapRepo) ListActive(ctx context.Context, teamID string) ([]*models.LogTrap, error) {
	query := `
		SELECT id, name, type, is_active, team_id, created_by,
			last_triggered_at, trigger_count, created_at, updated_at
		FROM traps WHERE team_id = ? AND is_active = 1 ORDER BY name
	`
	return r.queryTraps(ctx, query, teamID)
}

func (r *sqliteTrapRepo) SetActive(ctx context.Context, teamID, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE traps SET is_active = ?, updated_at = ? WHERE id = ? AND team_id = ?",
		boolToInt(active), time.Now().UTC(), id, teamID,
	)
	if err != nil {
		return fmt.Errorf("set trap active: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("trap", id)
	}
	return nil
}

func (r *sqliteTrapRepo) UpdateStats(ctx context.Context, teamID, id string, triggeredAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE traps SET trigger_count = trigger_count + 1, last_triggered_at = ?
		WHERE id = ? AND team_id = ?
	`, triggeredAt, id, teamID)
	if err != nil {
		return fmt.Errorf("update trap stats: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("trap", id)
	}
	return nil
}

func (r *sqliteTrapRepo) queryTraps(ctx context.Context, query string, args ...interface{}) ([]*models.LogTrap, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query traps: %w", err)
	}
	defer rows.Close()

	var traps []*models.LogTrap
	for rows.Next() {
		trap, err := scanTrapRow(rows)
		if err != nil {
			return nil, err
		}
		traps = append(traps, trap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, trap := range traps {
		if err := r.loadConditions(ctx, trap); err != nil {
			return nil, err
		}
	}
	return traps, nil
}

func (r *sqliteTrapRepo) loadConditions(ctx context.Context, trap *models.LogTrap) error {
	query := `
		SELECT id, trap_id, type, field, pattern, threshold, window_seconds,
			service_name, log_level
		FROM trap_conditions WHERE trap_id = ? ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, trap.ID)
	if err != nil {
		return fmt.Errorf("query conditions: %w", err)
	}
	defer rows.Close()

	trap.Conditions = trap.Conditions[:0]
	for rows.Next() {
		var c models.TrapCondition
		var field, serviceName, logLevel sql.NullString
		var threshold, windowSeconds sql.NullInt64

		err := rows.Scan(&c.ID, &c.TrapID, &c.Type, &field, &c.Pattern,
			&threshold, &windowSeconds, &serviceName, &logLevel)
		if err != nil {
			return fmt.Errorf("scan condition: %w", err)
		}

		c.Field = field.String
		c.Threshold = int(threshold.Int64)
		c.WindowSeconds = int(windowSeconds.Int64)
		c.ServiceName = serviceName.String
		c.LogLevel = models.LogLevel(logLevel.String)
		trap.Conditions = append(trap.Conditions, c)
	}
	return rows.Err()
}

func insertConditions(ctx context.Context, tx *sql.Tx, trap *models.LogTrap) error {
	query := `
		INSERT INTO trap_conditions (id, trap_id, position, type, field, pattern,
			threshold, window_seconds, service_name, log_level)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i := range trap.Conditions {
		c := &trap.Conditions[i]
		c.TrapID = trap.ID
		_, err := tx.ExecContext(ctx, query,
			c.ID, c.TrapID, i, c.Type, nullString(c.Field), c.Pattern,
			nullInt(c.Threshold), nullInt(c.WindowSeconds),
			nullString(c.ServiceName), nullString(string(c.LogLevel)),
		)
		if err != nil {
			return fmt.Errorf("insert condition: %w", err)
		}
	}
	return nil
}

func scanTrap(row *sql.Row) (*models.LogTrap, error) {
	trap := &models.LogTrap{}
	var createdBy sql.NullString
	var lastTriggered sql.NullTime
	var active int

	err := row.Scan(&trap.ID, &trap.Name, &trap.Type, &active, &trap.TeamID,
		&createdBy, &lastTriggered, &trap.TriggerCount, &trap.CreatedAt, &trap.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan trap: %w", err)
	}

	trap.IsActive = active != 0
	trap.CreatedBy = createdBy.String
	if lastTriggered.Valid {
		t := lastTriggered.Time
		trap.LastTriggeredAt = &t
	}
	return trap, nil
}

func scanTrapRow(rows *sql.Rows) (*models.LogTrap, error) {
	trap := &models.LogTrap{}
	var createdBy sql.NullString
	var lastTriggered sql.NullTime
	var active int

	err := rows.Scan(&trap.ID, &trap.Name, &trap.Type, &active, &trap.TeamID,
		&createdBy, &lastTriggered, &trap.TriggerCount, &trap.CreatedAt, &trap.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan trap: %w", err)
	}

	trap.IsActive = active != 0
	trap.CreatedBy = createdBy.String
	if lastTriggered.Valid {
		t := lastTriggered.Time
		trap.LastTriggeredAt = &t
	}
	return trap, nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/logtrap/internal/errs"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

type sqliteHistoryRepo struct {
	db *sql.DB
}

// CreateIfNoneSince inserts the history row only if no row exists for the
// same rule created at or after cutoff. The guard and the insert run as one
// statement, so two concurrent firings of the same rule cannot both pass
// the throttle check.
func (r *sqliteHistoryRepo) CreateIfNoneSince(ctx context.Context, h *models.AlertHistory, cutoff time.Time) (bool, error) {
	query := `
		INSERT INTO alert_history (id, rule_id, trap_id, channel_id, severity,
			status, message, team_id, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alert_history
			WHERE rule_id = ? AND team_id = ? AND created_at >= ?
		)
	`
	result, err := r.db.ExecContext(ctx, query,
		h.ID, h.RuleID, h.TrapID, h.ChannelID, h.Severity,
		h.Status, h.Message, h.TeamID, h.CreatedAt,
		h.RuleID, h.TeamID, cutoff,
	)
	if err != nil {
		return false, fmt.Errorf("create alert history: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

func (r *sqliteHistoryRepo) ExistsSince(ctx context.Context, teamID, ruleID string, cutoff time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alert_history
		WHERE rule_id = ? AND team_id = ? AND created_at >= ?
	`, ruleID, teamID, cutoff).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count alert history: %w", err)
	}
	return n > 0, nil
}

func (r *sqliteHistoryRepo) GetByID(ctx context.Context, teamID, id string) (*models.AlertHistory, error) {
	query := `
		SELECT id, rule_id, trap_id, channel_id, severity, status, message,
			acknowledged_by, acknowledged_at, resolved_by, resolved_at,
			team_id, created_at
		FROM alert_history WHERE id = ? AND team_id = ?
	`
	h := &models.AlertHistory{}
	var ackBy, resBy sql.NullString
	var ackAt, resAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, id, teamID).Scan(
		&h.ID, &h.RuleID, &h.TrapID, &h.ChannelID, &h.Severity, &h.Status,
		&h.Message, &ackBy, &ackAt, &resBy, &resAt, &h.TeamID, &h.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("alert", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert history: %w", err)
	}

	h.AcknowledgedBy = ackBy.String
	if ackAt.Valid {
		t := ackAt.Time
		h.AcknowledgedAt = &t
	}
	h.ResolvedBy = resBy.String
	if resAt.Valid {
		t := resAt.Time
		h.ResolvedAt = &t
	}
	return h, nil
}

func (r *sqliteHistoryRepo) UpdateStatus(ctx context.Context, h *models.AlertHistory) error {
	query := `
		UPDATE alert_history SET status = ?, acknowledged_by = ?,
			acknowledged_at = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND team_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		h.Status, nullString(h.AcknowledgedBy), h.AcknowledgedAt,
		nullString(h.ResolvedBy), h.ResolvedAt, h.ID, h.TeamID,
	)
	if err != nil {
		return fmt.Errorf("update alert status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("alert", h.ID)
	}
	return nil
}

func (r *sqliteHistoryRepo) List(ctx context.Context, teamID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alert_history WHERE team_id = ?", teamID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history: %w", err)
	}

	query := `
		SELECT id, rule_id, trap_id, channel_id, severity, status, message,
			acknowledged_by, acknowledged_at, resolved_by, resolved_at,
			team_id, created_at
		FROM alert_history WHERE team_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
	histories, err := r.queryHistories(ctx, query, teamID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

func (r *sqliteHistoryRepo) ListByTrap(ctx context.Context, teamID, trapID string, limit, offset int) ([]*models.AlertHistory, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alert_history WHERE team_id = ? AND trap_id = ?",
		teamID, trapID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history by trap: %w", err)
	}

	query := `
		SELECT id, rule_id, trap_id, channel_id, severity, status, message,
			acknowledged_by, acknowledged_at, resolved_by, resolved_at,
			team_id, created_at
		FROM alert_history WHERE team_id = ? AND trap_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
	histories, err := r.queryHistories(ctx, query, teamID, trapID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, nil
}

// CountActiveBySeverity counts FIRED and ACKNOWLEDGED alerts per severity,
// the live open-incidents view. Resolved alerts are excluded.
func (r *sqliteHistoryRepo) CountActiveBySeverity(ctx context.Context, teamID string) (map[models.Severity]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM alert_history
		WHERE team_id = ? AND status IN ('FIRED', 'ACKNOWLEDGED')
		GROUP BY severity
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("count active alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Severity]int64)
	for rows.Next() {
		var severity models.Severity
		var n int64
		if err := rows.Scan(&severity, &n); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		counts[severity] = n
	}
	return counts, rows.Err()
}

func (r *sqliteHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM alert_history WHERE created_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete alert history: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteHistoryRepo) queryHistories(ctx context.Context, query string, args ...interface{}) ([]*models.AlertHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var histories []*models.AlertHistory
	for rows.Next() {
		h := &models.AlertHistory{}
		var ackBy, resBy sql.NullString
		var ackAt, resAt sql.NullTime

		err := rows.Scan(&h.ID, &h.RuleID, &h.TrapID, &h.ChannelID, &h.Severity,
			&h.Status, &h.Message, &ackBy, &ackAt, &resBy, &resAt,
			&h.TeamID, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}

		h.AcknowledgedBy = ackBy.String
		if ackAt.Valid {
			t := ackAt.Time
			h.AcknowledgedAt = &t
		}
		h.ResolvedBy = resBy.String
		if resAt.Valid {
			t := resAt.Time
			h.ResolvedAt = &t
		}
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

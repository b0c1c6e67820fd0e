package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/logtrap/internal/errs"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

func (r *sqliteRuleRepo) Create(ctx context.Context, rule *models.AlertRule) error {
	query := `
		INSERT INTO alert_rules (id, trap_id, channel_id, severity,
			throttle_minutes, is_active, team_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.TrapID, rule.ChannelID, rule.Severity,
		rule.ThrottleMinutes, boolToInt(rule.IsActive), rule.TeamID,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, teamID, id string) (*models.AlertRule, error) {
	query := `
		SELECT id, trap_id, channel_id, severity, throttle_minutes,
			is_active, team_id, created_at, updated_at
		FROM alert_rules WHERE id = ? AND team_id = ?
	`
	rule, err := scanRule(r.db.QueryRowContext(ctx, query, id, teamID))
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, errs.NotFound("rule", id)
	}
	return rule, nil
}

func (r *sqliteRuleRepo) Update(ctx context.Context, rule *models.AlertRule) error {
	query := `
		UPDATE alert_rules SET channel_id = ?, severity = ?,
			throttle_minutes = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND team_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		rule.ChannelID, rule.Severity, rule.ThrottleMinutes,
		boolToInt(rule.IsActive), rule.UpdatedAt, rule.ID, rule.TeamID,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("rule", rule.ID)
	}
	return nil
}

func (r *sqliteRuleRepo) Delete(ctx context.Context, teamID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM alert_rules WHERE id = ? AND team_id = ?", id, teamID)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("rule", id)
	}
	return nil
}

func (r *sqliteRuleRepo) List(ctx context.Context, teamID string) ([]*models.AlertRule, error) {
	query := `
		SELECT id, trap_id, channel_id, severity, throttle_minutes,
			is_active, team_id, created_at, updated_at
		FROM alert_rules WHERE team_id = ? ORDER BY created_at
	`
	return r.queryRules(ctx, query, teamID)
}

func (r *sqliteRuleRepo) ListActiveByTrap(ctx context.Context, teamID, trapID string) ([]*models.AlertRule, error) {
	query := `
		SELECT id, trap_id, channel_id, severity, throttle_minutes,
			is_active, team_id, created_at, updated_at
		FROM alert_rules
		WHERE team_id = ? AND trap_id = ? AND is_active = 1
		ORDER BY created_at
	`
	return r.queryRules(ctx, query, teamID, trapID)
}

func (r *sqliteRuleRepo) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule := &models.AlertRule{}
		var active int
		err := rows.Scan(&rule.ID, &rule.TrapID, &rule.ChannelID, &rule.Severity,
			&rule.ThrottleMinutes, &active, &rule.TeamID, &rule.CreatedAt, &rule.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rule.IsActive = active != 0
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(row *sql.Row) (*models.AlertRule, error) {
	rule := &models.AlertRule{}
	var active int
	err := row.Scan(&rule.ID, &rule.TrapID, &rule.ChannelID, &rule.Severity,
		&rule.ThrottleMinutes, &active, &rule.TeamID, &rule.CreatedAt, &rule.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	rule.IsActive = active != 0
	return rule, nil
}

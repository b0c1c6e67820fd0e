package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/logtrap/internal/errs"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

type sqliteChannelRepo struct {
	db *sql.DB
}

func (r *sqliteChannelRepo) Create(ctx context.Context, ch *models.AlertChannel) error {
	query := `
		INSERT INTO channels (id, name, type, configuration, is_active,
			team_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		ch.ID, ch.Name, ch.Type, ch.Configuration, boolToInt(ch.IsActive),
		ch.TeamID, ch.CreatedAt, ch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (r *sqliteChannelRepo) GetByID(ctx context.Context, teamID, id string) (*models.AlertChannel, error) {
	query := `
		SELECT id, name, type, configuration, is_active, team_id, created_at, updated_at
		FROM channels WHERE id = ? AND team_id = ?
	`
	ch := &models.AlertChannel{}
	var active int
	err := r.db.QueryRowContext(ctx, query, id, teamID).Scan(
		&ch.ID, &ch.Name, &ch.Type, &ch.Configuration, &active,
		&ch.TeamID, &ch.CreatedAt, &ch.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("channel", id)
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.IsActive = active != 0
	return ch, nil
}

func (r *sqliteChannelRepo) Update(ctx context.Context, ch *models.AlertChannel) error {
	query := `
		UPDATE channels SET name = ?, type = ?, configuration = ?,
			is_active = ?, updated_at = ?
		WHERE id = ? AND team_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		ch.Name, ch.Type, ch.Configuration, boolToInt(ch.IsActive),
		ch.UpdatedAt, ch.ID, ch.TeamID,
	)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("channel", ch.ID)
	}
	return nil
}

func (r *sqliteChannelRepo) Delete(ctx context.Context, teamID, id string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM channels WHERE id = ? AND team_id = ?", id, teamID)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errs.NotFound("channel", id)
	}
	return nil
}

func (r *sqliteChannelRepo) List(ctx context.Context, teamID string) ([]*models.AlertChannel, error) {
	query := `
		SELECT id, name, type, configuration, is_active, team_id, created_at, updated_at
		FROM channels WHERE team_id = ? ORDER BY name
	`
	return r.queryChannels(ctx, query, teamID)
}

func (r *sqliteChannelRepo) ListActive(ctx context.Context, teamID string) ([]*models.AlertChannel, error) {
	query := `
		SELECT id, name, type, configuration, is_active, team_id, created_at, updated_at
		FROM channels WHERE team_id = ? AND is_active = 1 ORDER BY name
	`
	return r.queryChannels(ctx, query, teamID)
}

func (r *sqliteChannelRepo) queryChannels(ctx context.Context, query string, args ...interface{}) ([]*models.AlertChannel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.AlertChannel
	for rows.Next() {
		ch := &models.AlertChannel{}
		var active int
		err := rows.Scan(&ch.ID, &ch.Name, &ch.Type, &ch.Configuration, &active,
			&ch.TeamID, &ch.CreatedAt, &ch.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.IsActive = active != 0
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

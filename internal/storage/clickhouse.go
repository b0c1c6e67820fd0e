package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for entry retention.
	RetentionDays int
}

// ClickHouseStore implements LogStore for ClickHouse.
type ClickHouseStore struct {
	config  *ClickHouseConfig
	db      *sql.DB
	entries *clickhouseEntryRepo
}

// NewClickHouseStore creates a new ClickHouse log store.
func NewClickHouseStore(config *ClickHouseConfig) *ClickHouseStore {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}

	return &ClickHouseStore{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseStore) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	s.entries = &clickhouseEntryRepo{db: db}
	return nil
}

// Close closes the database connection.
func (s *ClickHouseStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Migrate creates the entries table if it doesn't exist.
func (s *ClickHouseStore) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS log_entries (
			id UUID DEFAULT generateUUIDv4(),
			timestamp DateTime64(3, 'UTC'),
			level LowCardinality(String),
			message String,
			service_name LowCardinality(String) DEFAULT '',
			correlation_id String DEFAULT '',
			team_id LowCardinality(String),
			source_id String DEFAULT '',
			fields String DEFAULT '{}',
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (team_id, service_name, level, timestamp, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create log_entries table: %w", err)
	}

	// Idempotent in ClickHouse; skip failures on versions without support.
	indexes := []string{
		"ALTER TABLE log_entries ADD INDEX IF NOT EXISTS idx_message message TYPE tokenbf_v1(32768, 3, 0) GRANULARITY 4",
		"ALTER TABLE log_entries ADD INDEX IF NOT EXISTS idx_correlation correlation_id TYPE bloom_filter(0.01) GRANULARITY 4",
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			log := logger.WithComponent("clickhouse")
			log.Warn().Err(err).Msg("failed to create index")
		}
	}

	return nil
}

// Ping checks the connection health.
func (s *ClickHouseStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Entries returns the entry repository.
func (s *ClickHouseStore) Entries() EntryRepository {
	return s.entries
}

// clickhouseEntryRepo implements EntryRepository for ClickHouse.
type clickhouseEntryRepo struct {
	db *sql.DB
}

func (r *clickhouseEntryRepo) InsertBatch(ctx context.Context, entries []*models.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_entries (id, timestamp, level, message, service_name,
			correlation_id, team_id, source_id, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = uuid.New().String()
		}
		fields := "{}"
		if len(e.Fields) > 0 {
			data, err := json.Marshal(e.Fields)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("marshal fields: %w", err)
			}
			fields = string(data)
		}

		_, err := stmt.ExecContext(ctx, id, e.Timestamp, string(e.Level),
			e.Message, e.ServiceName, e.CorrelationID, e.TeamID, e.SourceID, fields)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("append entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (r *clickhouseEntryRepo) CountMatching(ctx context.Context, f CountFilter) (int64, error) {
	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT count() FROM log_entries WHERE team_id = ?")
	args = append(args, f.TeamID)

	if !f.Since.IsZero() {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, f.Until)
	}
	if f.ServiceName != "" {
		sb.WriteString(" AND service_name = ?")
		args = append(args, f.ServiceName)
	}
	if f.Level != "" {
		sb.WriteString(" AND level = ?")
		args = append(args, string(f.Level))
	}
	if f.Pattern != "" {
		sb.WriteString(" AND positionCaseInsensitive(message, ?) > 0")
		args = append(args, f.Pattern)
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, sb.String(), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

func (r *clickhouseEntryRepo) Query(ctx context.Context, f EntryFilter) ([]*models.LogEntry, error) {
	var sb strings.Builder
	var args []interface{}

	sb.WriteString(`
		SELECT id, timestamp, level, message, service_name, correlation_id,
			team_id, source_id, fields
		FROM log_entries WHERE team_id = ?
	`)
	args = append(args, f.TeamID)

	if !f.Since.IsZero() {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		sb.WriteString(" AND timestamp <= ?")
		args = append(args, f.Until)
	}

	sb.WriteString(" ORDER BY timestamp ASC")

	limit := f.Limit
	if limit == 0 {
		limit = 1000
	}
	sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	if f.Offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", f.Offset))
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		e := &models.LogEntry{}
		var level, fields string
		err := rows.Scan(&e.ID, &e.Timestamp, &level, &e.Message,
			&e.ServiceName, &e.CorrelationID, &e.TeamID, &e.SourceID, &fields)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Level = models.LogLevel(level)
		if fields != "" && fields != "{}" {
			if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal fields: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *clickhouseEntryRepo) DeleteBefore(ctx context.Context, teamID string, before time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT count() FROM log_entries WHERE team_id = ? AND timestamp < ?",
		teamID, before).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}

	// ALTER TABLE DELETE is asynchronous in ClickHouse.
	_, err = r.db.ExecContext(ctx,
		"ALTER TABLE log_entries DELETE WHERE team_id = ? AND timestamp < ?",
		teamID, before)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}

	return count, nil
}

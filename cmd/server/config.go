// Package main provides the logtrap server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/good-yellow-bee/logtrap/internal/ingest"
	"github.com/good-yellow-bee/logtrap/internal/pipeline"
)

// Config represents the server configuration.
type Config struct {
	Server     ingest.HTTPConfig  `yaml:"server"`
	SQLite     SQLiteConfig       `yaml:"sqlite"`
	ClickHouse ClickHouseConfig   `yaml:"clickhouse"`
	Kafka      ingest.KafkaConfig `yaml:"kafka"`
	Pipeline   pipeline.Config    `yaml:"pipeline"`
	Notify     NotifyConfig       `yaml:"notify"`
	History    HistoryConfig      `yaml:"history"`
	Log        LogConfig          `yaml:"log"`
	Verbose    bool               `yaml:"-"` // set via CLI flag
}

// SQLiteConfig contains metadata store settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // database file path (default: data/logtrap.db)
}

// ClickHouseConfig contains log store connection settings.
type ClickHouseConfig struct {
	Addresses     []string      `yaml:"addresses"`
	Database      string        `yaml:"database"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	Compression   bool          `yaml:"compression"`
	RetentionDays int           `yaml:"retention_days"`
}

// NotifyConfig contains notification delivery settings.
type NotifyConfig struct {
	RateLimitEnabled bool          `yaml:"rate_limit_enabled"`
	MaxPerWindow     int           `yaml:"max_per_window"`
	Window           time.Duration `yaml:"window"`
}

// HistoryConfig contains alert history retention settings.
type HistoryConfig struct {
	RetentionDays int           `yaml:"retention_days"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // trace, debug, info, warn, error
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	c.Server.SetDefaults()
	c.Kafka.SetDefaults()
	if c.SQLite.Path == "" {
		c.SQLite.Path = "data/logtrap.db"
	}
	if len(c.ClickHouse.Addresses) == 0 {
		c.ClickHouse.Addresses = []string{"localhost:9000"}
	}
	if c.ClickHouse.Database == "" {
		c.ClickHouse.Database = "logtrap"
	}
	if c.ClickHouse.DialTimeout == 0 {
		c.ClickHouse.DialTimeout = 5 * time.Second
	}
	if c.ClickHouse.RetentionDays == 0 {
		c.ClickHouse.RetentionDays = 30
	}
	if c.Notify.MaxPerWindow == 0 {
		c.Notify.MaxPerWindow = 10
	}
	if c.Notify.Window == 0 {
		c.Notify.Window = time.Minute
	}
	if c.History.RetentionDays == 0 {
		c.History.RetentionDays = 90
	}
	if c.History.PruneInterval == 0 {
		c.History.PruneInterval = time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}
	if len(c.ClickHouse.Addresses) == 0 {
		return fmt.Errorf("clickhouse.addresses is required")
	}
	if c.ClickHouse.Database == "" {
		return fmt.Errorf("clickhouse.database is required")
	}
	if c.ClickHouse.RetentionDays < 1 {
		return fmt.Errorf("clickhouse.retention_days must be at least 1")
	}
	if c.History.RetentionDays < 1 {
		return fmt.Errorf("history.retention_days must be at least 1")
	}
	if c.History.PruneInterval < time.Minute {
		return fmt.Errorf("history.prune_interval must be at least 1m")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Pipeline.QueueSize < 0 {
		return fmt.Errorf("pipeline.queue_size must not be negative")
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must not be negative")
	}
	return nil
}

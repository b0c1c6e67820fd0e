package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/metrics"
	"github.com/good-yellow-bee/logtrap/internal/models"
	"github.com/good-yellow-bee/logtrap/internal/storage"
)

// teamIDHeader is the Kafka message header carrying the tenant id.
const teamIDHeader = "team-id"

// KafkaConfig contains Kafka consumer configuration.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// SetDefaults applies default values for missing configuration.
func (c *KafkaConfig) SetDefaults() {
	if c.Topic == "" {
		c.Topic = "log-entries"
	}
	if c.GroupID == "" {
		c.GroupID = "logtrap-ingest"
	}
}

// Consumer reads log entries from Kafka and feeds them into storage and
// the evaluation pipeline. Malformed messages are skipped and counted;
// there is no retry or dead-letter handling.
type Consumer struct {
	reader   *kafka.Reader
	entries  storage.EntryRepository
	pipeline Publisher
}

// NewConsumer creates a Kafka consumer.
func NewConsumer(config KafkaConfig, entries storage.EntryRepository, p Publisher) (*Consumer, error) {
	config.SetDefaults()
	if len(config.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        config.Brokers,
		Topic:          config.Topic,
		GroupID:        config.GroupID,
		MinBytes:       1,
		MaxBytes:       10 << 20,
		CommitInterval: time.Second,
	})
	return &Consumer{reader: reader, entries: entries, pipeline: p}, nil
}

// Run consumes messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	log := logger.WithComponent("kafka")
	log.Info().Str("topic", c.reader.Config().Topic).Msg("kafka consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read kafka message: %w", err)
		}
		c.handle(ctx, msg)
	}
}

// Close shuts down the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// handle processes one message. Invalid messages are logged and skipped so
// a bad producer cannot stall the partition.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := logger.WithComponent("kafka")

	teamID := headerValue(msg, teamIDHeader)
	if teamID == "" {
		metrics.IngestRejected.WithLabelValues("kafka", "missing_team").Inc()
		log.Warn().Int64("offset", msg.Offset).Msg("skipping message without team-id header")
		return
	}

	var req entryRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		metrics.IngestRejected.WithLabelValues("kafka", "bad_json").Inc()
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping malformed message")
		return
	}

	entry, err := req.toEntry(teamID)
	if err != nil {
		metrics.IngestRejected.WithLabelValues("kafka", "validation").Inc()
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("skipping invalid entry")
		return
	}

	if err := c.entries.InsertBatch(ctx, []*models.LogEntry{entry}); err != nil {
		log.Error().Err(err).Str("entry_id", entry.ID).Msg("failed to store kafka entry")
		return
	}
	metrics.EntriesIngested.WithLabelValues("kafka").Inc()

	if err := c.pipeline.Publish(entry); err != nil {
		log.Warn().Str("entry_id", entry.ID).Msg("evaluation queue full, entry stored but not evaluated")
	}
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/logtrap/internal/alerts"
	"github.com/good-yellow-bee/logtrap/internal/ingest"
	"github.com/good-yellow-bee/logtrap/internal/logger"
	"github.com/good-yellow-bee/logtrap/internal/notifier"
	"github.com/good-yellow-bee/logtrap/internal/pipeline"
	"github.com/good-yellow-bee/logtrap/internal/storage"
	"github.com/good-yellow-bee/logtrap/internal/traps"
	"github.com/good-yellow-bee/logtrap/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "logtrap-server",
	Short: "LogTrap Server - Log trap evaluation and alerting",
	Long: `LogTrap Server ingests log entries, evaluates them against
configured traps, and fires throttled alerts to notification channels.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("logtrap-server %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "ingest HTTP listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	if httpAddr != "" {
		cfg.Server.Address = httpAddr
	}
	cfg.Verbose = verbose

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	logger.Init(level)
	log := logger.WithComponent("server")

	// Metadata store
	dbDir := filepath.Dir(cfg.SQLite.Path)
	if err := os.MkdirAll(dbDir, 0750); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	store := storage.NewSQLiteStorage(cfg.SQLite.Path)
	if err := store.Open(); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info().Str("path", cfg.SQLite.Path).Msg("metadata store initialized")

	// Log store
	logStore := storage.NewClickHouseStore(&storage.ClickHouseConfig{
		Addresses:     cfg.ClickHouse.Addresses,
		Database:      cfg.ClickHouse.Database,
		Username:      cfg.ClickHouse.Username,
		Password:      cfg.ClickHouse.Password,
		DialTimeout:   cfg.ClickHouse.DialTimeout,
		Compression:   cfg.ClickHouse.Compression,
		RetentionDays: cfg.ClickHouse.RetentionDays,
	})
	if err := logStore.Open(); err != nil {
		return fmt.Errorf("open log store: %w", err)
	}
	defer logStore.Close()

	if err := logStore.Migrate(); err != nil {
		return fmt.Errorf("migrate log store: %w", err)
	}
	log.Info().Strs("addresses", cfg.ClickHouse.Addresses).Msg("log store initialized")

	// Services
	dispatcher := notifier.NewDispatcherWithRateLimit(notifier.RateLimitConfig{
		MaxPerWindow: cfg.Notify.MaxPerWindow,
		Window:       cfg.Notify.Window,
		Enabled:      cfg.Notify.RateLimitEnabled,
	})
	trapSvc := traps.NewService(store.Traps(), logStore.Entries())
	alertSvc := alerts.NewService(store, dispatcher)

	pipe := pipeline.New(trapSvc, alertSvc, cfg.Pipeline)

	httpServer := ingest.NewHTTPServer(cfg.Server, logStore.Entries(), pipe)

	// Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pipe.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Alert history retention
	g.Go(func() error {
		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		ticker := time.NewTicker(cfg.History.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				deleted, err := alertSvc.Prune(gctx, retention)
				if err != nil {
					log.Error().Err(err).Msg("alert history prune failed")
					continue
				}
				if deleted > 0 {
					log.Info().Int64("deleted", deleted).Msg("pruned alert history")
				}
			}
		}
	})

	if cfg.Kafka.Enabled {
		consumer, err := ingest.NewConsumer(cfg.Kafka, logStore.Entries(), pipe)
		if err != nil {
			return fmt.Errorf("create kafka consumer: %w", err)
		}
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(gctx)
		})
	}

	log.Info().Str("version", config.Version).Msg("logtrap-server started")

	err := g.Wait()
	pipe.Stop()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("run server: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}

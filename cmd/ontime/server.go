package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/ontime/internal/api"
	"github.com/goodtune/ontime/internal/config"
	"github.com/goodtune/ontime/internal/engine"
	"github.com/goodtune/ontime/internal/identity"
	"github.com/goodtune/ontime/internal/metrics"
	"github.com/goodtune/ontime/internal/storage"
	"github.com/goodtune/ontime/internal/storage/redis"
	"github.com/goodtune/ontime/internal/storage/snapshot"
	"github.com/goodtune/ontime/internal/storage/sqlite"
	"github.com/goodtune/ontime/internal/systemd"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start OnTime server",
	Long:  `Start the OnTime server with the presence ingest API, periodic flush scheduler, and metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting OnTime")

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	// Initialize identity resolver
	resolver := buildResolver(cfg.Identity, logger)

	// Initialize accounting engine
	eng := engine.New(store, resolver, engine.RealClock{}, logger)

	if err := eng.Restore(cmd.Context()); err != nil {
		logger.Warn().Err(err).Msg("Failed to read restore point")
	}

	// Start flush scheduler
	flushInterval := parseDuration(cfg.Flush.Interval, time.Hour)
	flushTimeout := parseDuration(cfg.Flush.Timeout, 30*time.Second)
	scheduler := engine.NewScheduler(eng, flushInterval, flushTimeout, logger)
	scheduler.Start()

	logger.Info().
		Dur("interval", flushInterval).
		Msg("Flush scheduler started")

	// Start API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{ListenAddr: apiAddr}, eng, logger)

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	logger.Info().
		Str("addr", apiAddr).
		Msg("API Server started")

	// Start metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)

	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	logger.Info().
		Str("addr", metricsAddr).
		Msg("Metrics Server started")

	logger.Info().Msg("OnTime startup complete")

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for signals (shutdown or flush)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	// Signal handling loop
	for {
		sig := <-sigChan

		switch sig {
		case syscall.SIGHUP:
			logger.Info().Msg("SIGHUP received, flushing open sessions...")
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			if _, err := eng.Flush(ctx); err != nil {
				logger.Error().Err(err).Msg("Failed to flush sessions")
			}
			cancel()
			continue

		case os.Interrupt, syscall.SIGTERM:
			logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		}

		// Only reached on shutdown signals
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	// Stop servers
	scheduler.Stop()

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API Server")
	}

	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping Metrics Server")
	}

	// Final flush: open sessions must reach the store before exit
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if run, err := eng.Flush(ctx); err != nil {
		logger.Error().Err(err).Msg("Final flush failed, open sessions lost")
	} else {
		logger.Info().
			Int("entries", run.Entries).
			Msg("Final flush complete")
	}

	logger.Info().Msg("OnTime stopped")

	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "sqlite":
		return sqlite.Open(cfg.Path)
	case "snapshot":
		return snapshot.Open(cfg.Path)
	case "redis":
		return redis.Open(redis.Config{
			Addr:         cfg.Redis.Addr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  parseDuration(cfg.Redis.DialTimeout, 5*time.Second),
			ReadTimeout:  parseDuration(cfg.Redis.ReadTimeout, 3*time.Second),
			WriteTimeout: parseDuration(cfg.Redis.WriteTimeout, 3*time.Second),
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func buildResolver(cfg config.IdentityConfig, logger zerolog.Logger) identity.Resolver {
	if cfg.Endpoint == "" {
		return nil
	}

	inner := identity.NewHTTPResolver(cfg.Endpoint, parseDuration(cfg.Timeout, 5*time.Second))
	return identity.NewCached(inner, cfg.CacheSize, parseDuration(cfg.CacheTTL, time.Hour), logger)
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	// Set output format
	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

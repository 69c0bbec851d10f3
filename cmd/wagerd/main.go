package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"wagerchain/config"
	"wagerchain/core"
	"wagerchain/explorer"
	"wagerchain/gateway/routes"
	"wagerchain/observability/logging"
	telemetry "wagerchain/observability/otel"
	"wagerchain/storage"
)

const envOverride = "WAGER_ENV"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "wagerd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv(envOverride)); override != "" {
		env = override
	}
	logger := logging.SetupWithOptions("wagerd", env, loggingOptions(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "wagerd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	opts, err := cfg.NodeOptions()
	if err != nil {
		return err
	}
	opts.Logger = logger
	node, err := core.NewNode(db, opts)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	logger.Info("node ready",
		slog.String("authority", cfg.PlatformAuthority),
		slog.Uint64("treasury", node.TreasuryLedger()))

	var history routes.History
	if !cfg.Explorer.Disabled {
		gdb, err := explorer.Open(cfg.Explorer.Driver, explorerDSN(cfg))
		if err != nil {
			return fmt.Errorf("open explorer: %w", err)
		}
		indexer, err := explorer.NewIndexer(gdb, logger.With(slog.String("component", "explorer")), 0)
		if err != nil {
			return err
		}
		defer indexer.Close()
		unsubscribe := node.Subscribe(indexer.Handle)
		defer unsubscribe()
		history = indexer
	}

	if cfg.Gateway.Disabled {
		logger.Info("gateway disabled, waiting for shutdown signal")
		<-ctx.Done()
		return nil
	}

	gwCfg, err := loadGatewayConfig(configPath, cfg, env, logger)
	if err != nil {
		return err
	}
	gw, err := newGateway(gwCfg, node, history, logger)
	if err != nil {
		return err
	}
	defer gw.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Serve()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway: %w", err)
		}
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}

func loggingOptions(cfg *config.Config) logging.Options {
	opts := logging.Options{Level: cfg.Logging.Level}
	if path := strings.TrimSpace(cfg.Logging.File); path != "" {
		opts.File = &logging.FileOptions{
			Path:       resolvePath(cfg.DataDir, path),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   true,
		}
	}
	return opts
}

// explorerDSN places relative sqlite databases inside the data directory.
func explorerDSN(cfg *config.Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Explorer.Driver))
	dsn := strings.TrimSpace(cfg.Explorer.DSN)
	if driver != "" && driver != "sqlite" {
		return dsn
	}
	if dsn == "" {
		dsn = "explorer.db"
	}
	if strings.HasPrefix(dsn, "file:") || dsn == ":memory:" {
		return dsn
	}
	return resolvePath(cfg.DataDir, dsn)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

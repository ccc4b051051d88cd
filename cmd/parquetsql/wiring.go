package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/parquetsql/parquetsql/internal/config"
	"github.com/parquetsql/parquetsql/internal/executor"
	"github.com/parquetsql/parquetsql/internal/observability"
	duckdbengine "github.com/parquetsql/parquetsql/internal/query/duckdb"
	"github.com/parquetsql/parquetsql/internal/storage"
	s3store "github.com/parquetsql/parquetsql/internal/storage/s3"
	"github.com/parquetsql/parquetsql/internal/workspace"
)

func loadConfig(serviceName string) (config.Config, error) {
	cfg, err := config.LoadFromEnv(serviceName)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openObjectStore returns nil when no object store is configured.
func openObjectStore(ctx context.Context, cfg config.Config) (storage.ObjectStore, error) {
	if !cfg.ObjectStore.Enabled() {
		return nil, nil
	}
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		Bucket:          cfg.ObjectStore.Bucket,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		UseSSL:          cfg.ObjectStore.UseSSL,
		Prefix:          cfg.ObjectStore.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize object store: %w", err)
	}
	return store, nil
}

func newWorkspace(ctx context.Context, cfg config.Config, logger *slog.Logger) (*workspace.Workspace, error) {
	store, err := openObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	engineCfg := duckdbengine.DefaultConfig()
	engineCfg.DiskPath = cfg.Engine.DiskPath
	engineCfg.MemoryLimit = cfg.Engine.MemoryLimit
	engineCfg.Threads = cfg.Engine.Threads
	engineCfg.TempDirectory = cfg.Engine.TempDirectory
	engineCfg.PreserveInsertionOrder = cfg.Engine.PreserveInsertionOrder
	engineCfg.StagingDirectory = cfg.Engine.StagingDirectory

	opts := duckdbengine.Options{Logger: logger, Store: store}

	executorOpts := executor.DefaultOptions()
	executorOpts.ShutdownTimeout = cfg.Executor.ShutdownTimeout
	return &workspace.Workspace{
		Opener: workspace.DuckDBOpener(engineCfg, opts),
		Config: workspace.Config{
			PageSize:      cfg.Results.PageSize,
			HistogramBins: cfg.Charts.HistogramBins,
			Executor:      executorOpts,
		},
		Logger: logger,
	}, nil
}

func closeWorkspace(ws *workspace.Workspace, cfg config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Executor.ShutdownTimeout+executor.DefaultOptions().ShutdownGrace)
	defer cancel()
	if err := ws.Close(ctx); err != nil {
		logger.Error("failed to close workspace", slog.Any("error", err))
	}
}

// stderrLogger keeps log records off stdout, which interactive commands own. Unless
// verbose, records below warn are dropped.
func stderrLogger(cfg config.Config, verbose bool) *slog.Logger {
	if !verbose && cfg.Observability.LogLevel < slog.LevelWarn {
		cfg.Observability.LogLevel = slog.LevelWarn
	}
	return observability.NewLogger(cfg, os.Stderr)
}

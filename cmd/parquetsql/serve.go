package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parquetsql/parquetsql/internal/api"
	"github.com/parquetsql/parquetsql/internal/api/uistatic"
	"github.com/parquetsql/parquetsql/internal/auth"
	"github.com/parquetsql/parquetsql/internal/observability"
)

func newServeCommand() *cobra.Command {
	var (
		addr    string
		noUI    bool
		waitCap time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and browser console",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("parquetsql-api")
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Address = addr
			}

			logger := observability.NewLogger(cfg, os.Stdout)
			ws, err := newWorkspace(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeWorkspace(ws, cfg, logger)

			deps := api.Dependencies{
				Logger:   logger,
				Sessions: ws,
				Readiness: api.CombineReadinessChecks(
					api.CheckObjectStoreConfig(cfg),
					api.CheckStagingDirectory(cfg.Engine.StagingDirectory),
				),
				DependencyTimeout: time.Second,
				QueryWaitLimit:    waitCap,
			}
			if !noUI {
				deps.UI = uistatic.Handler()
			}
			if cfg.Auth.Required {
				validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
				if err != nil {
					return err
				}
				deps.AuthMiddleware = auth.RequireAPIKey(logger, validator)
			}

			handler := api.NewHandler(cfg, deps)
			server := &http.Server{
				Addr:         cfg.HTTP.Address,
				Handler:      handler,
				ReadTimeout:  cfg.HTTP.ReadTimeout,
				WriteTimeout: cfg.HTTP.WriteTimeout,
				IdleTimeout:  cfg.HTTP.IdleTimeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("api server failed", slog.Any("error", err))
					serveErr <- err
					stop()
				}
			}()

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			logger.Info("shutting down api server")
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown failed", slog.Any("error", err))
				_ = server.Close()
				return err
			}
			select {
			case err := <-serveErr:
				return err
			default:
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides PARQUETSQL_HTTP_ADDR)")
	cmd.Flags().BoolVar(&noUI, "no-ui", false, "Do not serve the browser console")
	cmd.Flags().DurationVar(&waitCap, "max-query-wait", 30*time.Second, "Longest a query request may wait for completion")
	return cmd
}

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/parquetsql/parquetsql/internal/repl"
)

func newShellCommand() *cobra.Command {
	var (
		historyPath string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "shell [FILE]",
		Short: "Start an interactive SQL shell",
		Long:  "Start an interactive SQL shell. FILE, when given, is opened and its first rows are shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("parquetsql-shell")
			if err != nil {
				return err
			}
			logger := stderrLogger(cfg, verbose)
			ws, err := newWorkspace(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeWorkspace(ws, cfg, logger)

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			terminal := repl.NewTerminal(historyPath)
			defer func() {
				if err := terminal.Close(); err != nil {
					logger.Warn("failed to save shell history", slog.Any("error", err))
				}
			}()

			shell := &repl.Shell{
				Workspace:  ws,
				Input:      terminal,
				Out:        cmd.OutOrStdout(),
				Interrupts: interrupts,
				Logger:     logger,
			}
			if len(args) == 1 {
				if err := shell.Open(cmd.Context(), args[0]); err != nil {
					return err
				}
			}
			return shell.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&historyPath, "history", defaultHistoryPath(), "Shell history file (empty disables history)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine and session activity to stderr")
	return cmd
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".parquetsql_history")
}

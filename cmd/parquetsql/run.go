package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parquetsql/parquetsql/internal/executor"
	"github.com/parquetsql/parquetsql/internal/repl"
)

func newRunCommand() *cobra.Command {
	var (
		exportPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "run FILE [SQL]",
		Short: "Run one statement against a file and print the first page",
		Long:  "Open FILE, run SQL (or the default preview query) and print the first page of the result. With --export the rows are written to a file instead.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("parquetsql-run")
			if err != nil {
				return err
			}
			logger := stderrLogger(cfg, verbose)
			ws, err := newWorkspace(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeWorkspace(ws, cfg, logger)

			session, err := ws.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			sqlText := strings.TrimSpace(strings.Join(args[1:], " "))
			if sqlText == "" {
				sqlText = session.DefaultQuery()
			}

			if exportPath != "" {
				if err := session.Export(cmd.Context(), sqlText, exportPath); err != nil {
					return fmt.Errorf("export: %w", err)
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "exported to %s\n", exportPath)
				return err
			}

			interrupts := make(chan os.Signal, 1)
			signal.Notify(interrupts, os.Interrupt)
			defer signal.Stop(interrupts)

			shell := &repl.Shell{Workspace: ws, Out: cmd.OutOrStdout(), Interrupts: interrupts, Logger: logger}
			shell.Use(session)
			event, err := shell.Exec(cmd.Context(), sqlText)
			if err != nil {
				return err
			}
			if event.State != executor.Completed {
				return fmt.Errorf("query %s", event.State)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&exportPath, "export", "", "Write the result to this .parquet, .csv or .tsv path (local or s3://)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine and session activity to stderr")
	return cmd
}

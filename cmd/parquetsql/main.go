package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set by build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "parquetsql",
		Short:         "Query parquet, csv and tsv files with SQL",
		Long:          "parquetsql loads tabular files into an embedded DuckDB database and runs SQL against them from a shell, one-shot commands or an HTTP API.",
		Version:       fmt.Sprintf("%s (commit: %s)", Version, Commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newShellCommand(),
		newRunCommand(),
		newServeCommand(),
		newSampleCommand(),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "parquetsql %s (commit: %s)\n", Version, Commit)
			return err
		},
	}
}

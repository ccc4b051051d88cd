package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parquetsql/parquetsql/internal/demo/sample"
)

func newSampleCommand() *cobra.Command {
	defaults, envErr := sample.LoadConfigFromEnv(os.LookupEnv)
	if envErr != nil {
		defaults = sample.DefaultConfig()
	}
	cfg := defaults
	var uploadPrefix string

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Write a sample events dataset as parquet, csv and tsv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if envErr != nil {
				return envErr
			}
			paths, err := sample.Write(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, path := range paths {
				fmt.Fprintln(out, path)
			}
			if !cmd.Flags().Changed("upload") {
				return nil
			}

			appCfg, err := loadConfig("parquetsql-sample")
			if err != nil {
				return err
			}
			store, err := openObjectStore(cmd.Context(), appCfg)
			if err != nil {
				return err
			}
			if store == nil {
				return fmt.Errorf("--upload needs PARQUETSQL_OBJECTSTORE_ENDPOINT and PARQUETSQL_OBJECTSTORE_BUCKET")
			}
			locations, err := sample.Upload(cmd.Context(), store, uploadPrefix, paths)
			if err != nil {
				return err
			}
			for _, location := range locations {
				fmt.Fprintln(out, location)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Dir, "out", defaults.Dir, "Output directory")
	cmd.Flags().StringVar(&cfg.BaseName, "name", defaults.BaseName, "Base file name without extension")
	cmd.Flags().IntVar(&cfg.Rows, "rows", defaults.Rows, "Number of events to generate")
	cmd.Flags().Int64Var(&cfg.Seed, "seed", defaults.Seed, "Random seed")
	cmd.Flags().IntVar(&cfg.UserCardinality, "users", defaults.UserCardinality, "Number of distinct users")
	cmd.Flags().StringVar(&uploadPrefix, "upload", "", "Also upload the files to the configured object store under this key prefix")
	return cmd
}

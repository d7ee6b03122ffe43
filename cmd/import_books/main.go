package main

import (
	"fmt"
	"os"

	"reading-log/config"
	"reading-log/library"
	"reading-log/logger"

	"github.com/spf13/cobra"
)

func main() {
	if err := newImportCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

const importLong = `Import books from a CSV file. The header row must name the title and
author columns; published_year, genre and memo are optional. Invalid rows are
reported and skipped, and the valid ones are written to the data file in a
single save.`

func newImportCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "import_books <file.csv>",
		Short:         "Import books from a CSV file with title and author columns",
		Long:          importLong,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(logger.Options{FilePath: cfg.LogFilePath, Debug: cfg.Debug})
			defer log.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			manager, err := library.Open(cfg.DataFilePath, library.WithLogger(log))
			if err != nil {
				return fmt.Errorf("open %s: %w", cfg.DataFilePath, err)
			}
			defer manager.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Importing books from %s into %s...\n", args[0], cfg.DataFilePath)
			res, err := importBooks(f, manager, out)
			if err != nil {
				return err
			}
			printSummary(out, manager, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.DataFilePath, "data-file", cfg.DataFilePath, "data file to import into")
	return cmd
}

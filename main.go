package main

import (
	"fmt"
	"io"
	"os"

	"reading-log/config"
	"reading-log/library"
	"reading-log/logger"
	"reading-log/shell"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd(config.Load()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree with flag defaults taken from cfg.
func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "reading-log",
		Short:         "Keep a personal reading log of books and diary entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withManager(cfg, func(mgr *library.LibraryManager) error {
				fmt.Fprintf(cmd.ErrOrStderr(), "Data file: %s\n", cfg.DataFilePath)
				return shell.New(mgr, cmd.InOrStdin(), cmd.OutOrStdout()).Run()
			})
		},
	}
	root.PersistentFlags().StringVar(&cfg.DataFilePath, "data-file", cfg.DataFilePath,
		"path of the data file (.json, or .db/.sqlite for SQLite)")
	root.PersistentFlags().StringVar(&cfg.LogFilePath, "log-file", cfg.LogFilePath, "optional rotating log file")
	root.PersistentFlags().BoolVar(&cfg.Debug, "debug", cfg.Debug, "log debug output to stderr")

	root.AddCommand(newBooksCmd(&cfg), newEntriesCmd(&cfg))
	return root
}

func newBooksCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "books [query]",
		Short: "List books, or search them by title or author",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(*cfg, func(mgr *library.LibraryManager) error {
				query := ""
				if len(args) == 1 {
					query = args[0]
				}
				return printBooks(cmd.OutOrStdout(), mgr.SearchBooks(query))
			})
		},
	}
}

func newEntriesCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "entries <book-id> [query]",
		Short: "List a book's diary entries, or search them",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(*cfg, func(mgr *library.LibraryManager) error {
				book, ok := mgr.GetBook(args[0])
				if !ok {
					return fmt.Errorf("book %s not found", args[0])
				}
				query := ""
				if len(args) == 2 {
					query = args[1]
				}
				entries := mgr.SearchDiaryEntries(book.ID, query)
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s\n", book)
				if len(entries) == 0 {
					fmt.Fprintln(out, "No diary entries.")
					return nil
				}
				shell.PrintEntries(out, entries, 100)
				return nil
			})
		},
	}
}

func printBooks(w io.Writer, books []library.Book) error {
	if len(books) == 0 {
		_, err := fmt.Fprintln(w, "No books found.")
		return err
	}
	shell.PrintBooks(w, books, 100)
	return nil
}

// withManager owns the manager's lifetime for one command.
func withManager(cfg config.Config, fn func(*library.LibraryManager) error) error {
	log := logger.New(logger.Options{FilePath: cfg.LogFilePath, Debug: cfg.Debug})
	defer log.Sync()

	mgr, err := library.Open(cfg.DataFilePath, library.WithLogger(log))
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DataFilePath, err)
	}
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()
	return fn(mgr)
}

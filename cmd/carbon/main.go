package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/smukkama/carbon-footprint/internal/app"
	"github.com/smukkama/carbon-footprint/internal/database"
	"github.com/smukkama/carbon-footprint/internal/history"
	"github.com/smukkama/carbon-footprint/pkg/config"
)

var args struct {
	debug       bool
	historyPath string
	postgres    bool
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "carbon",
		Short:         "Estimate, record and analyze daily carbon emissions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVar(&args.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&args.historyPath, "history", "data/history.csv", "CSV history file")
	cmd.PersistentFlags().BoolVar(&args.postgres, "postgres", false, "use the configured Postgres database instead of the CSV history file")

	cmd.AddCommand(calculateCmd(), analyzeCmd(), newsCmd(), exportCmd(), importCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand needs
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  history.Store
	close  func() error
}

func setup(cmd *cobra.Command) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := app.NewLogger(cmd.ErrOrStderr(), args.debug)

	if !args.postgres {
		return &env{cfg: cfg, logger: logger, store: history.NewCSVFileStore(args.historyPath), close: func() error { return nil }}, nil
	}

	db, err := database.Connect(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations("migrations", logger); err != nil {
		db.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, store: db, close: db.Close}, nil
}

func (e *env) pipeline(ctx context.Context) (*app.Pipeline, error) {
	return app.NewPipeline(ctx, e.cfg, app.Options{Store: e.store, Logger: e.logger})
}

func printf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, format, a...)
}

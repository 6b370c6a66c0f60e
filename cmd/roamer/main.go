package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/roamer/internal/config"
	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "roamer",
		Short:         "Plan trips and map the places you visit",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default $ROAMER_CONFIG)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the web server",
			Args:  cobra.NoArgs,
			RunE:  runServe,
		},
		&cobra.Command{
			Use:       "migrate up|down|status",
			Short:     "Apply, roll back or inspect database migrations",
			Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
			ValidArgs: []string{"up", "down", "status"},
			RunE:      runMigrate,
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Delete expired sessions and sign-in tokens",
			Args:  cobra.NoArgs,
			RunE:  runCleanup,
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// setup loads config, configures logging and opens the database with its
// migrations applied.
func setup() (config.Config, *database.DB, *slog.Logger, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return cfg, nil, nil, err
	}
	db, err := database.Connect(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return cfg, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, db, logger, nil
}

func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logging.Setup(cfg.LogLevel, cfg.LogFormat), nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.Dial(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(args[0]); err != nil {
		return err
	}
	logger.Info("migrate done", "command", args[0], "driver", db.Driver)
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, db, logger, err := setup()
	if err != nil {
		return err
	}
	defer db.Close()

	srv, closeDeps, err := buildServer(cmd.Context(), cfg, db, logger)
	if err != nil {
		return err
	}
	defer closeDeps()
	return srv.Cleanup(cmd.Context())
}

// Package cmd implements the reel-scout command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"reel-scout/config"
	"reel-scout/database"
	"reel-scout/logger"
)

var (
	// cfgFile is the optional YAML configuration path.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "reel-scout",
		Short:         "Feed discovery agent for promotional accounts and their links",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); .env and environment variables override it")

	rootCmd.AddCommand(
		newServeCmd(),
		newRunCmd(),
		newCreateSessionCmd(),
		newAddAccountCmd(),
		newAddTargetAppCmd(),
	)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

// env is what every command needs before doing real work.
type env struct {
	cfg  *config.Config
	log  logger.Logger
	db   *sqlx.DB
	repo *database.Repository
}

// setup loads configuration, builds the logger and opens a migrated database.
func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	db, err := database.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: db, repo: database.NewRepository(db)}, nil
}

func (e *env) Close() {
	_ = e.log.Sync()
	e.db.Close()
}

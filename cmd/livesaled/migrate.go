package main

import (
	"log"

	"github.com/spf13/cobra"

	"livesale-backend/internal/db"
)

func newMigrateCommand(opts *rootOptions, logger *log.Logger) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Create or update the database schema and exit",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.ConfigPath, logger)
			if err != nil {
				return err
			}
			// Init migrates only when auto_migrate is set; migrate always does.
			cfg.Database.AutoMigrate = false
			gormDB, err := db.Init(&cfg.Database)
			if err != nil {
				return err
			}
			if err := db.Migrate(gormDB); err != nil {
				return err
			}
			logger.Println("migrations applied")
			return nil
		},
	}
}

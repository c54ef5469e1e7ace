package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"toolhub/config"
	"toolhub/db"
	"toolhub/logging"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create or update every table, the one-open-loan-per-item indexes and
the loan item check. Loans stored as overdue by older versions are reset
to active; overdue is computed from the due date.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := logging.New(cfg.LogLevel)
		ctx := cmd.Context()

		gdb, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()

		n, err := db.Migrate(gdb)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info(ctx, "schema migrated", "overdue_normalized", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

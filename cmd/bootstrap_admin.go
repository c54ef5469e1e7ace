package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"toolhub/app"
	"toolhub/config"
	"toolhub/db"
	"toolhub/logging"
)

var bootstrapEmail string

var bootstrapAdminCmd = &cobra.Command{
	Use:   "bootstrap-admin",
	Short: "Print a registration link for the first admin",
	Long: `Create an admin invite while no admin exists and print its link.
The address comes from --email or BOOTSTRAP_ADMIN_EMAIL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if e := strings.ToLower(strings.TrimSpace(bootstrapEmail)); e != "" {
			cfg.BootstrapEmail = e
		}
		if cfg.BootstrapEmail == "" {
			return errors.New("no email: pass --email or set BOOTSTRAP_ADMIN_EMAIL")
		}
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

		link, err := app.BootstrapFirstAdmin(ctx, cfg, db.NewRepo(gdb), log)
		if err != nil {
			return err
		}
		if link == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "an admin already exists; nothing to do")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), link)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(bootstrapAdminCmd)
	bootstrapAdminCmd.Flags().StringVar(&bootstrapEmail, "email", "", "admin email address")
}

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "toolhub",
	Short: "Community tool library backend",
	Long: `toolhub serves the tool library API: catalog, loan requests and the
loan lifecycle, maintenance records and passkey sign-in.

Settings come from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

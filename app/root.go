// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tempora",
	Short: "Tempora is a web-based time tracking service for teams",
	Long: `Tempora is a web-based time tracking service for teams with
role-based access control and directory-backed account provisioning.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

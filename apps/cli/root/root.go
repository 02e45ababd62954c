package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the admin CLI. Subcommands (tenant, sync) are attached here.
var rootCmd = &cobra.Command{
	Use:           "copilot-saver",
	Short:         "Copilot metric saver admin CLI",
	Long:          "Administrative utilities for the Copilot metric saver (tenant management, manual sync runs).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}

// Package app provides the entry point for the photolink command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jotterhq/photolink/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "photolink",
	DisableAutoGenTag: true,
	Short:             "photolink connects a journal user's photo library over OAuth2",
	Long: `photolink runs the photo-library connection service for the journal app.
It drives the OAuth2 authorization-code flow against the photo provider,
stores per-user tokens, refreshes them transparently, and serves randomly
selected photos to the journal UI.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		_ = viper.BindPFlag("debug", cmd.Root().PersistentFlags().Lookup("debug"))
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the photolink service.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}

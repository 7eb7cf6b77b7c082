// Package cli holds the chat-client commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"chat-client/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "chat-client",
	Short: "Realtime chat client for the admin dashboard",
	Long: `chat-client talks to the dashboard chat backend over REST and STOMP.

Available commands:
  rooms        List the rooms visible to the configured user
  session      Open an interactive chat session
  devserver    Run a local chat backend for development
  version      Print the version

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadDotEnv()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

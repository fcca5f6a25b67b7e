package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "stream-service",
	Short:        "Livestream core: viewer presence, chat rooms and stream lifecycle",
	Long:         `HTTP + WebSocket API. Commands: serve, migrate, sweep.`,
	RunE:         runServe, // default: same as "stream-service serve"
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

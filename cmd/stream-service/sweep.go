package main

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one presence sweep and exit",
	RunE:  runSweep,
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(false)
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.sweeper.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	logger.Info().
		Int64("deleted", result.Deleted).
		Int("recomputed", result.Recomputed).
		Int64("live_viewers", result.LiveTotal).
		Msg("sweep finished")
	return nil
}

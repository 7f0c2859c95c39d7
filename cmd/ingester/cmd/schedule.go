package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jobfeed/jobfeed/internal/ingester"
)

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs ingestion on the configured schedule until stopped",
		RunE:  runScheduled,
	}
	return cmd
}

func runScheduled(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return ingester.RunScheduled(config)
}

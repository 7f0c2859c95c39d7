package cmd

import (
	"github.com/spf13/cobra"

	"github.com/jobfeed/jobfeed/internal/ingester"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Performs a single ingestion run and exits",
		RunE:  runOnce,
	}
	cmd.Flags().StringSlice("source", []string{}, "Only ingest the named sources (repeat or separate with commas)")
	return cmd
}

func runOnce(cmd *cobra.Command, _ []string) error {
	names, err := cmd.Flags().GetStringSlice("source")
	if err != nil {
		return err
	}
	config, err := loadConfig()
	if err != nil {
		return err
	}
	return ingester.RunOnce(config, names)
}

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jobfeed/jobfeed/internal/common"
	"github.com/jobfeed/jobfeed/internal/common/config"
	"github.com/jobfeed/jobfeed/internal/ingester"
)

const (
	CustomConfigLocation string = "config"
)

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "ingester",
		SilenceUsage: true,
		Short:        "Pulls job postings from the configured sources into the posting store",
	}

	cmd.PersistentFlags().StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)")
	_ = viper.BindPFlag(CustomConfigLocation, cmd.PersistentFlags().Lookup(CustomConfigLocation))

	cmd.AddCommand(
		runCmd(),
		scheduleCmd(),
		migrateDbCmd(),
	)

	return cmd
}

func loadConfig() (ingester.Configuration, error) {
	var cfg ingester.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&cfg, "./config/ingester", userSpecifiedConfigs)

	err := cfg.Validate()
	if err != nil {
		config.LogValidationErrors(err)
	}
	return cfg, err
}

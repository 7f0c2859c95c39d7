package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jobfeed/jobfeed/internal/common"
	commonconfig "github.com/jobfeed/jobfeed/internal/common/config"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/queryapi"
)

const (
	CustomConfigLocation = "config"
)

func init() {
	pflag.StringSlice(
		CustomConfigLocation,
		[]string{},
		"Fully qualified path to application configuration file (for multiple config files repeat this arg or separate paths with commas)",
	)
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.ConfigureLoggingMetrics(metrics.QueryApiMetricsPrefix)
	common.BindCommandlineArguments()

	var config queryapi.Configuration
	userSpecifiedConfigs := viper.GetStringSlice(CustomConfigLocation)

	common.LoadConfig(&config, "./config/queryapi", userSpecifiedConfigs)
	if err := commonconfig.Validate(config); err != nil {
		commonconfig.LogValidationErrors(err)
		os.Exit(1)
	}
	if err := queryapi.Run(config); err != nil {
		log.WithError(err).Error("query api exited with error")
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/jobfeed/jobfeed/cmd/ingester/cmd"
	"github.com/jobfeed/jobfeed/internal/common"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
)

func main() {
	common.ConfigureLogging()
	common.ConfigureLoggingMetrics(metrics.IngesterMetricsPrefix)
	common.BindCommandlineArguments()
	err := cmd.RootCmd().Execute()
	if err != nil {
		os.Exit(1)
	}
}

package ingester

import (
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
)

const DefaultCronExpression = "@every 6h"

type ScheduleConfig struct {
	// Standard five field cron expression or a descriptor such as "@every 6h".
	Cron         string
	RunOnStartup bool
}

// Schedule calls run on every tick of config.Cron until ctx is done. A tick that fires while the previous run is
// still going is skipped.
func Schedule(ctx *feedcontext.Context, config ScheduleConfig, run func(ctx *feedcontext.Context)) error {
	expr := config.Cron
	if expr == "" {
		expr = DefaultCronExpression
	}
	logger := cron.PrintfLogger(log.StandardLogger())
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(expr, func() { run(ctx) }); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", expr)
	}

	if config.RunOnStartup {
		run(ctx)
	}

	ctx.Log.Infof("ingestion scheduled with %q", expr)
	c.Start()
	<-ctx.Done()
	ctx.Log.Info("stopping schedule, waiting for the current run")
	<-c.Stop().Done()
	return nil
}

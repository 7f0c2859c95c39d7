package queryapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/app"
	"github.com/jobfeed/jobfeed/internal/common/database"
	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/common/health"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/store/postgres"
)

const defaultShutdownTimeout = 5 * time.Second

func Run(config Configuration) error {
	g, ctx := feedcontext.ErrGroup(app.CreateContextWithShutdown())

	db, err := database.OpenPgxPool(ctx, config.Postgres)
	if err != nil {
		return errors.WithMessage(err, "error creating postgres pool")
	}
	defer db.Close()

	m := metrics.NewMetrics(metrics.QueryApiMetricsPrefix, prometheus.DefaultRegisterer)
	postingStore := postgres.NewPostingStore(db, m)
	engine := NewEngine(postingStore, config.EngineConfig(), m)
	checker := health.NewMultiChecker(health.NewPingChecker("postgres", 5*time.Second, postingStore.Ping))

	shutdownTimeout := config.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.HttpPort),
		Handler:           NewRouter(NewPostingsHandler(engine, clock.RealClock{}), checker),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		return app.ServeHttp(ctx, apiServer, shutdownTimeout)
	})

	if config.Metrics.Port > 0 {
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Metrics.Port),
			Handler:           health.NewOperationalMux(checker),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			return app.ServeHttp(ctx, metricsServer, shutdownTimeout)
		})
	}

	log.Infof("QueryApi listening on %d", config.HttpPort)
	return g.Wait()
}

package ingester

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/jobfeed/jobfeed/internal/common/app"
	"github.com/jobfeed/jobfeed/internal/common/database"
	"github.com/jobfeed/jobfeed/internal/common/feedcontext"
	"github.com/jobfeed/jobfeed/internal/common/health"
	"github.com/jobfeed/jobfeed/internal/common/ingest/metrics"
	"github.com/jobfeed/jobfeed/internal/common/logging"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/runlock"
	"github.com/jobfeed/jobfeed/internal/source"
	"github.com/jobfeed/jobfeed/internal/store"
	"github.com/jobfeed/jobfeed/internal/store/memory"
	"github.com/jobfeed/jobfeed/internal/store/postgres"
)

const healthCheckTimeout = 5 * time.Second

// Components is a fully wired ingester. Close releases the connections it holds.
type Components struct {
	Runner  *Runner
	Store   store.PostingStore
	Checker health.Checker
	closers []func()
}

func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// NewComponents connects to the configured backends and builds a Runner over the configured sources.
func NewComponents(ctx *feedcontext.Context, config Configuration, registerer prometheus.Registerer) (*Components, error) {
	components := &Components{}
	m := metrics.NewMetrics(metrics.IngesterMetricsPrefix, registerer)
	checker := health.NewMultiChecker()
	components.Checker = checker

	var db *pgxpool.Pool
	if config.Store.Backend == StorePostgres || config.Lock.Backend == runlock.BackendPostgres {
		pool, err := database.OpenPgxPool(ctx, config.Postgres)
		if err != nil {
			return nil, errors.WithMessage(err, "error creating postgres pool")
		}
		db = pool
		components.closers = append(components.closers, pool.Close)
		checker.Add(health.NewPingChecker("postgres", healthCheckTimeout, pool.Ping))
	}

	var redisClient redis.UniversalClient
	if config.Lock.Backend == runlock.BackendRedis {
		redisClient = redis.NewUniversalClient(config.Redis.AsUniversalOptions())
		components.closers = append(components.closers, func() { util.CloseResource("redis client", redisClient) })
		checker.Add(health.NewPingChecker("redis", healthCheckTimeout, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}))
	}

	switch config.Store.Backend {
	case StorePostgres:
		components.Store = postgres.NewPostingStore(db, m)
	case StoreMemory:
		memStore, err := memory.NewPostingStore()
		if err != nil {
			components.Close()
			return nil, err
		}
		components.Store = memStore
	default:
		components.Close()
		return nil, errors.Errorf("unknown store backend %q", config.Store.Backend)
	}

	lock, err := runlock.New(config.Lock, db, redisClient, clock.RealClock{})
	if err != nil {
		components.Close()
		return nil, err
	}

	adapters, err := source.Build(config.Sources, &http.Client{Timeout: config.HttpTimeout})
	if err != nil {
		components.Close()
		return nil, err
	}

	engine := NewEngine(components.Store, config.EngineConfig(), clock.RealClock{}, m)
	components.Runner = NewRunner(engine, lock, components.Store, adapters, config.Lock.Ttl(), clock.RealClock{}, m)
	return components, nil
}

// RunOnce performs a single ingestion run over the named sources (all sources when names is empty).
func RunOnce(config Configuration, names []string) error {
	ctx := app.CreateContextWithShutdown()
	components, err := NewComponents(ctx, config, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer components.Close()

	summary, err := components.Runner.RunOnce(ctx, names)
	if err != nil {
		return err
	}
	if summary.Skipped {
		ctx.Log.Info("another run is in progress, nothing to do")
	}
	return nil
}

// RunScheduled runs ingestion on the configured schedule and serves health and metrics until shutdown.
func RunScheduled(config Configuration) error {
	ctx := app.CreateContextWithShutdown()
	components, err := NewComponents(ctx, config, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer components.Close()

	g, ctx := feedcontext.ErrGroup(ctx)
	if config.Metrics.Port > 0 {
		server := &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Metrics.Port),
			Handler: health.NewOperationalMux(components.Checker),
		}
		g.Go(func() error {
			return app.ServeHttp(ctx, server, 5*time.Second)
		})
	}
	g.Go(func() error {
		return Schedule(ctx, config.Schedule, func(ctx *feedcontext.Context) {
			if _, err := components.Runner.RunOnce(ctx, nil); err != nil {
				logging.WithStacktrace(ctx.Log, err).Error("ingestion run failed")
			}
		})
	})
	return g.Wait()
}

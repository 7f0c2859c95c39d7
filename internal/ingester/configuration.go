package ingester

import (
	"time"

	"github.com/pkg/errors"

	commonconfig "github.com/jobfeed/jobfeed/internal/common/config"
	"github.com/jobfeed/jobfeed/internal/common/util"
	"github.com/jobfeed/jobfeed/internal/model"
	"github.com/jobfeed/jobfeed/internal/runlock"
	"github.com/jobfeed/jobfeed/internal/source"
)

type StoreBackend string

const (
	StorePostgres StoreBackend = "postgres"
	// StoreMemory keeps postings for the life of the process only.
	StoreMemory StoreBackend = "memory"
)

type BudgetConfig struct {
	// Maximum number of unseen postings written per source per run.
	MaxNewPerRun int `validate:"gte=1"`
	// Number of writes sent to the store at once.
	ChunkUpsertSize int `validate:"gte=1"`
	// How long a partly filled chunk may wait for more postings before it is flushed.
	ChunkMaxWait time.Duration
}

type StoreConfig struct {
	Backend StoreBackend `validate:"oneof=postgres memory"`
}

type Configuration struct {
	Budget BudgetConfig
	Lock   runlock.Config
	Store  StoreConfig
	// Retry of single postings that failed within a chunk.
	Retry    util.RetryConfig
	Equality model.EqualityPolicy
	// Number of sources ingested at the same time.
	MaxConcurrentSources int `validate:"gte=1"`
	Schedule             ScheduleConfig
	// Timeout of a single request to an http source.
	HttpTimeout time.Duration
	Sources     []source.Config `validate:"dive"`
	Metrics     commonconfig.MetricsConfig
	// Only validated when the store or the lock live in postgres.
	Postgres commonconfig.PostgresConfig `validate:"-"`
	// Only validated when the lock lives in redis.
	Redis commonconfig.RedisConfig `validate:"-"`
}

// Validate checks the struct tags, then the settings that only matter for the chosen backends.
func (c Configuration) Validate() error {
	if err := commonconfig.Validate(c); err != nil {
		return err
	}
	if err := c.Equality.Validate(); err != nil {
		return err
	}
	if c.Store.Backend == StorePostgres || c.Lock.Backend == runlock.BackendPostgres {
		if err := commonconfig.Validate(c.Postgres); err != nil {
			return err
		}
		if len(c.Postgres.Connection) == 0 {
			return errors.New("postgres.connection is required for the postgres backend")
		}
	}
	if c.Lock.Backend == runlock.BackendRedis {
		if err := commonconfig.Validate(c.Redis); err != nil {
			return err
		}
	}
	return nil
}

func (c Configuration) EngineConfig() EngineConfig {
	return EngineConfig{
		MaxNewPerRun:         c.Budget.MaxNewPerRun,
		ChunkUpsertSize:      c.Budget.ChunkUpsertSize,
		ChunkMaxWait:         c.Budget.ChunkMaxWait,
		MaxConcurrentSources: c.MaxConcurrentSources,
		Retry:                c.Retry,
		Equality:             c.Equality,
	}
}

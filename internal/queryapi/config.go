package queryapi

import (
	"time"

	commonconfig "github.com/jobfeed/jobfeed/internal/common/config"
)

type Configuration struct {
	HttpPort uint16 `validate:"required"`
	Metrics  commonconfig.MetricsConfig
	Postgres commonconfig.PostgresConfig
	// Page size used when a request gives none.
	DefaultLimit int `validate:"gte=0"`
	MaxLimit     int `validate:"gte=0"`
	// Queries without a company, category or country filter walk the whole table. They are refused unless
	// AllowFullScan is set and never return more than MaxFullScanLimit postings per page.
	AllowFullScan    bool
	MaxFullScanLimit int `validate:"gte=0"`
	ShutdownTimeout  time.Duration
}

func (c Configuration) EngineConfig() EngineConfig {
	return EngineConfig{
		DefaultLimit:     c.DefaultLimit,
		MaxLimit:         c.MaxLimit,
		MaxFullScanLimit: c.MaxFullScanLimit,
		AllowFullScan:    c.AllowFullScan,
	}
}

package config

import "time"

type PostgresConfig struct {
	MaxOpenConns    int32
	ConnMaxLifetime time.Duration
	// libpq key/values, e.g. host, port, user, password, dbname, sslmode
	Connection map[string]string `validate:"required"`
}

type MetricsConfig struct {
	Port uint16
}

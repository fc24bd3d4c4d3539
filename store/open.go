package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Config holds the connection parameters for Open.
type Config struct {
	// Driver selects the dialect: "mysql" (default) or "postgres".
	Driver string `mapstructure:"driver"`
	// DSN is the driver-specific data source name.
	DSN string `mapstructure:"dsn"`
	// Pool holds connection pool parameters.
	Pool PoolConfig `mapstructure:"pool"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// Open opens a database handle for the configured driver and wraps it
// with the matching dialect.
func Open(cfg Config, opts ...Option) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: dsn is required")
	}
	dialect := DialectByName(cfg.Driver)
	raw, err := sql.Open(dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dialect.DriverName(), err)
	}
	if cfg.Pool.MaxOpen > 0 {
		raw.SetMaxOpenConns(cfg.Pool.MaxOpen)
	}
	if cfg.Pool.MaxIdle > 0 {
		raw.SetMaxIdleConns(cfg.Pool.MaxIdle)
	}
	if cfg.Pool.MaxLifetime > 0 {
		raw.SetConnMaxLifetime(cfg.Pool.MaxLifetime)
	}
	return New(raw, dialect, opts...), nil
}

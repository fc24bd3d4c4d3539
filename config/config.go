// Package config loads engine configuration from file, environment, and
// defaults through viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"relmap/internal/naming"
	"relmap/logging"
	"relmap/observability"
	"relmap/store"
)

// Config holds the engine configuration.
type Config struct {
	Database store.Config         `mapstructure:"database"`
	Logging  logging.Config       `mapstructure:"logging"`
	Metrics  observability.Config `mapstructure:"metrics"`
	Naming   naming.Config        `mapstructure:"naming"`
}

// Load reads configuration with the following precedence:
// 1. Environment variables (RELMAP_DATABASE_DSN, ...)
// 2. Config file (explicit path, or relmap.yaml on the search path)
// 3. Default values
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relmap")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.relmap")
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Canonical keys are dot + snake_case; env vars replace both with
	// underscores: RELMAP_DATABASE_POOL_MAX_OPEN.
	v.SetEnvPrefix("RELMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.pool.max_open", 10)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", "30m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.service_name", "relmap")
}

func validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "mysql", "pgx", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unsupported logging format %q", cfg.Logging.Format)
	}
	return nil
}

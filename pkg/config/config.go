// Package config loads and validates the keywordoor configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultSQLitePath is the default SQLite database path.
	DefaultSQLitePath = "./keywordoor.db"

	// DefaultRefreshInterval is the default projection refresh interval.
	DefaultRefreshInterval = "5m"
)

// Config is the root configuration for keywordoor.
type Config struct {
	Global GlobalConfig `yaml:"global"`
	API    *APIConfig   `yaml:"api,omitempty"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
}

// Load reads and parses a configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults sets default values for unspecified configuration options.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.API == nil {
		return
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultListen
	}

	if c.API.Database.Driver == "" {
		c.API.Database.Driver = "sqlite"
	}

	if c.API.Database.Driver == "sqlite" && c.API.Database.SQLite.Path == "" {
		c.API.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.API.Database.Driver == "postgres" && c.API.Database.Postgres.SSLMode == "" {
		c.API.Database.Postgres.SSLMode = "disable"
	}

	if c.API.Server.RateLimit.Enabled {
		if c.API.Server.RateLimit.Ingest.RequestsPerMinute == 0 {
			c.API.Server.RateLimit.Ingest.RequestsPerMinute = 120
		}

		if c.API.Server.RateLimit.Read.RequestsPerMinute == 0 {
			c.API.Server.RateLimit.Read.RequestsPerMinute = 300
		}
	}

	if c.API.Projection.RefreshInterval == "" {
		c.API.Projection.RefreshInterval = DefaultRefreshInterval
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.API == nil {
		return nil
	}

	switch c.API.Database.Driver {
	case "sqlite":
		if c.API.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	case "postgres":
		if c.API.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}

		if c.API.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
	default:
		return fmt.Errorf(
			"unsupported database driver: %s", c.API.Database.Driver,
		)
	}

	if _, err := time.ParseDuration(c.API.Projection.RefreshInterval); err != nil {
		return fmt.Errorf(
			"invalid projection.refresh_interval %q: %w",
			c.API.Projection.RefreshInterval, err,
		)
	}

	if c.API.Archive.Enabled {
		local := c.API.Archive.Local != nil && c.API.Archive.Local.Path != ""
		s3 := c.API.Archive.S3 != nil && c.API.Archive.S3.Bucket != ""

		if local && s3 {
			return fmt.Errorf("archive: only one of local and s3 may be set")
		}

		if !local && !s3 {
			return fmt.Errorf("archive: either local.path or s3.bucket is required")
		}
	}

	return nil
}

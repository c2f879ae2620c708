// Package config handles server configuration loading and validation.
//
// # Configuration Sources
//
// Configuration is loaded from (in order of precedence):
// 1. Command-line flags
// 2. Environment variables (LEADROUTER_*)
// 3. Config file (YAML)
// 4. Defaults
//
// # Example Config File
//
//	server:
//	  port: 8080
//
//	database:
//	  url: postgres://localhost:5432/leadrouter?sslmode=disable
//
//	redis:
//	  url: redis://localhost:6379/0
//
//	distribution:
//	  pending_retry_schedule: "*/10 * * * *"
//	  batch_limit: 500
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Distribution DistributionConfig `yaml:"distribution"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`

	// RequireIngestAuth enforces workspace API keys on lead intake.
	// When false, invalid keys are logged but accepted (grace period).
	RequireIngestAuth bool `yaml:"require_ingest_auth,omitempty"`
}

// DatabaseConfig defines the Postgres connection.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig defines the Redis connection. Empty URL disables caching and
// the distribute-pending batch lock degrades to best-effort.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"`
}

// DistributionConfig tunes the distribution engine and retry worker.
type DistributionConfig struct {
	// PendingRetrySchedule is a cron expression for re-distributing
	// unassigned leads. Empty disables the worker.
	PendingRetrySchedule string `yaml:"pending_retry_schedule,omitempty"`

	// BatchLimit caps how many pending leads one distributePending run
	// processes per workspace.
	BatchLimit int `yaml:"batch_limit,omitempty"`

	// IngestRatePerSecond limits lead intake per source IP.
	IngestRatePerSecond float64 `yaml:"ingest_rate_per_second,omitempty"`
	IngestBurst         int     `yaml:"ingest_burst,omitempty"`
}

// Default returns a config with sensible defaults applied.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		// Database.URL is left empty; it is resolved from the environment
		// or the secrets backend at startup.
		Distribution: DistributionConfig{
			PendingRetrySchedule: DefaultPendingRetrySchedule,
			BatchLimit:           DefaultBatchLimit,
			IngestRatePerSecond:  DefaultIngestRatePerSecond,
			IngestBurst:          DefaultIngestBurst,
		},
	}
}

// Load reads configuration from an optional YAML file and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LEADROUTER_DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("LEADROUTER_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("LEADROUTER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("LEADROUTER_PENDING_RETRY_SCHEDULE"); v != "" {
		c.Distribution.PendingRetrySchedule = v
	}
	if v := os.Getenv("LEADROUTER_REQUIRE_INGEST_AUTH"); v != "" {
		c.Server.RequireIngestAuth = v == "true" || v == "1"
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Distribution.BatchLimit <= 0 {
		c.Distribution.BatchLimit = DefaultBatchLimit
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file, then applies FACEGUARD_*
// environment overrides and defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no file.
func Default() *AppConfig {
	var cfg AppConfig
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 30 * time.Second
	}
	if cfg.Remote.RateLimit > 0 && cfg.Remote.Burst == 0 {
		cfg.Remote.Burst = 1
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 10 * time.Second
	}

	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = 5 * time.Minute
	}
	if cfg.Cache.ListTTL == 0 {
		cfg.Cache.ListTTL = 30 * time.Second
	}

	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 5
	}

	if cfg.Search.Debounce == 0 {
		cfg.Search.Debounce = 300 * time.Millisecond
	}
	if cfg.Search.PageSize == 0 {
		cfg.Search.PageSize = 20
	}

	if cfg.Connectivity.ProbeInterval == 0 {
		cfg.Connectivity.ProbeInterval = 15 * time.Second
	}
	if cfg.Connectivity.ProbeTimeout == 0 {
		cfg.Connectivity.ProbeTimeout = 5 * time.Second
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "sqlite"
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "faceguard.db"
	}
}

// Validate rejects settings the client cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Storage.Backend {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("storage backend postgres requires database.url")
		}
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("storage backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry.max_delay (%v) is below retry.base_delay (%v)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	return nil
}

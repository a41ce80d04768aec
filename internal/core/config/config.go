package config

import (
	"time"

	redisclient "github.com/vietddude/faceguard/internal/infra/redis"
	"github.com/vietddude/faceguard/internal/infra/storage/postgres"
	"github.com/vietddude/faceguard/internal/infra/storage/sqlite"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server       ServerConfig       `yaml:"server"`
	Remote       RemoteConfig       `yaml:"remote"`
	Retry        RetryConfig        `yaml:"retry"`
	Cache        CacheConfig        `yaml:"cache"`
	Queue        QueueConfig        `yaml:"queue"`
	Search       SearchConfig       `yaml:"search"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Storage      StorageConfig      `yaml:"storage"`
	Redis        redisclient.Config `yaml:"redis"`
	Database     postgres.Config    `yaml:"database"`
	SQLite       sqlite.Config      `yaml:"sqlite"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds the health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" env:"FACEGUARD_SERVER_PORT"` // 0 disables the server
}

// RemoteConfig describes the face-recognition service endpoint.
type RemoteConfig struct {
	URL       string        `yaml:"url"        env:"FACEGUARD_REMOTE_URL"`
	Mirrors   []string      `yaml:"mirrors"    env:"FACEGUARD_REMOTE_MIRRORS" envSeparator:","` // tried in order when URL fails
	Token     string        `yaml:"token"      env:"FACEGUARD_REMOTE_TOKEN"`
	Timeout   time.Duration `yaml:"timeout"    env:"FACEGUARD_REMOTE_TIMEOUT"`
	RateLimit float64       `yaml:"rate_limit" env:"FACEGUARD_REMOTE_RATE_LIMIT"` // requests/sec, 0 = unlimited
	Burst     int           `yaml:"burst"`
}

// RetryConfig holds backoff settings shared by every remote call.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" env:"FACEGUARD_RETRY_MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay"   env:"FACEGUARD_RETRY_BASE_DELAY"`
	MaxDelay    time.Duration `yaml:"max_delay"    env:"FACEGUARD_RETRY_MAX_DELAY"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	DefaultTTL    time.Duration `yaml:"default_ttl"`
	ListTTL       time.Duration `yaml:"list_ttl"`       // short TTL for paginated listings
	SweepInterval time.Duration `yaml:"sweep_interval"` // 0 disables the background sweep
}

// QueueConfig holds offline queue settings.
type QueueConfig struct {
	MaxRetries int `yaml:"max_retries" env:"FACEGUARD_QUEUE_MAX_RETRIES"`
}

// SearchConfig holds list controller settings.
type SearchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
	PageSize int           `yaml:"page_size"`
}

// ConnectivityConfig holds the reachability probe settings.
type ConnectivityConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout"`
}

// StorageConfig selects the durable store backend.
type StorageConfig struct {
	Backend string `yaml:"backend" env:"FACEGUARD_STORAGE_BACKEND"` // memory, sqlite, postgres, redis
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"FACEGUARD_LOG_LEVEL"` // debug, info, warn, error
	Format string `yaml:"format"`                           // json, text
}

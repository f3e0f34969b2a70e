package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Allocator AllocatorConfig `yaml:"allocator" envPrefix:"ALLOCATOR_"`
	Events    EventsConfig    `yaml:"events" envPrefix:"EVENTS_"`
	Push      PushConfig      `yaml:"push" envPrefix:"PUSH_"`
	SQS       SQSConfig       `yaml:"sqs" envPrefix:"SQS_"`
	Ingest    IngestConfig    `yaml:"ingest" envPrefix:"INGEST_"`
	Telemetry TelemetryConfig `yaml:"telemetry" envPrefix:"TELEMETRY_"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                  int `yaml:"port" env:"PORT"`
	ShutdownSeconds       int `yaml:"shutdown_seconds" env:"SHUTDOWN_SECONDS"`
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"REQUEST_TIMEOUT_SECONDS"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"DRIVER"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn" env:"DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" env:"CONN_MAX_LIFETIME_MINUTES"`
	AutoMigrate            bool   `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
	LogSQL                 bool   `yaml:"log_sql" env:"LOG_SQL"`
}

// AllocatorConfig tunes the claim pipeline.
type AllocatorConfig struct {
	KeywordCacheSeconds int           `yaml:"keyword_cache_seconds" env:"KEYWORD_CACHE_SECONDS"`
	KeywordCacheTTL     time.Duration `yaml:"-"`
}

// EventsConfig sizes the asynchronous event fan-out.
type EventsConfig struct {
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	Workers   int `yaml:"workers" env:"WORKERS"`
}

// PushConfig holds the VAPID keys for operator web push alerts.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" env:"SUBJECT"`
	TTL        int    `yaml:"ttl" env:"TTL"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// SQSConfig configures forwarding of domain events to an SQS queue.
type SQSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Region   string `yaml:"region" env:"REGION"`
	QueueURL string `yaml:"queue_url" env:"QUEUE_URL"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"` // e.g. a localstack URL
}

// IngestConfig holds the comment poller configuration.
type IngestConfig struct {
	IntervalSeconds    int           `yaml:"interval_seconds" env:"INTERVAL_SECONDS"`
	Interval           time.Duration `yaml:"-"` // Ignored by YAML parser
	RequestsPerSecond  float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst              int           `yaml:"burst" env:"BURST"`
	HTTPTimeoutSeconds int           `yaml:"http_timeout_seconds" env:"HTTP_TIMEOUT_SECONDS"`
	HTTPProxy          string        `yaml:"http_proxy" env:"HTTP_PROXY"`
	PageSize           int           `yaml:"page_size" env:"PAGE_SIZE"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Load reads the configuration from the given path, then applies LIVESALE_* environment
// overrides and defaults. A missing file is not an error; the environment alone may suffice.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case os.IsNotExist(err):
		log.Printf("config file %s not found; using environment and defaults", path)
	default:
		return nil, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "LIVESALE_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownSeconds <= 0 {
		cfg.Server.ShutdownSeconds = 5
	}
	if cfg.Server.RequestTimeoutSeconds <= 0 {
		cfg.Server.RequestTimeoutSeconds = 10
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Allocator.KeywordCacheSeconds <= 0 {
		cfg.Allocator.KeywordCacheSeconds = 30
	}
	cfg.Allocator.KeywordCacheTTL = time.Duration(cfg.Allocator.KeywordCacheSeconds) * time.Second

	if cfg.Events.QueueSize <= 0 {
		cfg.Events.QueueSize = 256
	}
	if cfg.Events.Workers <= 0 {
		log.Printf("events.workers is not set or invalid; defaulting to 1")
		cfg.Events.Workers = 1
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.SQS.Region == "" {
		cfg.SQS.Region = "us-east-1"
	}

	if cfg.Ingest.IntervalSeconds <= 0 {
		cfg.Ingest.IntervalSeconds = 2
	}
	cfg.Ingest.Interval = time.Duration(cfg.Ingest.IntervalSeconds) * time.Second
	if cfg.Ingest.RequestsPerSecond <= 0 {
		cfg.Ingest.RequestsPerSecond = 5
	}
	if cfg.Ingest.Burst <= 0 {
		cfg.Ingest.Burst = 1
	}
	if cfg.Ingest.HTTPTimeoutSeconds <= 0 {
		cfg.Ingest.HTTPTimeoutSeconds = 30
	}
	if cfg.Ingest.PageSize <= 0 {
		cfg.Ingest.PageSize = 100
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "livesaled"
	}
}

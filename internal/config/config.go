package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`

	RedisAddr     string `env:"REDIS_ADDR,required"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// EventID selects the event this pipeline instance owns. Required for
	// lt-engine; ignored by relay-edge.
	EventID int `env:"event_id"`

	// JobName is the addressable endpoint registered for this instance.
	// Defaults to host:port derived from HTTPAddr when empty.
	JobName string `env:"job_name"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// FullRefreshInterval is the period of the full-status fan-out loop.
	FullRefreshInterval time.Duration `env:"FULL_REFRESH_INTERVAL" envDefault:"5s"`

	// StaleAfter is how long a live session may go without updates before
	// it is marked stale.
	StaleAfter time.Duration `env:"SESSION_STALE_AFTER" envDefault:"2m"`

	// ControlLogPath points at the parsed control-log entries file kept
	// current by the external spreadsheet parser. Empty disables the
	// penalty enricher's provider.
	ControlLogPath string `env:"CONTROL_LOG_PATH"`

	Archive ArchiveConfig
}

// ArchiveConfig configures optional session-result archival to an
// S3-compatible object store. Disabled when Bucket is empty.
type ArchiveConfig struct {
	Bucket    string `env:"ARCHIVE_S3_BUCKET"`
	Prefix    string `env:"ARCHIVE_S3_PREFIX" envDefault:"results"`
	Region    string `env:"ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	Endpoint  string `env:"ARCHIVE_S3_ENDPOINT"`
	AccessKey string `env:"ARCHIVE_S3_ACCESS_KEY"`
	SecretKey string `env:"ARCHIVE_S3_SECRET_KEY"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile  string
	HTTPAddr string
	LogLevel string
	EventID  int
}

// Load reads configuration from .env file, environment variables, and CLI
// overrides. Priority: CLI flags > environment variables > .env file >
// struct defaults.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.EventID != 0 {
		cfg.EventID = overrides.EventID
	}

	return cfg, nil
}

// Endpoint returns the addressable endpoint for this instance: JobName
// when set, otherwise host:port derived from the HTTP listen address.
func (c *Config) Endpoint() string {
	if c.JobName != "" {
		return c.JobName
	}
	addr := c.HTTPAddr
	if len(addr) > 0 && addr[0] == ':' {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		return host + addr
	}
	return addr
}

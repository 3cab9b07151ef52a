package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	// Outbound HTTP defaults and bounds.
	DefaultTimeoutSeconds int `env:"DEFAULT_TIMEOUT_SECONDS" envDefault:"30" validate:"min=1"`
	MaxTimeoutSeconds     int `env:"MAX_TIMEOUT_SECONDS" envDefault:"120" validate:"min=1"`

	// MAX_RETRIES is the number of additional tries after the first attempt.
	MaxRetries        int `env:"MAX_RETRIES" envDefault:"3" validate:"min=0,max=20"`
	RetryDelaySeconds int `env:"RETRY_DELAY_SECONDS" envDefault:"1" validate:"min=1,max=300"`

	MaxConcurrentJobs   int `env:"MAX_CONCURRENT_JOBS" envDefault:"100" validate:"min=1,max=1000"`
	MisfireGraceSeconds int `env:"JOB_MISFIRE_GRACE_SECONDS" envDefault:"60" validate:"min=1,max=3600"`

	// Every timestamp the service reads, writes or schedules against is in this zone.
	Timezone string `env:"TIMEZONE" envDefault:"Asia/Kolkata" validate:"required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// When set, the API requires a Bearer JWT signed with this key.
	JWTSecret string `env:"JWT_SECRET" validate:"omitempty,min=32"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if cfg.DefaultTimeoutSeconds > cfg.MaxTimeoutSeconds {
		return nil, fmt.Errorf("invalid config: DEFAULT_TIMEOUT_SECONDS %d exceeds MAX_TIMEOUT_SECONDS %d",
			cfg.DefaultTimeoutSeconds, cfg.MaxTimeoutSeconds)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid config: TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c *Config) MisfireGrace() time.Duration {
	return time.Duration(c.MisfireGraceSeconds) * time.Second
}

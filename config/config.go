package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port     string `env:"PORT" envDefault:"8080" validate:"required"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	DatabaseURL    string `env:"DATABASE_URL,required" validate:"required"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START" envDefault:"true"`

	// Reminder scheduler
	WorkerCount      int    `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	ReminderCron     string `env:"REMINDER_CRON" envDefault:"@hourly" validate:"required"`
	SweepIntervalSec int    `env:"SWEEP_INTERVAL_SEC" envDefault:"3600" validate:"min=60,max=86400"`
	RunOnce          bool   `env:"SCHEDULER_RUN_ONCE" envDefault:"false"`
	RedisURL         string `env:"REDIS_URL"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	JWTSecret  string        `env:"JWT_SECRET,required" validate:"required,min=32"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h" validate:"min=1m"`

	ResendAPIKey     string `env:"RESEND_API_KEY"      validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom       string `env:"RESEND_FROM"         validate:"required_if=Env production,required_if=Env staging"`
	AppBaseURL       string `env:"APP_BASE_URL"        envDefault:"http://localhost:5173" validate:"url"`
	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"  validate:"omitempty,url"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if _, err := cron.ParseStandard(cfg.ReminderCron); err != nil {
		return nil, fmt.Errorf("invalid config: REMINDER_CRON %q: %w", cfg.ReminderCron, err)
	}

	cfg.AppBaseURL = strings.TrimRight(cfg.AppBaseURL, "/")

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

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

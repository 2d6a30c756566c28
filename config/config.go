package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	APIBaseURL      string `env:"API_BASE_URL" envDefault:"http://localhost:8080" validate:"required,url"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`

	// CallbackAddr is where the social-login callback listener binds.
	// Must match the redirect URI registered with the backend.
	CallbackAddr string `env:"CALLBACK_ADDR" envDefault:"127.0.0.1:48100" validate:"required,hostname_port"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	KeepaliveIntervalSec int `env:"KEEPALIVE_INTERVAL_SEC" envDefault:"300" validate:"min=30,max=3600"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.CredentialsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.CredentialsFile = filepath.Join(home, ".dugout", "credentials.json")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.KeepaliveIntervalSec) * time.Second
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

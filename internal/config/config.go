package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type LogConfig struct {
	Level     string `env:"LOG_LEVEL" envDefault:"info"`
	Format    string `env:"LOG_FORMAT" envDefault:"legacy"`
	ToConsole bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	ToFile    bool   `env:"LOG_TO_FILE" envDefault:"false"`
	File      string `env:"LOG_FILE" envDefault:"logs/matchd.log"`
	Caller    bool   `env:"LOG_CALLER" envDefault:"false"`
}

type AppConfig struct {
	RedisURL string `env:"REDIS_URL"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	AllowedOrigin string `env:"ALLOWED_ORIGIN" envDefault:"*"`

	QueueTTL          time.Duration `env:"QUEUE_TTL" envDefault:"60s"`
	SessionTTL        time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	KeepaliveInterval time.Duration `env:"KEEPALIVE_INTERVAL" envDefault:"25s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	RulesEngineURL     string        `env:"RULES_ENGINE_URL"`
	RulesEngineTimeout time.Duration `env:"RULES_ENGINE_TIMEOUT" envDefault:"3s"`

	MessagesDir string `env:"MESSAGES_DIR"`

	Log LogConfig
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	cfg.AllowedOrigin = strings.TrimSpace(cfg.AllowedOrigin)
	cfg.RulesEngineURL = strings.TrimRight(strings.TrimSpace(cfg.RulesEngineURL), "/")
	cfg.MessagesDir = strings.TrimSpace(cfg.MessagesDir)

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.RulesEngineURL != "" {
		u, err := url.Parse(cfg.RulesEngineURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("RULES_ENGINE_URL must be an http(s) URL: %q", cfg.RulesEngineURL)
		}
	}
	if cfg.QueueTTL <= 0 || cfg.SessionTTL <= 0 {
		return nil, errors.New("QUEUE_TTL and SESSION_TTL must be positive")
	}
	// the waiting slot must never outlive the sessions it feeds
	if cfg.QueueTTL > cfg.SessionTTL {
		return nil, fmt.Errorf("QUEUE_TTL (%s) exceeds SESSION_TTL (%s)", cfg.QueueTTL, cfg.SessionTTL)
	}
	if cfg.KeepaliveInterval < time.Second {
		cfg.KeepaliveInterval = 25 * time.Second
	}
	return cfg, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                    string `env:"PORT" envDefault:"8080"`
	AllowedOrigin           string `env:"ALLOWED_ORIGIN" envDefault:"http://127.0.0.1:3000"`
	DatabaseURL             string `env:"DATABASE_URL"`
	RedisAddr               string `env:"REDIS_ADDR"`
	RedisPassword           string `env:"REDIS_PASSWORD"`
	RedisDB                 int    `env:"REDIS_DB" envDefault:"0"`
	SettingsCacheTTLSeconds int    `env:"SETTINGS_CACHE_TTL_SECONDS" envDefault:"60"`
	AuthSecret              string `env:"AUTH_SECRET"`
	AuthDisabled            bool   `env:"AUTH_DISABLED" envDefault:"false"`
	VendorPassword          string `env:"VENDOR_PASSWORD"`
	AccessTokenTTLMinutes   int    `env:"ACCESS_TOKEN_TTL_MINUTES" envDefault:"720"`
	LogLevel                string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat               string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses the environment. Out-of-range durations fall back to their
// defaults; secrets are never defaulted.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.VendorPassword = strings.TrimSpace(cfg.VendorPassword)
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 720
	}
	if cfg.SettingsCacheTTLSeconds < 0 {
		cfg.SettingsCacheTTLSeconds = 60
	}
	if cfg.Port == "" {
		return Config{}, errors.New("PORT must not be empty")
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) SettingsCacheTTL() time.Duration {
	return time.Duration(c.SettingsCacheTTLSeconds) * time.Second
}

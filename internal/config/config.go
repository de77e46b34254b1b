package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config represents runtime configuration for the service. The upstream
// credential is intentionally not required at load time: its absence is a
// per-request configuration error surfaced by the advisor endpoint.
type Config struct {
	ServerAddress string `env:"SERVER_ADDR" envDefault:":8090"`

	// Upstream completion gateway.
	UpstreamAPIKey  string `env:"UPSTREAM_API_KEY"`
	UpstreamBaseURL string `env:"UPSTREAM_BASE_URL" envDefault:"https://api.openai.com/v1"`
	UpstreamModel   string `env:"UPSTREAM_MODEL" envDefault:"gpt-4o-mini"`

	// Bank inventory and persistence database.
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite3"`
	DatabaseDSN    string `env:"DATABASE_DSN" envDefault:"./data/bankadvisor.db"`

	// Optional redis-backed request limiter. Empty addr disables it.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisUsername string `env:"REDIS_USERNAME"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RateLimit     int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`

	// Document upload storage.
	UploadDir string `env:"UPLOAD_DIR" envDefault:"./data/uploads"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN must be configured")
	}
	return cfg, nil
}

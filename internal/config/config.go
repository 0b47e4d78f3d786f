// Package config loads the scanner configuration from a YAML file with
// environment variable overrides and validated defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Fyers    FyersConfig    `yaml:"fyers"`
	Scan     ScanConfig     `yaml:"scan"`
	Indices  IndicesConfig  `yaml:"indices"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	// URL is a Postgres connection string. Empty means run on in-memory
	// stores (dev mode); nothing survives a restart.
	URL string `yaml:"url"`
}

type RedisConfig struct {
	// Addr empty disables the cache layer entirely.
	Addr string        `yaml:"addr"`
	DB   int           `yaml:"db"`
	TTL  time.Duration `yaml:"ttl"`
}

type FyersConfig struct {
	BaseURL         string        `yaml:"base_url"`
	StreamURL       string        `yaml:"stream_url"`
	Timeout         time.Duration `yaml:"timeout"`
	RPS             float64       `yaml:"rps"`
	Burst           int           `yaml:"burst"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
	Resolution      string        `yaml:"resolution"`
}

type ScanConfig struct {
	Cooldown      time.Duration `yaml:"cooldown"`
	Workers       int           `yaml:"workers"`
	RefreshWindow time.Duration `yaml:"refresh_window"`
}

type IndicesConfig struct {
	Names           []string      `yaml:"names"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	Stream          bool          `yaml:"stream"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Redis: RedisConfig{
			TTL: 5 * time.Minute,
		},
		Fyers: FyersConfig{
			BaseURL:         "https://api-t1.fyers.in",
			StreamURL:       "wss://socket.fyers.in/hsm/v1-5/prod",
			Timeout:         10 * time.Second,
			RPS:             8,
			Burst:           4,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
			Resolution:      "5",
		},
		Scan: ScanConfig{
			Cooldown:      60 * time.Second,
			Workers:       4,
			RefreshWindow: 5 * time.Minute,
		},
		Indices: IndicesConfig{
			RefreshInterval: 60 * time.Second,
		},
	}
}

// Load reads configuration from path (optional), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OISCAN_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("OISCAN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("OISCAN_HTTP_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("OISCAN_HTTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("OISCAN_FYERS_BASE_URL"); v != "" {
		cfg.Fyers.BaseURL = v
	}
}

// Validate ensures settings are consistent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Scan.Cooldown <= 0 {
		return fmt.Errorf("scan cooldown must be positive, got %s", c.Scan.Cooldown)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("scan workers must be positive, got %d", c.Scan.Workers)
	}
	if c.Fyers.BaseURL == "" {
		return fmt.Errorf("fyers base_url must be set")
	}
	if c.Fyers.RPS <= 0 {
		return fmt.Errorf("fyers rps must be positive, got %f", c.Fyers.RPS)
	}
	if c.Indices.RefreshInterval <= 0 {
		return fmt.Errorf("indices refresh_interval must be positive, got %s", c.Indices.RefreshInterval)
	}
	return nil
}

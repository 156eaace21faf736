// Package config loads application configuration from YAML and environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/nitemap/nitemap/internal/logging"
)

// Backend selects the persistence implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
	BackendSupabase Backend = "supabase"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SupabaseConfig holds managed-store connection settings.
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	AnonKey    string `yaml:"anon_key"`
	ServiceKey string `yaml:"service_key"`
	JWTSecret  string `yaml:"jwt_secret"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Backend     Backend `yaml:"backend"`
	PostgresDSN string  `yaml:"postgres_dsn"`
}

// RedisConfig holds cache settings. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig holds per-caller rate limiting settings.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   logging.Config  `yaml:"logging"`
	Supabase  SupabaseConfig  `yaml:"supabase"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// CouponSweepSchedule is a cron expression for the coupon expiry sweep.
	CouponSweepSchedule string `yaml:"coupon_sweep_schedule"`
}

// Default returns the configuration used when no file is provided.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: logging.Config{Level: "info", Format: "json", Output: "stdout"},
		Store:   StoreConfig{Backend: BackendMemory},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		CouponSweepSchedule: "@hourly",
	}
}

// Load reads configuration from the optional YAML file at path, then applies
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NITEMAP_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("NITEMAP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("NITEMAP_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		cfg.Supabase.AnonKey = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		cfg.Supabase.ServiceKey = v
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		cfg.Supabase.JWTSecret = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.PostgresDSN = v
		if cfg.Store.Backend == BackendMemory {
			cfg.Store.Backend = BackendPostgres
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NITEMAP_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = Backend(v)
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("postgres backend requires a DSN")
		}
	case BackendSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return fmt.Errorf("supabase backend requires url and service key")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

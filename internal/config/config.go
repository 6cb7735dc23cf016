// Package config loads service configuration from an optional YAML file with
// environment-variable overrides. Secrets only ever come from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config covers both binaries; each validates only the sections it uses.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Accounts AccountsConfig `yaml:"accounts"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type JWTConfig struct {
	Secret            string        `yaml:"-"` // env only
	AccessExpiration  time.Duration `yaml:"-"`
	RefreshExpiration time.Duration `yaml:"-"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"` // env only
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"-"` // env only
	MaxConns int    `yaml:"max_conns"`
}

type AccountsConfig struct {
	ServiceURL string `yaml:"service_url"`
}

type SecurityConfig struct {
	APIKey         string `yaml:"-"` // env only
	LoginRateLimit int    `yaml:"login_rate_limit"`
}

type AuditConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// Load reads the YAML file when path is non-empty, then applies environment
// overrides and defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	c.JWT.Secret = os.Getenv("JWT_SECRET")
	c.JWT.AccessExpiration = envMillis("JWT_ACCESS_EXPIRATION", c.JWT.AccessExpiration)
	c.JWT.RefreshExpiration = envMillis("JWT_REFRESH_EXPIRATION", c.JWT.RefreshExpiration)

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("ACCOUNTS_SERVICE_URL"); v != "" {
		c.Accounts.ServiceURL = v
	}
	if v := os.Getenv("API_KEY"); v != "" {
		c.Security.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.JWT.AccessExpiration == 0 {
		c.JWT.AccessExpiration = 15 * time.Minute
	}
	if c.JWT.RefreshExpiration == 0 {
		c.JWT.RefreshExpiration = 7 * 24 * time.Hour
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 30
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 30
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1024
	}
	if c.Security.LoginRateLimit == 0 {
		c.Security.LoginRateLimit = 10
	}
}

// ValidateGateway checks the settings the gateway cannot start without.
func (c *Config) ValidateGateway() error {
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWT.Secret))
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Accounts.ServiceURL == "" {
		return fmt.Errorf("ACCOUNTS_SERVICE_URL is required")
	}
	if c.Security.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	return nil
}

// ValidateAccounts checks the settings the accounts service cannot start
// without.
func (c *Config) ValidateAccounts() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Security.APIKey == "" {
		return fmt.Errorf("API_KEY is required")
	}
	return nil
}

func envMillis(name string, fallback time.Duration) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

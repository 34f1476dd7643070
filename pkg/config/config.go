package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverRedis    = "redis"
)

// EnvProduction is the environment name that hides internal error details.
const EnvProduction = "production"

// DefaultConfigPath is read when present; every field can also come from
// the environment.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for the risk register service.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr        string        `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"PORT" env-default:"5500"`
	Env             string        `yaml:"env" env:"ENVIRONMENT" env-default:"development"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	Version         string        `yaml:"-"` // Set at load time, not from config

	Log      LogConfig      `yaml:"log"`
	CORS     CORSConfig     `yaml:"cors"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// CORSConfig controls which browser origins may call the API.
type CORSConfig struct {
	// AllowLocalhost permits any http://localhost origin (any port).
	AllowLocalhost bool `yaml:"allow_localhost" env:"CORS_ALLOW_LOCALHOST" env-default:"true"`
	// TrustedSuffix permits any origin whose host ends with this suffix,
	// e.g. ".vercel.app". Empty disables suffix matching.
	TrustedSuffix string `yaml:"trusted_suffix" env:"CORS_TRUSTED_SUFFIX" env-default:".vercel.app"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver" env:"STORE_DRIVER" env-default:"postgres"`
	// RunMigrations applies pending schema migrations at startup (postgres only).
	RunMigrations bool `yaml:"run_migrations" env:"STORE_RUN_MIGRATIONS" env-default:"true"`
	// ConnectRetries is how many times a failed connection is retried at
	// startup before giving up. 0 disables retries.
	ConnectRetries int           `yaml:"connect_retries" env:"STORE_CONNECT_RETRIES" env-default:"5"`
	ConnectBackoff time.Duration `yaml:"connect_backoff" env:"STORE_CONNECT_BACKOFF" env-default:"500ms"`
}

// DatabaseConfig holds PostgreSQL database configuration.
// URL takes precedence over the individual parts when set.
type DatabaseConfig struct {
	URL            string `yaml:"-" env:"DATABASE_URL"` // May embed a password
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"risk"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"risk_register"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	AppName        string `yaml:"application_name" env:"PGAPPNAME" env-default:"risk-register"`
}

// RedisConfig holds Redis configuration for the redis store driver.
// URL takes precedence over the individual parts when set.
type RedisConfig struct {
	URL       string `yaml:"-" env:"REDIS_URL"`
	Host      string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port      int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"risk-register"`
}

// Load reads configuration from config.yaml (if present) with environment
// variable overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigPath, version)
}

// LoadFile is Load with an explicit YAML path. A missing file is not an
// error; the environment and defaults are used instead.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.resolveServiceHosts()

	return cfg, nil
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case StoreDriverPostgres, StoreDriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q (want %q or %q)", c.Store.Driver, StoreDriverPostgres, StoreDriverRedis)
	}

	if c.Store.ConnectRetries < 0 {
		return fmt.Errorf("store.connect_retries must not be negative")
	}
	if c.Store.ConnectRetries > 0 && c.Store.ConnectBackoff <= 0 {
		return fmt.Errorf("store.connect_backoff must be positive when retries are enabled")
	}

	if c.Port == "" {
		return fmt.Errorf("port must not be empty")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

// IsProduction reports whether internal error details must be hidden.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, EnvProduction)
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.Password == "" {
		u.User = url.User(c.User)
	}
	return u.String()
}

// Addr returns the Redis host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

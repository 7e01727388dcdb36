// Package config provides configuration loading and validation for the workshop server and CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Log modes
const (
	LogDevelopment = "development"
	LogProduction  = "production"
)

// Duration is a time.Duration that reads and writes Go duration strings ("1s", "30m")
// in environment variables, JSON and YAML.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText writes the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the server and CLI settings.
// Values come from defaults, then an optional JSON/YAML file, then the environment.
type Config struct {
	// HTTP
	Port        int      `json:"port,omitempty" yaml:"port,omitempty" env:"WORKSHOP_PORT" validate:"min=1,max=65535"`
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty" env:"WORKSHOP_CORS_ORIGINS" envSeparator:","`

	// Storage
	Storage     string `json:"storage,omitempty" yaml:"storage,omitempty" env:"WORKSHOP_STORAGE" validate:"oneof=memory sqlite postgres redis"`
	SQLitePath  string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" env:"WORKSHOP_SQLITE_PATH"`
	DatabaseURL string `json:"database_url,omitempty" yaml:"database_url,omitempty" env:"DATABASE_URL"`
	RedisAddr   string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" env:"REDIS_ADDR"`
	RedisPrefix string `json:"redis_prefix,omitempty" yaml:"redis_prefix,omitempty" env:"WORKSHOP_REDIS_PREFIX"`

	// Progress
	SaveDelay  Duration `json:"save_delay,omitempty" yaml:"save_delay,omitempty" env:"WORKSHOP_SAVE_DELAY" validate:"gte=0"`
	SessionTTL Duration `json:"session_ttl,omitempty" yaml:"session_ttl,omitempty" env:"WORKSHOP_SESSION_TTL" validate:"gte=0"`

	// Logging
	LogMode string `json:"log_mode,omitempty" yaml:"log_mode,omitempty" env:"WORKSHOP_LOG_MODE" validate:"oneof=development production"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		Port:        8080,
		Storage:     StorageSQLite,
		SQLitePath:  "workshop.db",
		RedisAddr:   "localhost:6379",
		RedisPrefix: "workshop_data_",
		SaveDelay:   Duration(time.Second),
		SessionTTL:  Duration(30 * time.Minute),
		LogMode:     LogDevelopment,
	}
}

// Load builds the effective configuration: the file at path (optional) merged over
// Defaults, then overridden by any set environment variables, then validated.
func Load(path string) (*Config, error) {
	fileCfg := &Config{}
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		fileCfg = loaded
	}

	cfg := fileCfg.MergeWithDefaults(Defaults())
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads configuration from a JSON or YAML file, chosen by extension.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}

	return &cfg, nil
}

var validate = validator.New()

// Validate checks field ranges and the settings each storage backend needs.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	switch c.Storage {
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config error: 'sqlite_path' is required for sqlite storage")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config error: 'database_url' is required for postgres storage")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config error: 'redis_addr' is required for redis storage")
		}
	}

	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Storage == "" {
		result.Storage = defaults.Storage
	}
	if result.SQLitePath == "" {
		result.SQLitePath = defaults.SQLitePath
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.RedisAddr == "" {
		result.RedisAddr = defaults.RedisAddr
	}
	if result.RedisPrefix == "" {
		result.RedisPrefix = defaults.RedisPrefix
	}
	if result.LogMode == "" {
		result.LogMode = defaults.LogMode
	}
	if len(result.CORSOrigins) == 0 {
		result.CORSOrigins = defaults.CORSOrigins
	}

	// Numeric fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.SaveDelay == 0 {
		result.SaveDelay = defaults.SaveDelay
	}
	if result.SessionTTL == 0 {
		result.SessionTTL = defaults.SessionTTL
	}

	return result
}

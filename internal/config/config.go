// Package config loads server configuration from a YAML file and environment
// variables. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is the format of calendar.start
const DateLayout = "2006-01-02"

// Config is the root configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	LocalStore LocalStoreConfig `yaml:"local_store"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`

	// Rosters maps unit IDs to roster files loaded at startup
	Rosters map[string]string `yaml:"rosters"`
}

// ServerConfig describes the HTTP server
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
}

// DatabaseConfig describes the remote rule store. An empty URL runs without
// Postgres.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// RedisConfig describes the shared evaluation cache. An empty URL keeps the
// cache in memory.
type RedisConfig struct {
	URL       string `yaml:"url"`
	KeyPrefix string `yaml:"key_prefix"`

	// StoreRules keeps rule collections in Redis when no database is configured
	StoreRules bool `yaml:"store_rules"`
}

// LocalStoreConfig describes the SQLite file used when the remote store is
// unreachable. An empty path disables it.
type LocalStoreConfig struct {
	Path string `yaml:"path"`
}

// CalendarConfig is the default evaluation interval for new units
type CalendarConfig struct {
	Start string `yaml:"start"`
	Days  int    `yaml:"days"`
}

// CacheConfig describes the evaluation cache
type CacheConfig struct {
	Freshness  time.Duration `yaml:"freshness"`
	MaxEntries int           `yaml:"max_entries"`
}

// LoggingConfig describes the logger
type LoggingConfig struct {
	Level string `yaml:"level"`

	// ErrorSampleRate logs one in N warnings and errors; 1 logs all
	ErrorSampleRate int `yaml:"error_sample_rate"`
}

// Defaults returns a Config with default values
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HandlerTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Redis: RedisConfig{
			KeyPrefix: "staffrules",
		},
		LocalStore: LocalStoreConfig{
			Path: "staffrules.db",
		},
		Calendar: CalendarConfig{
			Days: 28,
		},
		Cache: CacheConfig{
			Freshness:  time.Second,
			MaxEntries: 16,
		},
		Logging: LoggingConfig{
			Level:           "info",
			ErrorSampleRate: 1,
		},
	}
}

// Load reads a YAML config file, applies environment overrides and validates
// the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}
	return cfg, nil
}

// Validate checks field ranges and formats
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Calendar.Days < 0 {
		errs = append(errs, "calendar.days must not be negative")
	}
	if c.Calendar.Start != "" {
		if _, err := time.Parse(DateLayout, c.Calendar.Start); err != nil {
			errs = append(errs, "calendar.start must be YYYY-MM-DD")
		}
	}
	if c.Cache.Freshness < 0 {
		errs = append(errs, "cache.freshness must not be negative")
	}
	if c.Logging.ErrorSampleRate < 0 {
		errs = append(errs, "logging.error_sample_rate must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// CalendarStart returns calendar.start, or today (UTC) when unset
func (c *Config) CalendarStart(now time.Time) time.Time {
	if t, err := time.Parse(DateLayout, c.Calendar.Start); err == nil {
		return t
	}
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v, ok := os.LookupEnv("LOCAL_STORE_PATH"); ok {
		cfg.LocalStore.Path = v
	}
	if v := os.Getenv("CALENDAR_START"); v != "" {
		cfg.Calendar.Start = v
	}
	if v := os.Getenv("CALENDAR_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			cfg.Calendar.Days = days
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Package config loads heraldd settings from a YAML file and HERALD_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/herald"
	"github.com/xraph/herald/extension"
)

// Store drivers understood by the daemon.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config is the daemon configuration.
type Config struct {
	HTTP struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"http"`

	EventsFile     string   `yaml:"events_file"`
	AllowedDomains []string `yaml:"allowed_domains"`

	Intent struct {
		Validate  bool `yaml:"validate"`
		Immediate bool `yaml:"immediate"`
	} `yaml:"intent"`

	Queue struct {
		Eager bool `yaml:"eager"`
	} `yaml:"queue"`

	Delivery struct {
		Concurrency     int             `yaml:"concurrency"`
		PollInterval    time.Duration   `yaml:"poll_interval"`
		BatchSize       int             `yaml:"batch_size"`
		RequestTimeout  time.Duration   `yaml:"request_timeout"`
		MaxAttempts     int             `yaml:"max_attempts"`
		RetrySchedule   []time.Duration `yaml:"retry_schedule"`
		RateLimit       int             `yaml:"rate_limit"`
		ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	} `yaml:"delivery"`

	Store struct {
		Driver   string `yaml:"driver"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"store"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file or variable overrides
// a setting.
func Default() Config {
	d := herald.DefaultConfig()

	var cfg Config
	cfg.HTTP.Addr = ":8000"
	cfg.EventsFile = "events.yml"
	cfg.Intent.Validate = d.ValidateIntent
	cfg.Intent.Immediate = d.ImmediateIntent
	cfg.Queue.Eager = d.Eager
	cfg.Delivery.Concurrency = d.Concurrency
	cfg.Delivery.PollInterval = d.PollInterval
	cfg.Delivery.BatchSize = d.BatchSize
	cfg.Delivery.RequestTimeout = d.RequestTimeout
	cfg.Delivery.MaxAttempts = d.MaxAttempts
	cfg.Delivery.RetrySchedule = append([]time.Duration(nil), d.RetrySchedule...)
	cfg.Delivery.RateLimit = d.DeliveryRateLimit
	cfg.Delivery.ShutdownTimeout = d.ShutdownTimeout
	cfg.Store.Driver = DriverMemory
	cfg.Log.Level = "info"
	return cfg
}

// Load reads path over the defaults, then applies environment overrides. A
// missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.HTTP.Addr = envString("HERALD_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.BasePath = envString("HERALD_BASE_PATH", cfg.HTTP.BasePath)
	cfg.EventsFile = envString("HERALD_EVENTS_FILE", cfg.EventsFile)
	cfg.AllowedDomains = envList("HERALD_ALLOWED_DOMAINS", cfg.AllowedDomains)
	cfg.Intent.Validate = envBool("HERALD_VALIDATION_OF_INTENT", cfg.Intent.Validate)
	cfg.Intent.Immediate = envBool("HERALD_VALIDATION_OF_INTENT_IMMEDIATE", cfg.Intent.Immediate)
	cfg.Queue.Eager = envBool("HERALD_EAGER_QUEUES", cfg.Queue.Eager)
	cfg.Delivery.Concurrency = envInt("HERALD_CONCURRENCY", cfg.Delivery.Concurrency)
	cfg.Delivery.RequestTimeout = envDuration("HERALD_REQUEST_TIMEOUT", cfg.Delivery.RequestTimeout)
	cfg.Delivery.MaxAttempts = envInt("HERALD_MAX_ATTEMPTS", cfg.Delivery.MaxAttempts)
	cfg.Delivery.RateLimit = envInt("HERALD_RATE_LIMIT", cfg.Delivery.RateLimit)
	cfg.Store.Driver = envString("HERALD_STORE_DRIVER", cfg.Store.Driver)
	cfg.Store.RedisURL = envString("HERALD_REDIS_URL", cfg.Store.RedisURL)
	cfg.Log.Level = envString("HERALD_LOG_LEVEL", cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the daemon cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.RedisURL == "" {
			return errors.New("config: store.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.EventsFile == "" {
		return errors.New("config: events_file is required")
	}
	if c.HTTP.BasePath != "" && !strings.HasPrefix(c.HTTP.BasePath, "/") {
		return fmt.Errorf("config: http.base_path %q must start with /", c.HTTP.BasePath)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses log.level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}

// Extension translates the settings into the embedded broker configuration.
func (c Config) Extension() extension.Config {
	ext := extension.DefaultConfig()
	ext.BasePath = c.HTTP.BasePath
	ext.AllowedDomains = c.AllowedDomains
	ext.ValidateIntent = c.Intent.Validate
	ext.ImmediateIntent = c.Intent.Immediate
	ext.Eager = c.Queue.Eager
	ext.Concurrency = c.Delivery.Concurrency
	ext.PollInterval = c.Delivery.PollInterval
	ext.BatchSize = c.Delivery.BatchSize
	ext.RequestTimeout = c.Delivery.RequestTimeout
	ext.MaxAttempts = c.Delivery.MaxAttempts
	ext.RetrySchedule = c.Delivery.RetrySchedule
	ext.DeliveryRateLimit = c.Delivery.RateLimit
	ext.ShutdownTimeout = c.Delivery.ShutdownTimeout
	return ext
}

func envString(name, fallback string) string {
	if raw := os.Getenv(name); raw != "" {
		return raw
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}

// envList splits a comma-separated variable.
func envList(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

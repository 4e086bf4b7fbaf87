package extension

import (
	"github.com/xraph/herald"
)

// Config holds configuration for the herald extension.
type Config struct {
	// Config embeds the core broker configuration.
	herald.Config `json:",inline" yaml:",inline"`

	// BasePath is the URL prefix for the herald routes. Empty mounts them
	// at the router root.
	BasePath string `json:"base_path" yaml:"base_path"`

	// DisableRoutes skips mounting the HTTP API.
	DisableRoutes bool `json:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate skips store migrations on Register.
	DisableMigrate bool `json:"disable_migrate" yaml:"disable_migrate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config: herald.DefaultConfig(),
	}
}

// ToBrokerOptions converts the embedded Config into herald.Option values.
// Zero numeric settings keep the broker defaults.
func (c Config) ToBrokerOptions() []herald.Option {
	opts := []herald.Option{
		herald.WithIntentValidation(c.ValidateIntent),
		herald.WithImmediateIntent(c.ImmediateIntent),
		herald.WithEagerDelivery(c.Eager),
	}

	if len(c.AllowedDomains) > 0 {
		opts = append(opts, herald.WithAllowedDomains(c.AllowedDomains...))
	}
	if c.Concurrency > 0 {
		opts = append(opts, herald.WithConcurrency(c.Concurrency))
	}
	if c.PollInterval > 0 {
		opts = append(opts, herald.WithPollInterval(c.PollInterval))
	}
	if c.BatchSize > 0 {
		opts = append(opts, herald.WithBatchSize(c.BatchSize))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, herald.WithRequestTimeout(c.RequestTimeout))
	}
	if c.MaxAttempts > 0 {
		opts = append(opts, herald.WithMaxAttempts(c.MaxAttempts))
	}
	if len(c.RetrySchedule) > 0 {
		opts = append(opts, herald.WithRetrySchedule(c.RetrySchedule))
	}
	if c.DeliveryRateLimit > 0 {
		opts = append(opts, herald.WithDeliveryRateLimit(c.DeliveryRateLimit))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, herald.WithShutdownTimeout(c.ShutdownTimeout))
	}

	return opts
}

package herald

import (
	"log/slog"
	"time"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/store"
)

// Option configures a Broker.
type Option func(*Broker) error

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(b *Broker) error {
		b.store = s
		return nil
	}
}

// WithCatalog sets the event catalog.
func WithCatalog(c *catalog.Catalog) Option {
	return func(b *Broker) error {
		b.catalog = c
		return nil
	}
}

// WithConfig replaces the whole configuration. Options applied after it
// still take effect.
func WithConfig(cfg Config) Option {
	return func(b *Broker) error {
		b.config = cfg
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) error {
		b.logger = logger
		return nil
	}
}

// WithAllowedDomains sets the hosts subscriptions may point at.
func WithAllowedDomains(domains ...string) Option {
	return func(b *Broker) error {
		b.config.AllowedDomains = domains
		return nil
	}
}

// WithIntentValidation enables or disables intent validation.
func WithIntentValidation(enabled bool) Option {
	return func(b *Broker) error {
		b.config.ValidateIntent = enabled
		return nil
	}
}

// WithImmediateIntent controls whether challenges are sent on creation.
func WithImmediateIntent(enabled bool) Option {
	return func(b *Broker) error {
		b.config.ImmediateIntent = enabled
		return nil
	}
}

// WithEagerDelivery performs jobs inline when they are scheduled.
func WithEagerDelivery(enabled bool) Option {
	return func(b *Broker) error {
		b.config.Eager = enabled
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(b *Broker) error {
		b.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the engine checks for ready jobs.
func WithPollInterval(d time.Duration) Option {
	return func(b *Broker) error {
		b.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of jobs claimed per poll cycle.
func WithBatchSize(n int) Option {
	return func(b *Broker) error {
		b.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Broker) error {
		b.config.RequestTimeout = d
		return nil
	}
}

// WithMaxAttempts sets the number of attempts before a job is abandoned.
func WithMaxAttempts(n int) Option {
	return func(b *Broker) error {
		b.config.MaxAttempts = n
		return nil
	}
}

// WithRetrySchedule sets the delay before each retry.
func WithRetrySchedule(schedule []time.Duration) Option {
	return func(b *Broker) error {
		b.config.RetrySchedule = schedule
		return nil
	}
}

// WithDeliveryRateLimit caps attempts per second per destination host.
func WithDeliveryRateLimit(perSecond int) Option {
	return func(b *Broker) error {
		b.config.DeliveryRateLimit = perSecond
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight jobs on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(b *Broker) error {
		b.config.ShutdownTimeout = d
		return nil
	}
}

// WithMetrics records Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Broker) error {
		b.metrics = m
		return nil
	}
}

// WithTracer records OpenTelemetry spans.
func WithTracer(t *observability.Tracer) Option {
	return func(b *Broker) error {
		b.tracer = t
		return nil
	}
}

package herald

import (
	"time"

	"github.com/xraph/herald/delivery"
)

// Config holds the configuration for a Broker.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the engine checks for ready jobs.
	PollInterval time.Duration

	// BatchSize is the maximum number of jobs claimed per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per attempt.
	RequestTimeout time.Duration

	// MaxAttempts is the number of attempts before a job is abandoned.
	MaxAttempts int

	// RetrySchedule defines the delay before each retry.
	RetrySchedule []time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight jobs on shutdown.
	ShutdownTimeout time.Duration

	// AllowedDomains lists the hosts subscriptions may point at. A host
	// matches an entry exactly or as a subdomain; "*" allows any host.
	AllowedDomains []string

	// ValidateIntent creates subscriptions inactive until the subscriber
	// proves ownership of its URL.
	ValidateIntent bool

	// ImmediateIntent sends the intent challenge as soon as a subscription
	// is created. When false, subscribers must activate by token.
	ImmediateIntent bool

	// Eager performs jobs inline when they are scheduled instead of waiting
	// for the worker pool.
	Eager bool

	// DeliveryRateLimit caps attempts per second per destination host.
	// 0 means unlimited.
	DeliveryRateLimit int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  15 * time.Second,
		MaxAttempts:     delivery.DefaultMaxAttempts,
		RetrySchedule:   delivery.DefaultSchedule,
		ShutdownTimeout: 30 * time.Second,
		ValidateIntent:  true,
		ImmediateIntent: true,
	}
}

package herald

import (
	"context"
	"log/slog"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dispatch"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/intent"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/subscription"
)

// Broker is the root webhook broker.
type Broker struct {
	config  Config
	store   store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	subscriptions *subscription.Service
	validator     *intent.Validator
	dispatcher    *dispatch.Dispatcher
	engine        *delivery.Engine
	dlqSvc        *dlq.Service
}

// New creates a Broker with the given options.
func New(opts ...Option) (*Broker, error) {
	b := &Broker{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.store == nil {
		return nil, ErrNoStore
	}
	if b.catalog == nil {
		return nil, ErrNoCatalog
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.wireServices()
	return b, nil
}

// wireServices initializes the internal services after options have been applied.
func (b *Broker) wireServices() {
	mode := intent.ModeFrom(b.config.ValidateIntent, b.config.ImmediateIntent)

	b.subscriptions = subscription.NewService(b.store, b.catalog, b.logger,
		subscription.WithAllowList(subscription.NewAllowList(b.config.AllowedDomains...)),
		subscription.WithIntentValidation(mode != intent.Disabled),
	)

	b.dlqSvc = dlq.NewService(b.store, b.logger)

	b.engine = delivery.NewEngine(b.store, b.dlqSvc, delivery.EngineConfig{
		Concurrency:   b.config.Concurrency,
		PollInterval:  b.config.PollInterval,
		BatchSize:     b.config.BatchSize,
		MaxAttempts:   b.config.MaxAttempts,
		RetrySchedule: b.config.RetrySchedule,
		Eager:         b.config.Eager,
		RateLimit:     b.config.DeliveryRateLimit,
		Metrics:       b.metrics,
		Tracer:        b.tracer,
	}, b.logger)

	sender := delivery.NewSender(b.config.RequestTimeout)
	b.validator = intent.NewValidator(b.store, sender, b.engine, mode, b.logger)

	b.engine.Handle(delivery.KindCallback, sender)
	b.engine.Handle(delivery.KindChallenge, b.validator)

	b.dispatcher = dispatch.New(b.catalog, b.store, b.engine, b.logger,
		dispatch.WithMetrics(b.metrics),
		dispatch.WithTracer(b.tracer),
	)
}

// Start begins the delivery worker pool.
func (b *Broker) Start(ctx context.Context) {
	b.engine.Start(ctx)
	b.logger.InfoContext(ctx, "herald started",
		"intent", b.validator.Mode().String(),
		"eager", b.config.Eager,
		"concurrency", b.config.Concurrency,
	)
}

// Stop shuts down the worker pool, waiting up to ShutdownTimeout for
// in-flight jobs.
func (b *Broker) Stop(ctx context.Context) error {
	if b.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.ShutdownTimeout)
		defer cancel()
	}
	return b.engine.Stop(ctx)
}

// Register creates a subscription or returns the existing one. created is
// false for an existing subscription. In immediate intent mode a challenge is
// scheduled for every new subscription.
func (b *Broker) Register(ctx context.Context, in subscription.Input) (sub *subscription.Subscription, created bool, err error) {
	sub, created, err = b.subscriptions.Register(ctx, in)
	if err != nil || !created {
		return sub, created, err
	}

	if err := b.validator.Schedule(ctx, sub); err != nil {
		// The subscriber can still activate by token.
		b.logger.ErrorContext(ctx, "schedule intent challenge failed",
			"subscription_id", sub.ID.String(), "error", err)
	}
	return sub, true, nil
}

// Activate activates a subscription by its secret.
func (b *Broker) Activate(ctx context.Context, subID id.ID, secret string) error {
	return b.validator.ActivateByToken(ctx, subID, secret)
}

// Publish authenticates pub and schedules its callbacks. proof is the
// publisher's signature; it is ignored for events without a secret.
func (b *Broker) Publish(ctx context.Context, pub event.Publication, proof string) (int, error) {
	return b.dispatcher.Publish(ctx, pub, proof)
}

// Subscriptions lists subscriptions.
func (b *Broker) Subscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	return b.subscriptions.List(ctx, opts)
}

// Subscription returns one subscription.
func (b *Broker) Subscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	return b.subscriptions.Get(ctx, subID)
}

// Abandoned lists jobs that exhausted their attempts.
func (b *Broker) Abandoned(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	return b.dlqSvc.List(ctx, opts)
}

// Ping checks the store.
func (b *Broker) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

// Config returns the effective configuration.
func (b *Broker) Config() Config {
	return b.config
}

// Catalog returns the event catalog.
func (b *Broker) Catalog() *catalog.Catalog {
	return b.catalog
}

// Store returns the underlying store.
func (b *Broker) Store() store.Store {
	return b.store
}

// Engine returns the delivery engine.
func (b *Broker) Engine() *delivery.Engine {
	return b.engine
}

// Intent returns the intent validator.
func (b *Broker) Intent() *intent.Validator {
	return b.validator
}

// DLQ returns the abandoned-job service.
func (b *Broker) DLQ() *dlq.Service {
	return b.dlqSvc
}

// Package dispatch turns an authenticated publication into one signed
// callback job per matching subscription.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/filter"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/signature"
	"github.com/xraph/herald/subscription"
)

// ErrUnauthorized is returned when a publication for a secured event carries
// a missing or wrong signature.
var ErrUnauthorized = errors.New("herald: publication signature invalid")

// Events resolves event names. *catalog.Catalog satisfies it.
type Events interface {
	Lookup(name string) (catalog.EventDefinition, bool)
}

// Subscriptions lists the recipients of an event.
type Subscriptions interface {
	ListActiveForEvent(ctx context.Context, event string) ([]*subscription.Subscription, error)
}

// Scheduler hands jobs to the delivery engine.
type Scheduler interface {
	Schedule(ctx context.Context, jobs ...*delivery.Job) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records publication outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer traces each publication.
func WithTracer(t *observability.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// Dispatcher fans publications out to subscribers.
type Dispatcher struct {
	events    Events
	subs      Subscriptions
	scheduler Scheduler
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger

	// compiled caches filter expressions by source text.
	compiled sync.Map
}

// New creates a dispatcher.
func New(events Events, subs Subscriptions, scheduler Scheduler, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		events:    events,
		subs:      subs,
		scheduler: scheduler,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish authenticates pub against proof, then schedules one callback job
// for every active subscription whose filter matches. It returns the number of
// jobs scheduled and does not wait for any delivery.
func (d *Dispatcher) Publish(ctx context.Context, pub event.Publication, proof string) (n int, err error) {
	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.StartPublishSpan(ctx, pub.Event)
		defer func() { d.tracer.EndPublishSpan(span, n, err) }()
	}

	def, ok := d.events.Lookup(pub.Event)
	if !ok {
		d.metrics.RecordPublication("unknown_event")
		return 0, catalog.ErrEventNotFound
	}

	if def.RequiresSignature() && !d.authentic(pub, def.Secret, proof) {
		d.metrics.RecordPublication("unauthorized")
		d.logger.WarnContext(ctx, "publication rejected", "event", pub.Event, "reason", "signature")
		return 0, ErrUnauthorized
	}

	subs, err := d.subs.ListActiveForEvent(ctx, pub.Event)
	if err != nil {
		d.metrics.RecordPublication("error")
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	data, err := filter.Decode(pub.Payload)
	if err != nil {
		d.metrics.RecordPublication("error")
		return 0, err
	}

	jobs := make([]*delivery.Job, 0, len(subs))
	for _, sub := range subs {
		if !d.matches(ctx, sub, data) {
			continue
		}
		job, err := callbackJob(pub, sub)
		if err != nil {
			d.logger.ErrorContext(ctx, "build callback failed", "subscription_id", sub.ID.String(), "error", err)
			continue
		}
		jobs = append(jobs, job)
	}

	if err := d.scheduler.Schedule(ctx, jobs...); err != nil {
		d.metrics.RecordPublication("error")
		return 0, err
	}

	d.metrics.RecordPublication("accepted")
	d.logger.DebugContext(ctx, "publication dispatched",
		"event", pub.Event, "subscriptions", len(subs), "jobs", len(jobs))
	return len(jobs), nil
}

func (d *Dispatcher) authentic(pub event.Publication, secret, proof string) bool {
	canonical, err := signature.Canonicalize(event.PublicationBody(pub))
	if err != nil {
		return false
	}
	return signature.VerifyBytes(canonical, secret, proof)
}

// matches evaluates sub's filter. An expression that fails to compile or
// evaluate is logged and treated as no match.
func (d *Dispatcher) matches(ctx context.Context, sub *subscription.Subscription, data any) bool {
	if sub.EventFilter == "" {
		return true
	}

	x, err := d.compile(sub.EventFilter)
	if err == nil {
		var ok bool
		if ok, err = x.Match(data); err == nil {
			return ok
		}
	}

	d.logger.WarnContext(ctx, "filter evaluation failed",
		"subscription_id", sub.ID.String(), "event_filter", sub.EventFilter, "error", err)
	return false
}

func (d *Dispatcher) compile(expr string) (*filter.Expr, error) {
	if x, ok := d.compiled.Load(expr); ok {
		return x.(*filter.Expr), nil
	}
	x, err := filter.Compile(expr)
	if err != nil {
		return nil, err
	}
	d.compiled.Store(expr, x)
	return x, nil
}

func callbackJob(pub event.Publication, sub *subscription.Subscription) (*delivery.Job, error) {
	body, err := json.Marshal(event.NewCallback(pub.Event, sub.EventFilter, sub.ID.String(), pub.Payload))
	if err != nil {
		return nil, err
	}
	canonical, err := signature.Canonicalize(json.RawMessage(body))
	if err != nil {
		return nil, err
	}
	return &delivery.Job{
		Kind:           delivery.KindCallback,
		SubscriptionID: sub.ID,
		Event:          pub.Event,
		URL:            sub.URL,
		Body:           canonical,
		Signature:      signature.SignBytes(canonical, sub.Secret),
	}, nil
}

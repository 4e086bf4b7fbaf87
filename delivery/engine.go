package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/observability"
	"github.com/xraph/herald/ratelimit"
)

// AbandonSink is notified when a job exhausts its attempts.
type AbandonSink interface {
	RecordAbandoned(ctx context.Context, job *Job) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency   int
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RetrySchedule []time.Duration

	// Eager runs ready jobs inline from Schedule instead of waiting for the
	// poll loop.
	Eager bool

	// RateLimit caps attempts per second per destination host. 0 means
	// unlimited.
	RateLimit int

	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Engine is the worker pool that claims and performs jobs.
type Engine struct {
	store   Store
	sink    AbandonSink
	retrier *Retrier
	limiter *ratelimit.Limiter
	config  EngineConfig
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[Kind]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates a delivery engine. sink may be nil.
func NewEngine(store Store, sink AbandonSink, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Engine{
		store:    store,
		sink:     sink,
		retrier:  NewRetrier(cfg.RetrySchedule),
		limiter:  ratelimit.New(),
		config:   cfg,
		logger:   logger,
		handlers: make(map[Kind]Handler),
	}
}

// Handle registers the handler for jobs of kind.
func (e *Engine) Handle(kind Kind, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[kind] = h
}

func (e *Engine) handler(kind Kind) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[kind]
	return h, ok
}

// Schedule persists jobs as pending and ready now. Zero-valued IDs, states,
// attempt limits and timestamps are filled in. In eager mode the ready jobs
// are then performed before Schedule returns.
func (e *Engine) Schedule(ctx context.Context, jobs ...*Job) error {
	if len(jobs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	counts := map[Kind]int{}
	for _, j := range jobs {
		if j.ID.IsNil() {
			j.ID = id.NewJobID()
		}
		if j.CreatedAt.IsZero() {
			j.Entity = entity.New()
		}
		if j.State == "" {
			j.State = StatePending
		}
		if j.MaxAttempts <= 0 {
			j.MaxAttempts = e.config.MaxAttempts
		}
		if j.NextAttemptAt.IsZero() {
			j.NextAttemptAt = now
		}
		counts[j.Kind]++
	}

	var err error
	if len(jobs) == 1 {
		err = e.store.Enqueue(ctx, jobs[0])
	} else {
		err = e.store.EnqueueBatch(ctx, jobs)
	}
	if err != nil {
		return fmt.Errorf("schedule jobs: %w", err)
	}

	for kind, n := range counts {
		e.config.Metrics.RecordScheduled(string(kind), n)
	}

	if e.config.Eager {
		return e.Drain(ctx)
	}
	return nil
}

// Drain claims and performs ready jobs synchronously until none are left.
// Jobs whose retry is scheduled in the future are left for the poll loop.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
		if err != nil {
			return fmt.Errorf("dequeue: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		for _, j := range batch {
			e.process(ctx, j)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// Start begins the worker pool and poll loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for in-flight jobs to complete or for
// ctx to end, whichever comes first.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pollLoop periodically claims ready jobs and dispatches them to workers.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, e.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			batch, err := e.store.Dequeue(ctx, e.config.BatchSize)
			if err != nil {
				e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
				continue
			}

			for _, j := range batch {
				select {
				case <-ctx.Done():
					return
				case sem <- struct{}{}:
				}

				e.wg.Add(1)
				go func(job *Job) {
					defer e.wg.Done()
					defer func() { <-sem }()
					e.process(ctx, job)
				}(j)
			}
		}
	}
}

// process performs one attempt of a claimed job and records the outcome.
func (e *Engine) process(ctx context.Context, job *Job) {
	if wait := e.throttle(job); wait > 0 {
		e.postpone(ctx, job, wait)
		return
	}

	var span trace.Span
	if e.config.Tracer != nil {
		ctx, span = e.config.Tracer.StartJobSpan(ctx, job.ID.String(), string(job.Kind), job.SubscriptionID.String(), job.AttemptCount+1)
	}

	var result Result
	if h, ok := e.handler(job.Kind); ok {
		result = h.Perform(ctx, job)
	} else {
		result = Result{Error: fmt.Sprintf("no handler for job kind %q", job.Kind)}
	}

	job.AttemptCount++
	job.LastError = result.Error
	job.LastStatusCode = result.StatusCode
	job.LastResponse = result.Response
	job.LastLatencyMs = result.LatencyMs
	job.Touch()

	decision := e.retrier.Decide(result, job)
	e.config.Metrics.RecordAttempt(string(job.Kind), decision.String(), float64(result.LatencyMs)/1000.0)

	switch decision {
	case Delivered:
		now := time.Now().UTC()
		job.State = StateDelivered
		job.CompletedAt = &now
		e.logger.DebugContext(ctx, "job delivered",
			"job_id", job.ID, "kind", job.Kind, "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		job.State = StateRetryScheduled
		job.NextAttemptAt = e.retrier.ComputeNextAttempt(job.AttemptCount)
		e.logger.DebugContext(ctx, "job retry scheduled",
			"job_id", job.ID, "kind", job.Kind, "attempt", job.AttemptCount, "next_at", job.NextAttemptAt, "error", result.Error)

	case Abandon:
		now := time.Now().UTC()
		job.State = StateAbandoned
		job.CompletedAt = &now
		e.logger.WarnContext(ctx, "job abandoned",
			"job_id", job.ID, "kind", job.Kind, "subscription_id", job.SubscriptionID,
			"attempts", job.AttemptCount, "status", result.StatusCode, "error", result.Error)
	}

	if span != nil {
		e.config.Tracer.EndJobSpan(span, job.LastStatusCode, job.LastLatencyMs, job.LastError)
	}

	if err := e.store.UpdateJob(ctx, job); err != nil {
		e.logger.ErrorContext(ctx, "update job failed", "job_id", job.ID, "error", err)
	}

	if decision == Abandon && e.sink != nil {
		if err := e.sink.RecordAbandoned(ctx, job); err != nil {
			e.logger.ErrorContext(ctx, "record abandoned job failed", "job_id", job.ID, "error", err)
		}
	}
}

// throttle returns how long job must wait for its destination host, or zero
// when it may run now.
func (e *Engine) throttle(job *Job) time.Duration {
	if e.config.RateLimit <= 0 {
		return 0
	}
	host := job.URL
	if u, err := url.Parse(job.URL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	if e.limiter.Allow(host, e.config.RateLimit) {
		return 0
	}
	if wait := e.limiter.RetryAfter(host, e.config.RateLimit); wait > 0 {
		return wait
	}
	return time.Second / time.Duration(e.config.RateLimit)
}

// postpone releases a claimed job back to the queue without spending an attempt.
func (e *Engine) postpone(ctx context.Context, job *Job, wait time.Duration) {
	if job.AttemptCount == 0 {
		job.State = StatePending
	} else {
		job.State = StateRetryScheduled
	}
	job.NextAttemptAt = time.Now().UTC().Add(wait)
	job.Touch()
	e.logger.DebugContext(ctx, "job deferred by rate limit", "job_id", job.ID, "wait", wait)
	if err := e.store.UpdateJob(ctx, job); err != nil {
		e.logger.ErrorContext(ctx, "update job failed", "job_id", job.ID, "error", err)
	}
}

package delivery_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/store/memory"
)

// stubSink records abandoned jobs.
type stubSink struct {
	mu    sync.Mutex
	jobs  []*delivery.Job
	count atomic.Int32
}

func (s *stubSink) RecordAbandoned(_ context.Context, job *delivery.Job) error {
	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.mu.Unlock()
	s.count.Add(1)
	return nil
}

func testConfig() delivery.EngineConfig {
	return delivery.EngineConfig{
		Concurrency:   2,
		PollInterval:  20 * time.Millisecond,
		BatchSize:     10,
		MaxAttempts:   3,
		RetrySchedule: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond},
	}
}

func setupEngine(t *testing.T, handler http.Handler, sink delivery.AbandonSink, cfg delivery.EngineConfig) (*memory.Store, *delivery.Engine, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := memory.New()
	engine := delivery.NewEngine(store, sink, cfg, nil)
	engine.Handle(delivery.KindCallback, delivery.NewSender(5*time.Second))
	return store, engine, srv
}

func waitForState(t *testing.T, store *memory.Store, job *delivery.Job, want delivery.State) *delivery.Job {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		got, err := store.GetJob(context.Background(), job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State == want {
			return got
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for state %s, last %s", want, got.State)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEngineDeliversSuccessfully(t *testing.T) {
	var hits atomic.Int32
	sink := &stubSink{}
	store, engine, srv := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}), sink, testConfig())

	ctx := context.Background()
	job := newCallbackJob(srv.URL)
	if err := engine.Schedule(ctx, job); err != nil {
		t.Fatal(err)
	}

	engine.Start(ctx)
	got := waitForState(t, store, job, delivery.StateDelivered)
	if err := engine.Stop(ctx); err != nil {
		t.Fatal(err)
	}

	if hits.Load() != 1 {
		t.Fatalf("expected 1 request, got %d", hits.Load())
	}
	if got.AttemptCount != 1 || got.CompletedAt == nil {
		t.Fatalf("unexpected job %+v", got)
	}
	if sink.count.Load() != 0 {
		t.Fatal("expected nothing abandoned")
	}
}

func TestEngineRetriesAndSucceeds(t *testing.T) {
	var hits atomic.Int32
	store, engine, srv := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}), nil, testConfig())

	ctx := context.Background()
	job := newCallbackJob(srv.URL)
	if err := engine.Schedule(ctx, job); err != nil {
		t.Fatal(err)
	}

	engine.Start(ctx)
	got := waitForState(t, store, job, delivery.StateDelivered)
	_ = engine.Stop(ctx)

	if got.AttemptCount != 3 {
		t.Fatalf("expected 3 attempts, got %d", got.AttemptCount)
	}
}

func TestEngineAbandonsAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	sink := &stubSink{}
	store, engine, srv := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}), sink, testConfig())

	ctx := context.Background()
	job := newCallbackJob(srv.URL)
	if err := engine.Schedule(ctx, job); err != nil {
		t.Fatal(err)
	}

	engine.Start(ctx)
	got := waitForState(t, store, job, delivery.StateAbandoned)
	_ = engine.Stop(ctx)

	if got.AttemptCount != 3 || hits.Load() != 3 {
		t.Fatalf("expected exactly 3 attempts, job=%d server=%d", got.AttemptCount, hits.Load())
	}
	if got.LastStatusCode != http.StatusBadRequest {
		t.Fatalf("last status = %d", got.LastStatusCode)
	}
	if sink.count.Load() != 1 {
		t.Fatalf("expected 1 abandoned record, got %d", sink.count.Load())
	}
}

func TestEngineEagerRunsInline(t *testing.T) {
	var hits atomic.Int32
	cfg := testConfig()
	cfg.Eager = true
	store, engine, srv := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}), nil, cfg)

	ctx := context.Background()
	jobs := []*delivery.Job{newCallbackJob(srv.URL), newCallbackJob(srv.URL)}
	if err := engine.Schedule(ctx, jobs...); err != nil {
		t.Fatal(err)
	}

	if hits.Load() != 2 {
		t.Fatalf("expected 2 inline requests, got %d", hits.Load())
	}
	for _, j := range jobs {
		got, _ := store.GetJob(ctx, j.ID)
		if got.State != delivery.StateDelivered {
			t.Fatalf("job %s state = %s", j.ID, got.State)
		}
	}
}

func TestEngineDrainLeavesFutureRetries(t *testing.T) {
	cfg := testConfig()
	cfg.RetrySchedule = []time.Duration{time.Hour}
	store, engine, srv := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}), nil, cfg)

	ctx := context.Background()
	job := newCallbackJob(srv.URL)
	if err := engine.Schedule(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := engine.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetJob(ctx, job.ID)
	if got.State != delivery.StateRetryScheduled || got.AttemptCount != 1 {
		t.Fatalf("unexpected job %+v", got)
	}
	if !got.NextAttemptAt.After(time.Now().Add(30 * time.Minute)) {
		t.Fatalf("next attempt too soon: %v", got.NextAttemptAt)
	}
}

func TestEngineRateLimitDefersWithoutSpendingAttempt(t *testing.T) {
	var hits atomic.Int32
	cfg := testConfig()
	cfg.RateLimit = 1
	store, engine, srv := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}), nil, cfg)

	ctx := context.Background()
	first, second := newCallbackJob(srv.URL), newCallbackJob(srv.URL)
	if err := engine.Schedule(ctx, first, second); err != nil {
		t.Fatal(err)
	}
	if err := engine.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	if hits.Load() != 1 {
		t.Fatalf("expected 1 request within the limit, got %d", hits.Load())
	}

	var deferred *delivery.Job
	for _, j := range []*delivery.Job{first, second} {
		got, _ := store.GetJob(ctx, j.ID)
		if got.State == delivery.StatePending {
			deferred = got
		}
	}
	if deferred == nil {
		t.Fatal("expected one job deferred back to pending")
	}
	if deferred.AttemptCount != 0 {
		t.Fatalf("deferred job spent an attempt: %d", deferred.AttemptCount)
	}
	if !deferred.NextAttemptAt.After(time.Now()) {
		t.Fatal("deferred job should be scheduled in the future")
	}
}

func TestEngineUnknownKindAbandons(t *testing.T) {
	sink := &stubSink{}
	store := memory.New()
	engine := delivery.NewEngine(store, sink, testConfig(), nil)

	ctx := context.Background()
	job := newCallbackJob("http://example.invalid/")
	job.Kind = "unknown"
	job.MaxAttempts = 1
	if err := engine.Schedule(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := engine.Drain(ctx); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetJob(ctx, job.ID)
	if got.State != delivery.StateAbandoned {
		t.Fatalf("state = %s", got.State)
	}
	if sink.count.Load() != 1 {
		t.Fatal("expected abandoned record")
	}
}

func TestEngineStopWithoutStart(t *testing.T) {
	engine := delivery.NewEngine(memory.New(), nil, testConfig(), nil)
	if err := engine.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestEngineDefaultScheduleSpacing(t *testing.T) {
	cfg := testConfig()
	cfg.RetrySchedule = nil
	cfg.MaxAttempts = 0
	sink := &stubSink{}
	store, engine, srv := setupEngine(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}), sink, cfg)

	ctx := context.Background()
	job := newCallbackJob(srv.URL)
	job.MaxAttempts = 0
	if err := engine.Schedule(ctx, job); err != nil {
		t.Fatal(err)
	}

	// runDue makes the job due, performs it and returns it along with the time
	// the attempt started.
	runDue := func() (*delivery.Job, time.Time) {
		t.Helper()
		got, err := store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		got.NextAttemptAt = time.Now().UTC().Add(-time.Millisecond)
		if err := store.UpdateJob(ctx, got); err != nil {
			t.Fatal(err)
		}
		before := time.Now().UTC()
		if err := engine.Drain(ctx); err != nil {
			t.Fatal(err)
		}
		got, err = store.GetJob(ctx, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		return got, before
	}

	for i, want := range []time.Duration{10 * time.Second, 30 * time.Second} {
		got, started := runDue()
		if got.State != delivery.StateRetryScheduled || got.AttemptCount != i+1 {
			t.Fatalf("attempt %d: state=%s attempts=%d", i+1, got.State, got.AttemptCount)
		}
		delay := got.NextAttemptAt.Sub(started)
		if delay < want-time.Second || delay > want+time.Second {
			t.Fatalf("attempt %d: next attempt in %v, want about %v", i+1, delay, want)
		}
	}

	got, _ := runDue()
	if got.State != delivery.StateAbandoned || got.AttemptCount != delivery.DefaultMaxAttempts {
		t.Fatalf("expected abandonment after %d attempts, got state=%s attempts=%d",
			delivery.DefaultMaxAttempts, got.State, got.AttemptCount)
	}
	if sink.count.Load() != 1 {
		t.Fatalf("expected 1 abandoned record, got %d", sink.count.Load())
	}
}

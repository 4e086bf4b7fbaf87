package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/subscription"
)

func ctx() context.Context { return context.Background() }

func newSub(event, filter, url string, active bool) *subscription.Subscription {
	return &subscription.Subscription{
		Entity:      entity.New(),
		ID:          id.NewSubscriptionID(),
		Event:       event,
		EventFilter: filter,
		URL:         url,
		Secret:      "whsec_test",
		Active:      active,
	}
}

func newJob(next time.Time) *delivery.Job {
	return &delivery.Job{
		Entity:        entity.New(),
		ID:            id.NewJobID(),
		Kind:          delivery.KindCallback,
		URL:           "https://example.com/hook",
		State:         delivery.StatePending,
		MaxAttempts:   3,
		NextAttemptAt: next,
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, herald.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

func TestSubscriptionUniqueness(t *testing.T) {
	s := New()
	sub := newSub("orders.created", "", "https://example.com/a", false)

	if err := s.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}
	dup := newSub("orders.created", "", "https://example.com/a", true)
	if err := s.CreateSubscription(ctx(), dup); !errors.Is(err, subscription.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Filter is part of the key.
	if err := s.CreateSubscription(ctx(), newSub("orders.created", "$.a", "https://example.com/a", false)); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindExact(ctx(), "orders.created", "", "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != sub.ID {
		t.Fatal("FindExact returned the wrong subscription")
	}

	if _, err := s.FindExact(ctx(), "orders.created", "", "https://example.com/b"); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscriptionActivate(t *testing.T) {
	s := New()
	sub := newSub("orders.created", "", "https://example.com/a", false)
	_ = s.CreateSubscription(ctx(), sub)

	active, _ := s.ListActiveForEvent(ctx(), "orders.created")
	if len(active) != 0 {
		t.Fatal("inactive subscription listed as active")
	}

	if err := s.ActivateSubscription(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.ActivateSubscription(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}

	active, _ = s.ListActiveForEvent(ctx(), "orders.created")
	if len(active) != 1 {
		t.Fatalf("expected 1 active, got %d", len(active))
	}

	if err := s.ActivateSubscription(ctx(), id.NewSubscriptionID()); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSubscriptionReturnsCopies(t *testing.T) {
	s := New()
	sub := newSub("orders", "", "https://example.com/a", false)
	_ = s.CreateSubscription(ctx(), sub)

	got, _ := s.GetSubscription(ctx(), sub.ID)
	got.Active = true

	again, _ := s.GetSubscription(ctx(), sub.ID)
	if again.Active {
		t.Fatal("mutating a returned subscription changed the store")
	}
}

func TestListSubscriptions(t *testing.T) {
	s := New()
	for i, url := range []string{"https://a.test/", "https://b.test/", "https://c.test/"} {
		sub := newSub("orders", "", url, i == 0)
		sub.CreatedAt = sub.CreatedAt.Add(time.Duration(i) * time.Second)
		_ = s.CreateSubscription(ctx(), sub)
	}
	_ = s.CreateSubscription(ctx(), newSub("users", "", "https://d.test/", true))

	all, _ := s.ListSubscriptions(ctx(), subscription.ListOpts{})
	if len(all) != 4 {
		t.Fatalf("expected 4, got %d", len(all))
	}

	orders, _ := s.ListSubscriptions(ctx(), subscription.ListOpts{Event: "orders"})
	if len(orders) != 3 || orders[0].URL != "https://a.test/" {
		t.Fatalf("expected oldest first, got %v", orders)
	}

	active := true
	got, _ := s.ListSubscriptions(ctx(), subscription.ListOpts{Event: "orders", Active: &active})
	if len(got) != 1 {
		t.Fatalf("expected 1 active, got %d", len(got))
	}

	page, _ := s.ListSubscriptions(ctx(), subscription.ListOpts{Event: "orders", Offset: 1, Limit: 1})
	if len(page) != 1 || page[0].URL != "https://b.test/" {
		t.Fatalf("unexpected page %v", page)
	}

	past, _ := s.ListSubscriptions(ctx(), subscription.ListOpts{Offset: 10})
	if len(past) != 0 {
		t.Fatalf("expected empty page, got %d", len(past))
	}
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

func TestDequeueClaimsReadyJobs(t *testing.T) {
	s := New()
	ready := newJob(time.Now().Add(-time.Second))
	future := newJob(time.Now().Add(time.Hour))
	if err := s.EnqueueBatch(ctx(), []*delivery.Job{ready, future}); err != nil {
		t.Fatal(err)
	}

	batch, err := s.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].ID != ready.ID {
		t.Fatalf("expected only the ready job, got %d", len(batch))
	}
	if batch[0].State != delivery.StateAttempting {
		t.Fatalf("claimed state = %s", batch[0].State)
	}

	again, _ := s.Dequeue(ctx(), 10)
	if len(again) != 0 {
		t.Fatal("claimed job returned twice")
	}

	n, _ := s.CountPending(ctx())
	if n != 2 {
		t.Fatalf("pending = %d, want 2", n)
	}
}

func TestDequeueConcurrentNoDoubleClaim(t *testing.T) {
	s := New()
	for i := 0; i < 50; i++ {
		_ = s.Enqueue(ctx(), newJob(time.Now()))
	}

	var mu sync.Mutex
	seen := map[id.ID]int{}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch, _ := s.Dequeue(ctx(), 3)
				if len(batch) == 0 {
					return
				}
				mu.Lock()
				for _, j := range batch {
					seen[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("claimed %d distinct jobs, want 50", len(seen))
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", jobID, n)
		}
	}
}

func TestUpdateAndGetJob(t *testing.T) {
	s := New()
	job := newJob(time.Now())
	_ = s.Enqueue(ctx(), job)

	job.State = delivery.StateDelivered
	job.AttemptCount = 1
	if err := s.UpdateJob(ctx(), job); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetJob(ctx(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != delivery.StateDelivered || got.AttemptCount != 1 {
		t.Fatalf("unexpected job %+v", got)
	}

	if n, _ := s.CountPending(ctx()); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}

	if err := s.UpdateJob(ctx(), newJob(time.Now())); !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetJob(ctx(), id.NewJobID()); !errors.Is(err, delivery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListJobs(t *testing.T) {
	s := New()
	cb := newJob(time.Now())
	ch := newJob(time.Now())
	ch.Kind = delivery.KindChallenge
	_ = s.EnqueueBatch(ctx(), []*delivery.Job{cb, ch})

	got, _ := s.ListJobs(ctx(), delivery.ListOpts{Kind: delivery.KindChallenge})
	if len(got) != 1 || got[0].ID != ch.ID {
		t.Fatalf("unexpected jobs %v", got)
	}

	pending := delivery.StatePending
	got, _ = s.ListJobs(ctx(), delivery.ListOpts{State: &pending})
	if len(got) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(got))
	}
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

func TestDLQ(t *testing.T) {
	s := New()
	old := &dlq.Entry{Entity: entity.New(), ID: id.NewAbandonedID(), Event: "orders", AbandonedAt: time.Now().Add(-2 * time.Hour)}
	recent := &dlq.Entry{Entity: entity.New(), ID: id.NewAbandonedID(), Event: "users", AbandonedAt: time.Now()}
	_ = s.Push(ctx(), old)
	_ = s.Push(ctx(), recent)

	all, _ := s.ListDLQ(ctx(), dlq.ListOpts{})
	if len(all) != 2 || all[0].ID != recent.ID {
		t.Fatal("expected newest first")
	}

	from := time.Now().Add(-time.Hour)
	got, _ := s.ListDLQ(ctx(), dlq.ListOpts{From: &from})
	if len(got) != 1 || got[0].ID != recent.ID {
		t.Fatal("From filter not applied")
	}

	if _, err := s.GetDLQ(ctx(), old.ID); err != nil {
		t.Fatal(err)
	}

	n, _ := s.Purge(ctx(), from)
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if c, _ := s.CountDLQ(ctx()); c != 1 {
		t.Fatalf("count = %d, want 1", c)
	}
	if _, err := s.GetDLQ(ctx(), old.ID); !errors.Is(err, dlq.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

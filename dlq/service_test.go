package dlq_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/store/memory"
)

func ctx() context.Context { return context.Background() }

func newService() (*dlq.Service, *memory.Store) {
	store := memory.New()
	return dlq.NewService(store, nil), store
}

func abandonedJob(event string) *delivery.Job {
	now := time.Now().UTC()
	return &delivery.Job{
		ID:             id.NewJobID(),
		Kind:           delivery.KindCallback,
		SubscriptionID: id.NewSubscriptionID(),
		Event:          event,
		URL:            "https://example.com/hook",
		Body:           json.RawMessage(`{"ok":true}`),
		State:          delivery.StateAbandoned,
		AttemptCount:   3,
		MaxAttempts:    3,
		LastError:      "unexpected status 500",
		LastStatusCode: 500,
		CompletedAt:    &now,
	}
}

func TestRecordAbandoned(t *testing.T) {
	svc, _ := newService()
	job := abandonedJob("orders.created")

	if err := svc.RecordAbandoned(ctx(), job); err != nil {
		t.Fatal(err)
	}

	entries, err := svc.List(ctx(), dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	e := entries[0]
	if e.ID.Prefix() != id.PrefixAbandoned {
		t.Fatalf("unexpected id %s", e.ID)
	}
	if e.JobID != job.ID || e.SubscriptionID != job.SubscriptionID {
		t.Fatal("entry does not reference the job")
	}
	if e.AttemptCount != 3 || e.LastStatusCode != 500 || e.Error != job.LastError {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !e.AbandonedAt.Equal(*job.CompletedAt) {
		t.Fatal("expected AbandonedAt from job completion time")
	}

	got, err := svc.Get(ctx(), e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Event != "orders.created" {
		t.Fatalf("event = %q", got.Event)
	}
}

func TestListFilters(t *testing.T) {
	svc, _ := newService()
	_ = svc.RecordAbandoned(ctx(), abandonedJob("orders.created"))
	_ = svc.RecordAbandoned(ctx(), abandonedJob("orders.created"))
	_ = svc.RecordAbandoned(ctx(), abandonedJob("users.deleted"))

	entries, err := svc.List(ctx(), dlq.ListOpts{Event: "orders.created"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	entries, _ = svc.List(ctx(), dlq.ListOpts{Limit: 1})
	if len(entries) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(entries))
	}

	n, err := svc.Count(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("count = %d, want 3", n)
	}
}

func TestPurge(t *testing.T) {
	svc, _ := newService()
	_ = svc.RecordAbandoned(ctx(), abandonedJob("orders.created"))

	n, err := svc.Purge(ctx(), time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("purged %d, want 0", n)
	}

	n, err = svc.Purge(ctx(), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if c, _ := svc.Count(ctx()); c != 0 {
		t.Fatalf("count after purge = %d", c)
	}
}

func TestGetNotFound(t *testing.T) {
	svc, _ := newService()
	if _, err := svc.Get(ctx(), id.NewAbandonedID()); !errors.Is(err, dlq.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

package intent_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/intent"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/subscription"
)

func ctx() context.Context { return context.Background() }

func newSubscription(t *testing.T, store *memory.Store, url string) *subscription.Subscription {
	t.Helper()
	sub := &subscription.Subscription{
		Entity: entity.New(),
		ID:     id.NewSubscriptionID(),
		Event:  "orders.created",
		URL:    url,
		Secret: "whsec_0123456789abcdef",
	}
	if err := store.CreateSubscription(ctx(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

func newValidator(store *memory.Store, sched intent.Scheduler, mode intent.Mode) *intent.Validator {
	return intent.NewValidator(store, delivery.NewSender(5*time.Second), sched, mode, nil)
}

func isActive(t *testing.T, store *memory.Store, subID id.ID) bool {
	t.Helper()
	got, err := store.GetSubscription(ctx(), subID)
	if err != nil {
		t.Fatal(err)
	}
	return got.Active
}

func TestModeFrom(t *testing.T) {
	tests := []struct {
		validate, immediate bool
		want                intent.Mode
	}{
		{false, false, intent.Disabled},
		{false, true, intent.Disabled},
		{true, true, intent.Immediate},
		{true, false, intent.Delayed},
	}
	for _, tt := range tests {
		if got := intent.ModeFrom(tt.validate, tt.immediate); got != tt.want {
			t.Errorf("ModeFrom(%v, %v) = %v, want %v", tt.validate, tt.immediate, got, tt.want)
		}
	}
}

func TestChallengeActivates(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("x-hook-secret", r.Header.Get("x-hook-secret"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memory.New()
	sub := newSubscription(t, store, srv.URL)
	v := newValidator(store, nil, intent.Immediate)

	res := v.Challenge(ctx(), sub)
	if res.Outcome != intent.Activated {
		t.Fatalf("outcome = %v, error %q", res.Outcome, res.Attempt.Error)
	}
	if gotBody["intention"] != "pure" {
		t.Fatalf("challenge body = %v", gotBody)
	}
	if !isActive(t, store, sub.ID) {
		t.Fatal("expected subscription to be active")
	}
}

func TestChallengeMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("x-hook-secret", "whsec_wrong")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := memory.New()
	sub := newSubscription(t, store, srv.URL)

	res := newValidator(store, nil, intent.Immediate).Challenge(ctx(), sub)
	if res.Outcome != intent.Mismatch {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if res.Attempt.OK() {
		t.Fatal("a mismatch must count as a failed attempt")
	}
	if isActive(t, store, sub.ID) {
		t.Fatal("subscription must stay inactive")
	}
}

func TestChallengeNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-hook-secret", r.Header.Get("x-hook-secret"))
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := memory.New()
	sub := newSubscription(t, store, srv.URL)

	res := newValidator(store, nil, intent.Immediate).Challenge(ctx(), sub)
	if res.Outcome != intent.TransportError {
		t.Fatalf("outcome = %v", res.Outcome)
	}
	if isActive(t, store, sub.ID) {
		t.Fatal("subscription must stay inactive")
	}
}

func TestActivateByToken(t *testing.T) {
	store := memory.New()
	sub := newSubscription(t, store, "https://example.com/hook")
	v := newValidator(store, nil, intent.Delayed)

	if err := v.ActivateByToken(ctx(), sub.ID, "whsec_wrong"); !errors.Is(err, intent.ErrMismatch) {
		t.Fatalf("expected ErrMismatch, got %v", err)
	}
	if err := v.ActivateByToken(ctx(), sub.ID, ""); !errors.Is(err, intent.ErrMismatch) {
		t.Fatalf("expected ErrMismatch for empty secret, got %v", err)
	}
	if isActive(t, store, sub.ID) {
		t.Fatal("wrong secret must not activate")
	}

	if err := v.ActivateByToken(ctx(), sub.ID, sub.Secret); err != nil {
		t.Fatal(err)
	}
	if err := v.ActivateByToken(ctx(), sub.ID, sub.Secret); err != nil {
		t.Fatalf("repeat activation: %v", err)
	}
	if !isActive(t, store, sub.ID) {
		t.Fatal("expected active")
	}

	if err := v.ActivateByToken(ctx(), id.NewSubscriptionID(), sub.Secret); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPerformSkipsActiveSubscription(t *testing.T) {
	store := memory.New()
	sub := newSubscription(t, store, "http://127.0.0.1:1/unreachable")
	if err := store.ActivateSubscription(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}

	res := newValidator(store, nil, intent.Immediate).Perform(ctx(), &delivery.Job{
		Kind:           delivery.KindChallenge,
		SubscriptionID: sub.ID,
	})
	if !res.OK() || !res.Skipped {
		t.Fatalf("expected skipped success, got %+v", res)
	}
}

func TestScheduleAndRunChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-hook-secret", r.Header.Get("x-hook-secret"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := memory.New()
	engine := delivery.NewEngine(store, nil, delivery.EngineConfig{Eager: true}, nil)
	v := newValidator(store, engine, intent.Immediate)
	engine.Handle(delivery.KindChallenge, v)

	sub := newSubscription(t, store, srv.URL)
	if err := v.Schedule(ctx(), sub); err != nil {
		t.Fatal(err)
	}
	if !isActive(t, store, sub.ID) {
		t.Fatal("expected eager challenge to activate the subscription")
	}

	jobs, err := store.ListJobs(ctx(), delivery.ListOpts{Kind: delivery.KindChallenge})
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].State != delivery.StateDelivered {
		t.Fatalf("unexpected jobs %+v", jobs)
	}
}

func TestScheduleDelayedDoesNothing(t *testing.T) {
	store := memory.New()
	engine := delivery.NewEngine(store, nil, delivery.EngineConfig{}, nil)
	v := newValidator(store, engine, intent.Delayed)

	sub := newSubscription(t, store, "https://example.com/hook")
	if err := v.Schedule(ctx(), sub); err != nil {
		t.Fatal(err)
	}
	n, _ := store.CountPending(ctx())
	if n != 0 {
		t.Fatalf("expected no jobs, got %d", n)
	}
}

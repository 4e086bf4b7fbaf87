package subscription_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/store/memory"
	"github.com/xraph/herald/subscription"
)

func ctx() context.Context { return context.Background() }

func newService(t *testing.T, opts ...subscription.ServiceOption) *subscription.Service {
	t.Helper()
	cat, err := catalog.Parse([]byte("events:\n  orders:\n    created:\n    shipped:\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts = append([]subscription.ServiceOption{subscription.WithAllowList(subscription.NewAllowList("example.com"))}, opts...)
	return subscription.NewService(memory.New(), cat, nil, opts...)
}

func TestRegisterCreates(t *testing.T) {
	svc := newService(t)

	sub, created, err := svc.Register(ctx(), subscription.Input{
		Event: "orders.created",
		URL:   "https://hooks.example.com/in",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected created")
	}
	if sub.ID.Prefix() != id.PrefixSubscription {
		t.Fatalf("unexpected id %q", sub.ID)
	}
	if !strings.HasPrefix(sub.Secret, "whsec_") {
		t.Fatalf("expected generated secret, got %q", sub.Secret)
	}
	if sub.Active {
		t.Fatal("expected inactive until intent is validated")
	}
}

func TestRegisterActiveWithoutIntentValidation(t *testing.T) {
	svc := newService(t, subscription.WithIntentValidation(false))

	sub, _, err := svc.Register(ctx(), subscription.Input{Event: "orders", URL: "https://example.com/in"})
	if err != nil {
		t.Fatal(err)
	}
	if !sub.Active {
		t.Fatal("expected active subscription")
	}
}

func TestRegisterIdempotent(t *testing.T) {
	svc := newService(t)
	in := subscription.Input{Event: "orders.created", URL: "https://example.com/in", EventFilter: "$.id"}

	first, created, err := svc.Register(ctx(), in)
	if err != nil || !created {
		t.Fatalf("first register: created=%v err=%v", created, err)
	}

	second, created, err := svc.Register(ctx(), in)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Fatal("expected existing subscription")
	}
	if second.ID != first.ID || second.Secret != first.Secret {
		t.Fatal("expected the same subscription back")
	}

	// A different filter is a different subscription.
	third, created, err := svc.Register(ctx(), subscription.Input{Event: in.Event, URL: in.URL})
	if err != nil || !created {
		t.Fatalf("unfiltered register: created=%v err=%v", created, err)
	}
	if third.ID == first.ID {
		t.Fatal("expected a new subscription")
	}
}

func TestRegisterErrors(t *testing.T) {
	svc := newService(t)

	tests := []struct {
		name  string
		in    subscription.Input
		field string
		err   error
	}{
		{"missing event", subscription.Input{URL: "https://example.com"}, "event", nil},
		{"missing url", subscription.Input{Event: "orders"}, "url", nil},
		{"relative url", subscription.Input{Event: "orders", URL: "/hook"}, "url", nil},
		{"ftp url", subscription.Input{Event: "orders", URL: "ftp://example.com/x"}, "url", nil},
		{"bad filter", subscription.Input{Event: "orders", URL: "https://example.com", EventFilter: "$[?(@.a =="}, "event_filter", nil},
		{"unknown event", subscription.Input{Event: "orders.deleted", URL: "https://example.com"}, "", catalog.ErrEventNotFound},
		{"forbidden domain", subscription.Input{Event: "orders", URL: "https://evil.test/hook"}, "", subscription.ErrDomainNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Register(ctx(), tt.in)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("got %v, want %v", err, tt.err)
				}
				return
			}
			var ve *subscription.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Fatalf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestRegisterExistingBypassesAllowList(t *testing.T) {
	st := memory.New()
	cat, _ := catalog.Parse([]byte("events:\n  orders:\n"))

	open := subscription.NewService(st, cat, nil, subscription.WithAllowList(subscription.NewAllowList("*")))
	first, _, err := open.Register(ctx(), subscription.Input{Event: "orders", URL: "https://legacy.test/"})
	if err != nil {
		t.Fatal(err)
	}

	closed := subscription.NewService(st, cat, nil)
	got, created, err := closed.Register(ctx(), subscription.Input{Event: "orders", URL: "https://legacy.test/"})
	if err != nil {
		t.Fatalf("expected existing subscription, got %v", err)
	}
	if created || got.ID != first.ID {
		t.Fatal("expected the existing subscription")
	}
}

func TestActivateAndList(t *testing.T) {
	svc := newService(t)
	sub, _, _ := svc.Register(ctx(), subscription.Input{Event: "orders.created", URL: "https://example.com/a"})
	_, _, _ = svc.Register(ctx(), subscription.Input{Event: "orders.shipped", URL: "https://example.com/b"})

	active, err := svc.ListActiveForEvent(ctx(), "orders.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active subscriptions, got %d", len(active))
	}

	if err := svc.Activate(ctx(), sub.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.Activate(ctx(), sub.ID); err != nil {
		t.Fatalf("second activation: %v", err)
	}

	active, _ = svc.ListActiveForEvent(ctx(), "orders.created")
	if len(active) != 1 || active[0].ID != sub.ID {
		t.Fatalf("expected the activated subscription, got %v", active)
	}

	all, err := svc.List(ctx(), subscription.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", len(all))
	}

	if err := svc.Activate(ctx(), id.NewSubscriptionID()); !errors.Is(err, subscription.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestViewHidesSecret(t *testing.T) {
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), Event: "orders", URL: "https://example.com", Secret: "whsec_x"}
	v := sub.View()
	if v.EventFilter != nil {
		t.Fatal("expected null filter")
	}
	sub.EventFilter = "$.a"
	if v = sub.View(); v.EventFilter == nil || *v.EventFilter != "$.a" {
		t.Fatal("expected filter in view")
	}
}

package extension_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/herald"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/extension"
	"github.com/xraph/herald/store/memory"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte("events:\n  orders:\n    created:\n"))
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestRegisterAndMount(t *testing.T) {
	ctx := context.Background()
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithCatalog(testCatalog(t)),
		extension.WithPrefix("/webhooks"),
		extension.WithBrokerOption(herald.WithPollInterval(10*time.Millisecond)),
	)

	if err := ext.Health(ctx); !errors.Is(err, extension.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if err := ext.Register(ctx); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ext.Broker() == nil {
		t.Fatal("expected a broker after Register")
	}
	if err := ext.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	r := chi.NewRouter()
	ext.Mount(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhooks/check/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if err := ext.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ext.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestDisableRoutes(t *testing.T) {
	ext := extension.New(
		extension.WithStore(memory.New()),
		extension.WithCatalog(testCatalog(t)),
		extension.WithDisableRoutes(),
		extension.WithDisableMigrations(),
	)
	if err := ext.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r := chi.NewRouter()
	ext.Mount(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/check/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRegisterRequiresStoreAndCatalog(t *testing.T) {
	ctx := context.Background()

	if err := extension.New(extension.WithCatalog(testCatalog(t))).Register(ctx); !errors.Is(err, herald.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
	if err := extension.New(extension.WithStore(memory.New())).Register(ctx); !errors.Is(err, herald.ErrNoCatalog) {
		t.Fatalf("expected ErrNoCatalog, got %v", err)
	}
	if err := extension.New().Start(ctx); !errors.Is(err, extension.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestConfigAppliesToBroker(t *testing.T) {
	cfg := extension.DefaultConfig()
	cfg.ValidateIntent = false
	cfg.Eager = true
	cfg.MaxAttempts = 7
	cfg.AllowedDomains = []string{"example.com"}

	ext := extension.New(
		extension.WithConfig(cfg),
		extension.WithStore(memory.New()),
		extension.WithCatalog(testCatalog(t)),
	)
	if err := ext.Register(context.Background()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got := ext.Broker().Config()
	if got.ValidateIntent || !got.Eager {
		t.Errorf("intent/eager not applied: %+v", got)
	}
	if got.MaxAttempts != 7 {
		t.Errorf("max attempts = %d", got.MaxAttempts)
	}
	if got.RequestTimeout != herald.DefaultConfig().RequestTimeout {
		t.Errorf("request timeout = %v", got.RequestTimeout)
	}
	if len(got.AllowedDomains) != 1 || got.AllowedDomains[0] != "example.com" {
		t.Errorf("allowed domains = %v", got.AllowedDomains)
	}
}

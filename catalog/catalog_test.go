package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xraph/herald/catalog"
)

const eventsYAML = `
events:
  orders:
    secret: ${ORDERS_SECRET}
    created:
    shipped:
      partial:
  test:
    event:
  literal:
    secret: plain-value
    happened:
  broken:
    secret: ${MISSING_SECRET}
    thing:
`

func env(vars map[string]string) catalog.LookupEnv {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func mustParse(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.ParseWithEnv([]byte(eventsYAML), env(map[string]string{"ORDERS_SECRET": "suchsecret"}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return c
}

func TestLookup(t *testing.T) {
	c := mustParse(t)

	tests := []struct {
		name  string
		event string
		found bool
	}{
		{"namespace alone", "orders", true},
		{"leaf", "orders.created", true},
		{"nested leaf", "orders.shipped.partial", true},
		{"intermediate", "orders.shipped", true},
		{"unknown action", "orders.deleted", false},
		{"unknown namespace", "invoices.created", false},
		{"too deep", "orders.created.extra", false},
		{"secret is not an event", "orders.secret", false},
		{"empty", "", false},
		{"trailing dot", "orders.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Lookup(tt.event)
			if ok != tt.found {
				t.Fatalf("Lookup(%q) found = %v, want %v", tt.event, ok, tt.found)
			}
		})
	}
}

func TestSecretResolution(t *testing.T) {
	c := mustParse(t)

	def, _ := c.Lookup("orders.shipped.partial")
	if def.Secret != "suchsecret" || !def.RequiresSignature() {
		t.Fatalf("orders secret not resolved: %+v", def)
	}
	if def.Namespace != "orders" || def.Name != "orders.shipped.partial" {
		t.Fatalf("unexpected definition: %+v", def)
	}

	def, _ = c.Lookup("test.event")
	if def.RequiresSignature() || def.Secret != "" {
		t.Fatalf("test namespace should be unauthenticated: %+v", def)
	}

	def, _ = c.Lookup("literal.happened")
	if def.Secret != "plain-value" {
		t.Fatalf("literal secret = %q", def.Secret)
	}
}

func TestUnresolvedSecretFailsClosed(t *testing.T) {
	c := mustParse(t)

	def, ok := c.Lookup("broken.thing")
	if !ok {
		t.Fatal("broken.thing should exist")
	}
	if !def.RequiresSignature() {
		t.Fatal("unresolved secret must still require a signature")
	}
	if def.Secret != "" {
		t.Fatalf("unresolved secret should be empty, got %q", def.Secret)
	}
}

func TestNames(t *testing.T) {
	c := mustParse(t)
	want := []string{
		"broken", "broken.thing",
		"literal", "literal.happened",
		"orders", "orders.created", "orders.shipped", "orders.shipped.partial",
		"test", "test.event",
	}
	if got := c.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	if c.Len() != len(want) {
		t.Fatalf("Len() = %d", c.Len())
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := catalog.ParseWithEnv([]byte("other: {}"), nil); !errors.Is(err, catalog.ErrNoEvents) {
		t.Fatalf("expected ErrNoEvents, got %v", err)
	}
	if _, err := catalog.ParseWithEnv([]byte("events: ["), nil); err == nil {
		t.Fatal("expected YAML error")
	}
	if _, err := catalog.ParseWithEnv([]byte("events:\n  a.b:\n    c:\n"), nil); err == nil {
		t.Fatal("expected error for dotted segment")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yml")
	if err := os.WriteFile(path, []byte("events:\n  test:\n    event:\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := catalog.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Lookup("test.event"); !ok {
		t.Fatal("expected test.event")
	}

	if _, err := catalog.LoadFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNilCatalog(t *testing.T) {
	var c *catalog.Catalog
	if _, ok := c.Lookup("anything"); ok {
		t.Fatal("nil catalog should find nothing")
	}
}

package catalog

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envRef matches a whole-value environment indirection such as "${ORDERS_SECRET}".
var envRef = regexp.MustCompile(`^\$\{(.*)\}$`)

// ErrNoEvents is returned when a catalog document has no "events" section.
var ErrNoEvents = errors.New("catalog: document has no events section")

type document struct {
	Events map[string]any `yaml:"events"`
}

// LookupEnv resolves environment indirections. os.LookupEnv satisfies it.
type LookupEnv func(key string) (string, bool)

// LoadFile reads and parses a catalog file, resolving secrets from the
// process environment.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a catalog from a YAML document, resolving secrets from the
// process environment.
func Parse(data []byte) (*Catalog, error) {
	return ParseWithEnv(data, os.LookupEnv)
}

// ParseWithEnv builds a catalog from a YAML document using lookup to resolve
// "${VAR}" secret indirections. An indirection that does not resolve leaves
// the namespace with an empty secret that still requires a signature.
func ParseWithEnv(data []byte, lookup LookupEnv) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if doc.Events == nil {
		return nil, ErrNoEvents
	}
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}

	c := &Catalog{namespaces: make(map[string]*namespace, len(doc.Events))}
	for name, raw := range doc.Events {
		if err := validSegment(name); err != nil {
			return nil, err
		}
		ns := &namespace{root: &node{children: map[string]*node{}}}

		body, _ := raw.(map[string]any)
		for key, value := range body {
			if key == secretKey {
				ns.secretConfigured = true
				ns.secret = resolveSecret(value, lookup)
				continue
			}
			child, err := buildNode(key, value)
			if err != nil {
				return nil, fmt.Errorf("catalog: namespace %q: %w", name, err)
			}
			ns.root.children[key] = child
		}
		c.namespaces[name] = ns
	}
	return c, nil
}

func buildNode(name string, value any) (*node, error) {
	if err := validSegment(name); err != nil {
		return nil, err
	}
	n := &node{children: map[string]*node{}}
	body, ok := value.(map[string]any)
	if !ok {
		return n, nil
	}
	for key, child := range body {
		built, err := buildNode(key, child)
		if err != nil {
			return nil, err
		}
		n.children[key] = built
	}
	return n, nil
}

func resolveSecret(value any, lookup LookupEnv) string {
	if value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	if m := envRef.FindStringSubmatch(s); m != nil {
		resolved, _ := lookup(m[1])
		return resolved
	}
	return s
}

func validSegment(name string) error {
	if name == "" || strings.Contains(name, ".") {
		return fmt.Errorf("catalog: invalid event segment %q", name)
	}
	return nil
}

// Package catalog holds the static registry of publishable events.
//
// Events are declared as a tree of namespaces:
//
//	events:
//	  orders:
//	    secret: ${ORDERS_SECRET}
//	    created:
//	    shipped:
//	      partial:
//
// Every path from a namespace is a valid event name ("orders",
// "orders.created", "orders.shipped.partial"). A namespace may declare a
// secret that authenticates publishers of all its events. The catalog is
// built once at startup and never changes afterwards.
package catalog

import (
	"sort"
	"strings"
)

// secretKey is the reserved namespace key that carries the publisher secret.
const secretKey = "secret"

type node struct {
	children map[string]*node
}

type namespace struct {
	root             *node
	secret           string
	secretConfigured bool
}

// Catalog resolves event names to their definitions. It is safe for
// concurrent use because it is immutable after construction.
type Catalog struct {
	namespaces map[string]*namespace
}

// Lookup returns the definition for name, or false when the name does not
// exist in the tree.
func (c *Catalog) Lookup(name string) (EventDefinition, bool) {
	if c == nil || name == "" {
		return EventDefinition{}, false
	}

	parts := strings.Split(name, ".")
	ns, ok := c.namespaces[parts[0]]
	if !ok {
		return EventDefinition{}, false
	}

	cur := ns.root
	for _, part := range parts[1:] {
		next, ok := cur.children[part]
		if !ok {
			return EventDefinition{}, false
		}
		cur = next
	}

	return EventDefinition{
		Name:             name,
		Namespace:        parts[0],
		Secret:           ns.secret,
		SecretConfigured: ns.secretConfigured,
	}, true
}

// Names returns every valid event name, sorted.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	var names []string
	for nsName, ns := range c.namespaces {
		names = append(names, nsName)
		names = walk(ns.root, nsName, names)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of valid event names.
func (c *Catalog) Len() int {
	return len(c.Names())
}

func walk(n *node, prefix string, acc []string) []string {
	for name, child := range n.children {
		full := prefix + "." + name
		acc = append(acc, full)
		acc = walk(child, full, acc)
	}
	return acc
}

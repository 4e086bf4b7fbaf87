package catalog

import "errors"

// ErrEventNotFound is returned when a name does not resolve to a catalog event.
var ErrEventNotFound = errors.New("herald: event not found")

// EventDefinition describes one publishable event.
type EventDefinition struct {
	// Name is the dotted event name, e.g. "orders.created".
	Name string `json:"name"`

	// Namespace is the first segment of Name. Secrets are declared per namespace.
	Namespace string `json:"namespace"`

	// Secret authenticates publishers of this event. It may be empty even when
	// SecretConfigured is true, when its environment indirection did not resolve.
	Secret string `json:"-"`

	// SecretConfigured reports whether the namespace declared a secret at all.
	SecretConfigured bool `json:"secret_configured"`
}

// RequiresSignature reports whether publications of this event must carry a
// valid signature. An event whose declared secret resolved to nothing still
// requires one, and no signature can ever verify against it.
func (d EventDefinition) RequiresSignature() bool {
	return d.SecretConfigured
}

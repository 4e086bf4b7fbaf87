// Package store defines the composite Store interface for all herald
// persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them all, so one backend serves the whole broker.
package store

import (
	"context"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/subscription"
)

// Store is the aggregate persistence interface.
type Store interface {
	subscription.Store
	delivery.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the backend connection.
	Close() error
}

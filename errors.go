package herald

import (
	"errors"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dispatch"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/intent"
	"github.com/xraph/herald/subscription"
)

// Sentinel errors returned by Broker operations.
var (
	// ErrNoStore is returned when a Broker is created without a store.
	ErrNoStore = errors.New("herald: store is required")

	// ErrNoCatalog is returned when a Broker is created without an event catalog.
	ErrNoCatalog = errors.New("herald: event catalog is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("herald: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("herald: migration failed")
)

// Subsystem errors, re-exported so callers need only this package.
var (
	// ErrEventNotFound is returned when an event name is not in the catalog.
	ErrEventNotFound = catalog.ErrEventNotFound

	// ErrSubscriptionNotFound is returned when a subscription cannot be found.
	ErrSubscriptionNotFound = subscription.ErrNotFound

	// ErrDuplicateSubscription is returned by stores on a uniqueness conflict.
	ErrDuplicateSubscription = subscription.ErrDuplicate

	// ErrDomainNotAllowed is returned when a callback host is not allow-listed.
	ErrDomainNotAllowed = subscription.ErrDomainNotAllowed

	// ErrIntentMismatch is returned when a supplied subscription secret is wrong.
	ErrIntentMismatch = intent.ErrMismatch

	// ErrUnauthorized is returned when a publication signature does not verify.
	ErrUnauthorized = dispatch.ErrUnauthorized

	// ErrJobNotFound is returned when a delivery job cannot be found.
	ErrJobNotFound = delivery.ErrNotFound

	// ErrAbandonedNotFound is returned when an abandoned-job entry cannot be found.
	ErrAbandonedNotFound = dlq.ErrNotFound
)

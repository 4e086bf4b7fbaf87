package subscription

import (
	"context"
	"errors"

	"github.com/xraph/herald/id"
)

var (
	// ErrNotFound is returned when a subscription does not exist.
	ErrNotFound = errors.New("herald: subscription not found")

	// ErrDuplicate is returned by CreateSubscription when a subscription with
	// the same event, filter and URL already exists.
	ErrDuplicate = errors.New("herald: subscription already exists")

	// ErrDomainNotAllowed is returned when the callback host is not on the
	// allow-list.
	ErrDomainNotAllowed = errors.New("herald: subscription domain not allowed")
)

// Store defines the persistence contract for subscriptions.
type Store interface {
	// FindExact returns the subscription matching event, filter and URL
	// exactly, or ErrNotFound.
	FindExact(ctx context.Context, event, eventFilter, url string) (*Subscription, error)

	// ListActiveForEvent returns every active subscription for event.
	// This is the hot path, called on every publication.
	ListActiveForEvent(ctx context.Context, event string) ([]*Subscription, error)

	// CreateSubscription persists a new subscription. It returns ErrDuplicate
	// when the (event, filter, URL) triple is already taken.
	CreateSubscription(ctx context.Context, sub *Subscription) error

	// ActivateSubscription marks a subscription active. Activating an active
	// subscription succeeds.
	ActivateSubscription(ctx context.Context, subID id.ID) error

	// GetSubscription returns a subscription by ID.
	GetSubscription(ctx context.Context, subID id.ID) (*Subscription, error)

	// ListSubscriptions returns subscriptions, oldest first.
	ListSubscriptions(ctx context.Context, opts ListOpts) ([]*Subscription, error)
}

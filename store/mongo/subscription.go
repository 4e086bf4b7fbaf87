package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/subscription"
)

// FindExact returns the subscription matching event, filter and URL.
func (s *Store) FindExact(ctx context.Context, event, eventFilter, url string) (*subscription.Subscription, error) {
	var m subscriptionModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"event": event, "event_filter": eventFilter, "url": url}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrNotFound
		}

		return nil, fmt.Errorf("herald/mongo: find subscription: %w", err)
	}

	return fromSubscriptionModel(&m)
}

// ListActiveForEvent returns every active subscription for an event.
func (s *Store) ListActiveForEvent(ctx context.Context, event string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	if err := s.mdb.NewFind(&models).
		Filter(bson.M{"event": event, "active": true}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: list active subscriptions: %w", err)
	}

	return fromSubscriptionModels(models)
}

// CreateSubscription persists a new subscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)

	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return subscription.ErrDuplicate
		}

		return fmt.Errorf("herald/mongo: create subscription: %w", err)
	}

	return nil
}

// ActivateSubscription marks a subscription active.
func (s *Store) ActivateSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Set("active", true).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: activate subscription: %w", err)
	}

	if res.MatchedCount() == 0 {
		return subscription.ErrNotFound
	}

	return nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	var m subscriptionModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, subscription.ErrNotFound
		}

		return nil, fmt.Errorf("herald/mongo: get subscription: %w", err)
	}

	return fromSubscriptionModel(&m)
}

// ListSubscriptions returns subscriptions, oldest first.
func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel

	filter := bson.M{}
	if opts.Event != "" {
		filter["event"] = opts.Event
	}

	if opts.Active != nil {
		filter["active"] = *opts.Active
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}

	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("herald/mongo: list subscriptions: %w", err)
	}

	return fromSubscriptionModels(models)
}

func fromSubscriptionModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, 0, len(models))

	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, sub)
	}

	return result, nil
}

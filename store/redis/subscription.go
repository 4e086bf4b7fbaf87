package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/subscription"
)

func (s *Store) FindExact(ctx context.Context, event, eventFilter, url string) (*subscription.Subscription, error) {
	subID, err := s.rdb.Get(ctx, subscriptionKey(event, eventFilter, url)).Result()
	if err != nil {
		if isRedisNil(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("herald/redis: find subscription: %w", err)
	}
	return s.getSubscription(ctx, subID)
}

func (s *Store) ListActiveForEvent(ctx context.Context, event string) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zSubscriptionActive+event, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list active subscriptions: %w", err)
	}
	return s.loadSubscriptions(ctx, ids, func(*subscriptionModel) bool { return true })
}

// createSubscriptionScript claims the uniqueness key and writes the entity
// and its indexes in one step. A claim whose subscription entity no longer
// exists is stale and is taken over. Index writes come first so a failing
// write leaves the uniqueness key unclaimed.
// KEYS[1] = uniqueness key
// KEYS[2] = entity key
// KEYS[3] = herald:z:sub:all
// KEYS[4] = herald:z:sub:active:<event>
// ARGV[1] = subscription ID
// ARGV[2] = entity JSON
// ARGV[3] = creation score
// ARGV[4] = "1" when active
// ARGV[5] = subscription entity key prefix
var createSubscriptionScript = goredis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current and redis.call('EXISTS', ARGV[5] .. current) == 1 then
    return 0
end
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
if ARGV[4] == '1' then
    redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	raw, err := marshalEntity(m)
	if err != nil {
		return err
	}

	active := "0"
	if m.Active {
		active = "1"
	}
	keys := []string{
		subscriptionKey(m.Event, m.EventFilter, m.URL),
		entityKey(prefixSubscription, m.ID),
		zSubscriptionAll,
		zSubscriptionActive + m.Event,
	}
	created, err := createSubscriptionScript.Run(ctx, s.rdb, keys,
		m.ID, raw, formatScore(scoreFromTime(m.CreatedAt)), active, prefixSubscription).Int()
	if err != nil {
		return fmt.Errorf("herald/redis: create subscription: %w", err)
	}
	if created == 0 {
		return subscription.ErrDuplicate
	}
	return nil
}

func (s *Store) ActivateSubscription(ctx context.Context, subID id.ID) error {
	key := entityKey(prefixSubscription, subID.String())
	var m subscriptionModel
	if err := s.getEntity(ctx, key, &m); err != nil {
		if isRedisNil(err) {
			return subscription.ErrNotFound
		}
		return fmt.Errorf("herald/redis: activate subscription: %w", err)
	}

	m.Active = true
	m.UpdatedAt = now()
	raw, err := marshalEntity(&m)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	pipe.ZAdd(ctx, zSubscriptionActive+m.Event, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: activate subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	return s.getSubscription(ctx, subID.String())
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zSubscriptionAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list subscriptions: %w", err)
	}
	subs, err := s.loadSubscriptions(ctx, ids, func(m *subscriptionModel) bool {
		if opts.Event != "" && m.Event != opts.Event {
			return false
		}
		return opts.Active == nil || m.Active == *opts.Active
	})
	if err != nil {
		return nil, err
	}
	return applyPagination(subs, opts.Offset, opts.Limit), nil
}

func (s *Store) getSubscription(ctx context.Context, subID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	if err := s.getEntity(ctx, entityKey(prefixSubscription, subID), &m); err != nil {
		if isRedisNil(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, fmt.Errorf("herald/redis: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) loadSubscriptions(ctx context.Context, ids []string, keep func(*subscriptionModel) bool) ([]*subscription.Subscription, error) {
	models, err := loadModels[subscriptionModel](ctx, s, prefixSubscription, ids)
	if err != nil {
		return nil, err
	}
	result := make([]*subscription.Subscription, 0, len(models))
	for _, m := range models {
		if !keep(m) {
			continue
		}
		sub, err := fromSubscriptionModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, nil
}

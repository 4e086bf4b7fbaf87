package redis

import (
	"context"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
)

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toAbandonedModel(entry)
	raw, err := marshalEntity(m)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, entityKey(prefixAbandoned, m.ID), raw, 0)
	pipe.ZAdd(ctx, zAbandonedAll, goredis.Z{Score: scoreFromTime(m.AbandonedAt), Member: m.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: push abandoned: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	lo, hi := math.Inf(-1), math.Inf(1)
	if opts.From != nil {
		lo = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		hi = scoreFromTime(*opts.To)
	}
	ids, err := s.zRangeByScoreIDs(ctx, zAbandonedAll, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list abandoned: %w", err)
	}

	models, err := loadModels[abandonedModel](ctx, s, prefixAbandoned, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- { // reverse for DESC order
		m := models[i]
		if opts.Event != "" && m.Event != opts.Event {
			continue
		}
		if opts.SubscriptionID != nil && m.SubscriptionID != opts.SubscriptionID.String() {
			continue
		}
		entry, err := fromAbandonedModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDLQ(ctx context.Context, entryID id.ID) (*dlq.Entry, error) {
	var m abandonedModel
	if err := s.getEntity(ctx, entityKey(prefixAbandoned, entryID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, fmt.Errorf("herald/redis: get abandoned: %w", err)
	}
	return fromAbandonedModel(&m)
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, zAbandonedAll, &goredis.ZRangeBy{
		Min: "-inf",
		Max: "(" + formatScore(scoreFromTime(before)),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("herald/redis: purge: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, entryID := range ids {
		keys[i] = entityKey(prefixAbandoned, entryID)
		members[i] = entryID
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, zAbandonedAll, members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("herald/redis: purge: %w", err)
	}
	return int64(len(ids)), nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zAbandonedAll).Result()
	if err != nil {
		return 0, fmt.Errorf("herald/redis: count abandoned: %w", err)
	}
	return count, nil
}

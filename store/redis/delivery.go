package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

// dequeueScript atomically claims due jobs by pushing their score out to the
// end of the lease, so a concurrent caller no longer sees them as due.
// KEYS[1] = herald:z:job:due
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
// ARGV[3] = lease expiry score
var dequeueScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
    redis.call('ZADD', KEYS[1], ARGV[3], id)
end
return ids
`)

func (s *Store) Enqueue(ctx context.Context, job *delivery.Job) error {
	return s.EnqueueBatch(ctx, []*delivery.Job{job})
}

func (s *Store) EnqueueBatch(ctx context.Context, jobs []*delivery.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	pipe := s.rdb.TxPipeline()
	for _, j := range jobs {
		m := toJobModel(j)
		raw, err := marshalEntity(m)
		if err != nil {
			return err
		}
		pipe.Set(ctx, entityKey(prefixJob, m.ID), raw, 0)
		pipe.ZAdd(ctx, zJobAll, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
		if !j.State.Terminal() {
			pipe.ZAdd(ctx, zJobDue, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: enqueue: %w", err)
	}
	return nil
}

func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Job, error) {
	t := now()
	leaseUntil := t.Add(delivery.ClaimLease)
	claimed, err := dequeueScript.Run(ctx, s.rdb, []string{zJobDue},
		formatScore(scoreFromTime(t)), limit, formatScore(scoreFromTime(leaseUntil))).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("herald/redis: dequeue script: %w", err)
	}

	jobs := make([]*delivery.Job, 0, len(claimed))
	for _, jobID := range claimed {
		key := entityKey(prefixJob, jobID)
		var m jobModel
		if err := s.getEntity(ctx, key, &m); err != nil {
			if isRedisNil(err) {
				s.rdb.ZRem(ctx, zJobDue, jobID)
				continue
			}
			return nil, fmt.Errorf("herald/redis: dequeue get: %w", err)
		}

		m.State = string(delivery.StateAttempting)
		m.NextAttemptAt = leaseUntil
		m.UpdatedAt = t
		raw, err := marshalEntity(&m)
		if err != nil {
			return nil, err
		}
		if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
			return nil, fmt.Errorf("herald/redis: dequeue update: %w", err)
		}

		job, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (s *Store) UpdateJob(ctx context.Context, job *delivery.Job) error {
	m := toJobModel(job)
	m.UpdatedAt = now()
	key := entityKey(prefixJob, m.ID)

	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("herald/redis: update job: %w", err)
	}
	if n == 0 {
		return delivery.ErrNotFound
	}

	raw, err := marshalEntity(m)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key, raw, 0)
	if job.State.Terminal() {
		pipe.ZRem(ctx, zJobDue, m.ID)
	} else {
		pipe.ZAdd(ctx, zJobDue, goredis.Z{Score: scoreFromTime(m.NextAttemptAt), Member: m.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("herald/redis: update job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*delivery.Job, error) {
	var m jobModel
	if err := s.getEntity(ctx, entityKey(prefixJob, jobID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, delivery.ErrNotFound
		}
		return nil, fmt.Errorf("herald/redis: get job: %w", err)
	}
	return fromJobModel(&m)
}

func (s *Store) ListJobs(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Job, error) {
	ids, err := s.rdb.ZRange(ctx, zJobAll, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("herald/redis: list jobs: %w", err)
	}

	models, err := loadModels[jobModel](ctx, s, prefixJob, ids)
	if err != nil {
		return nil, err
	}

	result := make([]*delivery.Job, 0, len(models))
	for _, m := range models {
		if opts.State != nil && delivery.State(m.State) != *opts.State {
			continue
		}
		if opts.Kind != "" && delivery.Kind(m.Kind) != opts.Kind {
			continue
		}
		job, err := fromJobModel(m)
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zJobDue).Result()
	if err != nil {
		return 0, fmt.Errorf("herald/redis: count pending: %w", err)
	}
	return count, nil
}

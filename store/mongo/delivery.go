package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
)

var terminalStates = bson.A{string(delivery.StateDelivered), string(delivery.StateAbandoned)}

// Enqueue creates a pending job.
func (s *Store) Enqueue(ctx context.Context, job *delivery.Job) error {
	m := toJobModel(job)

	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: enqueue: %w", err)
	}

	return nil
}

// EnqueueBatch creates multiple jobs in one insert (fan-out).
func (s *Store) EnqueueBatch(ctx context.Context, jobs []*delivery.Job) error {
	if len(jobs) == 0 {
		return nil
	}

	models := make([]jobModel, len(jobs))
	for i, j := range jobs {
		models[i] = *toJobModel(j)
	}

	_, err := s.mdb.NewInsert(&models).Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: enqueue batch: %w", err)
	}

	return nil
}

// Dequeue claims due jobs one document at a time. Each claim is a single
// FindOneAndUpdate, so two workers can never claim the same job.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Job, error) {
	result := make([]*delivery.Job, 0, limit)
	t := now()
	col := s.mdb.Collection(colJobs)

	for range limit {
		filter := bson.M{
			"state":           bson.M{"$nin": terminalStates},
			"next_attempt_at": bson.M{"$lte": t},
		}

		update := bson.M{
			"$set": bson.M{
				"state":           string(delivery.StateAttempting),
				"next_attempt_at": t.Add(delivery.ClaimLease),
				"updated_at":      t,
			},
		}

		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})

		var m jobModel

		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if errors.Is(err, mongod.ErrNoDocuments) {
				break
			}

			return nil, fmt.Errorf("herald/mongo: dequeue: %w", err)
		}

		job, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}

		result = append(result, job)
	}

	return result, nil
}

// UpdateJob persists a job's state after an attempt.
func (s *Store) UpdateJob(ctx context.Context, job *delivery.Job) error {
	m := toJobModel(job)
	m.UpdatedAt = now()

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("herald/mongo: update job: %w", err)
	}

	if res.MatchedCount() == 0 {
		return delivery.ErrNotFound
	}

	return nil
}

// GetJob returns a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*delivery.Job, error) {
	var m jobModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": jobID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, delivery.ErrNotFound
		}

		return nil, fmt.Errorf("herald/mongo: get job: %w", err)
	}

	return fromJobModel(&m)
}

// ListJobs returns jobs, oldest first.
func (s *Store) ListJobs(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Job, error) {
	var models []jobModel

	filter := bson.M{}
	if opts.State != nil {
		filter["state"] = string(*opts.State)
	}

	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
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
		return nil, fmt.Errorf("herald/mongo: list jobs: %w", err)
	}

	result := make([]*delivery.Job, 0, len(models))

	for i := range models {
		job, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, job)
	}

	return result, nil
}

// CountPending returns the number of jobs that are not yet terminal.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*jobModel)(nil)).
		Filter(bson.M{"state": bson.M{"$nin": terminalStates}}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("herald/mongo: count pending: %w", err)
	}

	return count, nil
}

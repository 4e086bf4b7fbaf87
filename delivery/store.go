package delivery

import (
	"context"
	"errors"

	"github.com/xraph/herald/id"
)

// ErrNotFound is returned when a job does not exist.
var ErrNotFound = errors.New("herald: job not found")

// Store defines the persistence contract for delivery jobs.
type Store interface {
	// Enqueue persists a pending job.
	Enqueue(ctx context.Context, job *Job) error

	// EnqueueBatch persists multiple jobs atomically (fan-out).
	EnqueueBatch(ctx context.Context, jobs []*Job) error

	// Dequeue claims up to limit claimable jobs, marking them attempting and
	// pushing NextAttemptAt out by ClaimLease. Concurrent callers never
	// receive the same job within a lease.
	Dequeue(ctx context.Context, limit int) ([]*Job, error)

	// UpdateJob persists a job's state after an attempt.
	UpdateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by ID.
	GetJob(ctx context.Context, jobID id.ID) (*Job, error)

	// ListJobs returns jobs, oldest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountPending returns the number of jobs that are not yet terminal.
	CountPending(ctx context.Context) (int64, error)
}

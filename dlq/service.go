package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

var _ delivery.AbandonSink = (*Service)(nil)

// Service manages the abandoned-job log.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new abandoned-job service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// RecordAbandoned appends an entry for job. Implements delivery.AbandonSink.
func (svc *Service) RecordAbandoned(ctx context.Context, job *delivery.Job) error {
	abandonedAt := time.Now().UTC()
	if job.CompletedAt != nil {
		abandonedAt = *job.CompletedAt
	}

	entry := &Entry{
		Entity:         entity.New(),
		ID:             id.NewAbandonedID(),
		JobID:          job.ID,
		Kind:           job.Kind,
		SubscriptionID: job.SubscriptionID,
		Event:          job.Event,
		URL:            job.URL,
		Body:           job.Body,
		Error:          job.LastError,
		AttemptCount:   job.AttemptCount,
		LastStatusCode: job.LastStatusCode,
		AbandonedAt:    abandonedAt,
	}

	if err := svc.store.Push(ctx, entry); err != nil {
		return err
	}

	svc.logger.DebugContext(ctx, "abandoned job recorded", "entry_id", entry.ID, "job_id", job.ID)
	return nil
}

// List returns entries matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	return svc.store.ListDLQ(ctx, opts)
}

// Get returns an entry by ID.
func (svc *Service) Get(ctx context.Context, entryID id.ID) (*Entry, error) {
	return svc.store.GetDLQ(ctx, entryID)
}

// Purge removes entries abandoned before the given time.
func (svc *Service) Purge(ctx context.Context, before time.Time) (int64, error) {
	return svc.store.Purge(ctx, before)
}

// Count returns the total number of entries.
func (svc *Service) Count(ctx context.Context) (int64, error) {
	return svc.store.CountDLQ(ctx)
}

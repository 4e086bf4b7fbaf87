// Package memory provides an in-memory Store implementation for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
	"github.com/xraph/herald/subscription"
)

// compile-time interface check.
var _ heraldstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	subscriptions map[string]*subscription.Subscription // keyed by ID string
	subsByKey     map[string]string                     // unique key → ID string
	jobs          map[string]*delivery.Job              // keyed by ID string
	dlqEntries    map[string]*dlq.Entry                 // keyed by ID string

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		subscriptions: make(map[string]*subscription.Subscription),
		subsByKey:     make(map[string]string),
		jobs:          make(map[string]*delivery.Job),
		dlqEntries:    make(map[string]*dlq.Entry),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is still open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return herald.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// subscription.Store
// ──────────────────────────────────────────────────

func uniqueKey(event, eventFilter, url string) string {
	return event + "\x00" + eventFilter + "\x00" + url
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	cp := *sub
	return &cp
}

// FindExact returns the subscription for an (event, filter, URL) triple.
func (s *Store) FindExact(_ context.Context, event, eventFilter, url string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subID, ok := s.subsByKey[uniqueKey(event, eventFilter, url)]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return copySubscription(s.subscriptions[subID]), nil
}

// ListActiveForEvent returns active subscriptions for event.
func (s *Store) ListActiveForEvent(_ context.Context, event string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.Active && sub.Event == event {
			result = append(result, copySubscription(sub))
		}
	}
	sortSubscriptions(result)
	return result, nil
}

// CreateSubscription persists a new subscription.
func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := uniqueKey(sub.Event, sub.EventFilter, sub.URL)
	if _, exists := s.subsByKey[key]; exists {
		return subscription.ErrDuplicate
	}
	s.subscriptions[sub.ID.String()] = copySubscription(sub)
	s.subsByKey[key] = sub.ID.String()
	return nil
}

// ActivateSubscription marks a subscription active.
func (s *Store) ActivateSubscription(_ context.Context, subID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return subscription.ErrNotFound
	}
	sub.Active = true
	sub.UpdatedAt = time.Now().UTC()
	return nil
}

// GetSubscription returns a subscription by ID.
func (s *Store) GetSubscription(_ context.Context, subID id.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return copySubscription(sub), nil
}

// ListSubscriptions returns subscriptions, oldest first.
func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		if opts.Event != "" && sub.Event != opts.Event {
			continue
		}
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		result = append(result, copySubscription(sub))
	}
	sortSubscriptions(result)

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func sortSubscriptions(subs []*subscription.Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].ID.String() < subs[j].ID.String()
		}
		return subs[i].CreatedAt.Before(subs[j].CreatedAt)
	})
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

// copyJob returns a shallow copy of the job.
func copyJob(j *delivery.Job) *delivery.Job {
	cp := *j
	return &cp
}

// Enqueue creates a pending job.
func (s *Store) Enqueue(_ context.Context, job *delivery.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID.String()] = copyJob(job)
	return nil
}

// EnqueueBatch creates multiple jobs atomically.
func (s *Store) EnqueueBatch(_ context.Context, jobs []*delivery.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range jobs {
		s.jobs[j.ID.String()] = copyJob(j)
	}
	return nil
}

// Dequeue claims ready jobs. Claimed jobs are marked attempting and hidden
// for delivery.ClaimLease. Returns copies so callers can mutate freely.
func (s *Store) Dequeue(_ context.Context, limit int) ([]*delivery.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	candidates := make([]*delivery.Job, 0)

	for _, j := range s.jobs {
		if j.Claimable(now) {
			candidates = append(candidates, j)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NextAttemptAt.Before(candidates[j].NextAttemptAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*delivery.Job, 0, len(candidates))
	for _, j := range candidates {
		j.State = delivery.StateAttempting
		j.NextAttemptAt = now.Add(delivery.ClaimLease)
		j.UpdatedAt = now
		result = append(result, copyJob(j))
	}

	return result, nil
}

// UpdateJob replaces a job.
func (s *Store) UpdateJob(_ context.Context, job *delivery.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID.String()]; !ok {
		return delivery.ErrNotFound
	}
	cp := copyJob(job)
	cp.UpdatedAt = time.Now().UTC()
	s.jobs[job.ID.String()] = cp
	return nil
}

// GetJob returns a copy of the job by ID.
func (s *Store) GetJob(_ context.Context, jobID id.ID) (*delivery.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[jobID.String()]
	if !ok {
		return nil, delivery.ErrNotFound
	}
	return copyJob(j), nil
}

// ListJobs returns jobs, oldest first.
func (s *Store) ListJobs(_ context.Context, opts delivery.ListOpts) ([]*delivery.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*delivery.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if opts.State != nil && j.State != *opts.State {
			continue
		}
		if opts.Kind != "" && j.Kind != opts.Kind {
			continue
		}
		result = append(result, copyJob(j))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// CountPending returns the number of jobs that are not yet terminal.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, j := range s.jobs {
		if !j.State.Terminal() {
			count++
		}
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

// Push appends an abandoned-job entry.
func (s *Store) Push(_ context.Context, entry *dlq.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dlqEntries[entry.ID.String()] = entry
	return nil
}

// ListDLQ returns entries, newest first, optionally filtered.
func (s *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*dlq.Entry, 0, len(s.dlqEntries))
	for _, e := range s.dlqEntries {
		if opts.Event != "" && e.Event != opts.Event {
			continue
		}
		if opts.SubscriptionID != nil && e.SubscriptionID.String() != opts.SubscriptionID.String() {
			continue
		}
		if opts.From != nil && e.AbandonedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && e.AbandonedAt.After(*opts.To) {
			continue
		}
		result = append(result, e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].AbandonedAt.After(result[j].AbandonedAt)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// GetDLQ returns an entry by ID.
func (s *Store) GetDLQ(_ context.Context, entryID id.ID) (*dlq.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.dlqEntries[entryID.String()]
	if !ok {
		return nil, dlq.ErrNotFound
	}
	return e, nil
}

// Purge deletes entries abandoned before a threshold.
func (s *Store) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for k, e := range s.dlqEntries {
		if e.AbandonedAt.Before(before) {
			delete(s.dlqEntries, k)
			count++
		}
	}
	return count, nil
}

// CountDLQ returns the total number of entries.
func (s *Store) CountDLQ(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.dlqEntries)), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) && offset > 0 {
		return []*T{}
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}

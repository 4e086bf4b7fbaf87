// Package postgres implements the herald store on PostgreSQL via the grove
// ORM. Job claims use FOR UPDATE SKIP LOCKED so several broker processes can
// share one database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/herald"
	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
	heraldstore "github.com/xraph/herald/store"
	"github.com/xraph/herald/subscription"
)

// compile-time interface check
var _ heraldstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("herald/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("herald/postgres: %w: %w", herald.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Subscription Store ====================

func (s *Store) FindExact(ctx context.Context, event, eventFilter, url string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("event = $1", event).
		Where("event_filter = $2", eventFilter).
		Where("url = $3", url).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListActiveForEvent(ctx context.Context, event string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	if err := s.pg.NewSelect(&models).
		Where("event = $1", event).
		Where("active = true").
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return fromSubscriptionModels(models)
}

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)
	res, err := s.pg.NewInsert(m).
		OnConflict("(event, event_filter, url) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrDuplicate
	}
	return nil
}

func (s *Store) ActivateSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("active = true").
		Set("updated_at = $1", time.Now().UTC()).
		Where("id = $2", subID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Event != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event = $%d", argIdx), opts.Event)
	}
	if opts.Active != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("active = $%d", argIdx), *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromSubscriptionModels(models)
}

// ==================== Delivery Store ====================

func (s *Store) Enqueue(ctx context.Context, job *delivery.Job) error {
	m := toJobModel(job)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) EnqueueBatch(ctx context.Context, jobs []*delivery.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	models := make([]jobModel, len(jobs))
	for i, j := range jobs {
		models[i] = *toJobModel(j)
	}
	_, err := s.pg.NewInsert(&models).Exec(ctx)
	return err
}

func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Job, error) {
	now := time.Now().UTC()
	var models []jobModel
	err := s.pg.NewRaw(`
		UPDATE herald_jobs
		SET state = 'attempting', next_attempt_at = $2, updated_at = $1
		WHERE id IN (
			SELECT id FROM herald_jobs
			WHERE state NOT IN ('delivered', 'abandoned') AND next_attempt_at <= $1
			ORDER BY next_attempt_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, now, now.Add(delivery.ClaimLease), limit).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return fromJobModels(models)
}

func (s *Store) UpdateJob(ctx context.Context, job *delivery.Job) error {
	m := toJobModel(job)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return delivery.ErrNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID id.ID) (*delivery.Job, error) {
	m := new(jobModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", jobID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, delivery.ErrNotFound
		}
		return nil, err
	}
	return fromJobModel(m)
}

func (s *Store) ListJobs(ctx context.Context, opts delivery.ListOpts) ([]*delivery.Job, error) {
	var models []jobModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.State != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(*opts.State))
	}
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromJobModels(models)
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*jobModel)(nil)).
		Where("state NOT IN ('delivered', 'abandoned')").
		Count(ctx)
}

// ==================== DLQ Store ====================

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toAbandonedModel(entry)
	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	var models []abandonedModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Event != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event = $%d", argIdx), opts.Event)
	}
	if opts.SubscriptionID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("subscription_id = $%d", argIdx), opts.SubscriptionID.String())
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("abandoned_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("abandoned_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("abandoned_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*dlq.Entry, len(models))
	for i := range models {
		entry, err := fromAbandonedModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = entry
	}
	return result, nil
}

func (s *Store) GetDLQ(ctx context.Context, entryID id.ID) (*dlq.Entry, error) {
	m := new(abandonedModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", entryID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dlq.ErrNotFound
		}
		return nil, err
	}
	return fromAbandonedModel(m)
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pg.NewDelete((*abandonedModel)(nil)).
		Where("abandoned_at < $1", before).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*abandonedModel)(nil)).Count(ctx)
}

func fromSubscriptionModels(models []subscriptionModel) ([]*subscription.Subscription, error) {
	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func fromJobModels(models []jobModel) ([]*delivery.Job, error) {
	result := make([]*delivery.Job, len(models))
	for i := range models {
		job, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = job
	}
	return result, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the herald store.
var Migrations = migrate.NewGroup("herald")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_herald_subscriptions",
			Version: "20250301000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS herald_subscriptions (
    id           TEXT PRIMARY KEY,
    event        TEXT NOT NULL,
    event_filter TEXT NOT NULL DEFAULT '',
    url          TEXT NOT NULL,
    secret       TEXT NOT NULL,
    active       BOOLEAN NOT NULL DEFAULT FALSE,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (event, event_filter, url)
);

CREATE INDEX IF NOT EXISTS idx_herald_subscriptions_active ON herald_subscriptions (event) WHERE active;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS herald_subscriptions`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_herald_jobs",
			Version: "20250301000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS herald_jobs (
    id               TEXT PRIMARY KEY,
    kind             TEXT NOT NULL,
    subscription_id  TEXT NOT NULL,
    event            TEXT NOT NULL DEFAULT '',
    url              TEXT NOT NULL,
    body             JSONB,
    signature        TEXT NOT NULL DEFAULT '',
    state            TEXT NOT NULL DEFAULT 'pending',
    attempt_count    INT NOT NULL DEFAULT 0,
    max_attempts     INT NOT NULL DEFAULT 0,
    next_attempt_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_error       TEXT NOT NULL DEFAULT '',
    last_status_code INT NOT NULL DEFAULT 0,
    last_response    TEXT NOT NULL DEFAULT '',
    last_latency_ms  INT NOT NULL DEFAULT 0,
    completed_at     TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_herald_jobs_due ON herald_jobs (next_attempt_at)
    WHERE state NOT IN ('delivered', 'abandoned');
CREATE INDEX IF NOT EXISTS idx_herald_jobs_subscription ON herald_jobs (subscription_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS herald_jobs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_herald_abandoned",
			Version: "20250301000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS herald_abandoned (
    id               TEXT PRIMARY KEY,
    job_id           TEXT NOT NULL,
    kind             TEXT NOT NULL,
    subscription_id  TEXT NOT NULL,
    event            TEXT NOT NULL DEFAULT '',
    url              TEXT NOT NULL,
    body             JSONB,
    error            TEXT NOT NULL DEFAULT '',
    attempt_count    INT NOT NULL DEFAULT 0,
    last_status_code INT NOT NULL DEFAULT 0,
    abandoned_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_herald_abandoned_at ON herald_abandoned (abandoned_at);
CREATE INDEX IF NOT EXISTS idx_herald_abandoned_event ON herald_abandoned (event);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS herald_abandoned`)
				return err
			},
		},
	)
}

package extension

import (
	"log/slog"

	"github.com/xraph/grove"
	"github.com/xraph/grove/kv"

	"github.com/xraph/herald"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/store"
	"github.com/xraph/herald/store/mongo"
	"github.com/xraph/herald/store/postgres"
	"github.com/xraph/herald/store/redis"
	"github.com/xraph/herald/store/sqlite"
)

// ExtOption configures the herald extension.
type ExtOption func(*Extension)

// WithStore sets the persistence backend.
func WithStore(s store.Store) ExtOption {
	return func(e *Extension) {
		e.store = s
	}
}

// WithPostgres uses a grove PostgreSQL database as the backend.
func WithPostgres(db *grove.DB) ExtOption {
	return WithStore(postgres.New(db))
}

// WithSQLite uses a grove SQLite database as the backend.
func WithSQLite(db *grove.DB) ExtOption {
	return WithStore(sqlite.New(db))
}

// WithMongo uses a grove MongoDB database as the backend.
func WithMongo(db *grove.DB) ExtOption {
	return WithStore(mongo.New(db))
}

// WithRedis uses a grove Redis key-value store as the backend.
func WithRedis(kvs *kv.Store) ExtOption {
	return WithStore(redis.New(kvs))
}

// WithCatalog sets the event catalog.
func WithCatalog(c *catalog.Catalog) ExtOption {
	return func(e *Extension) {
		e.catalog = c
	}
}

// WithLogger sets the structured logger shared by the broker and the API.
func WithLogger(logger *slog.Logger) ExtOption {
	return func(e *Extension) {
		e.logger = logger
	}
}

// WithPrefix sets the URL prefix for all herald routes.
func WithPrefix(prefix string) ExtOption {
	return func(e *Extension) {
		e.config.BasePath = prefix
	}
}

// WithConfig sets the extension configuration directly.
func WithConfig(cfg Config) ExtOption {
	return func(e *Extension) {
		e.config = cfg
	}
}

// WithBrokerOption appends a raw herald.Option, applied after the
// configuration.
func WithBrokerOption(opt herald.Option) ExtOption {
	return func(e *Extension) {
		e.opts = append(e.opts, opt)
	}
}

// WithDisableRoutes disables mounting the HTTP API.
func WithDisableRoutes() ExtOption {
	return func(e *Extension) {
		e.config.DisableRoutes = true
	}
}

// WithDisableMigrations disables store migrations on Register.
func WithDisableMigrations() ExtOption {
	return func(e *Extension) {
		e.config.DisableMigrate = true
	}
}

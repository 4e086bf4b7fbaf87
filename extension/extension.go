package extension

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/herald"
	"github.com/xraph/herald/api"
	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/store"
)

// ErrNotRegistered is returned when the extension is used before Register.
var ErrNotRegistered = errors.New("herald/extension: not registered")

// Extension hosts a herald broker inside another service.
type Extension struct {
	config  Config
	opts    []herald.Option
	store   store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
	broker  *herald.Broker
}

// New creates an extension. Call Register before using it.
func New(opts ...ExtOption) *Extension {
	e := &Extension{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register migrates the store and builds the broker.
func (e *Extension) Register(ctx context.Context) error {
	if e.store == nil {
		return herald.ErrNoStore
	}

	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	opts := []herald.Option{
		herald.WithStore(e.store),
		herald.WithCatalog(e.catalog),
		herald.WithLogger(e.logger),
	}
	opts = append(opts, e.config.ToBrokerOptions()...)
	opts = append(opts, e.opts...)

	b, err := herald.New(opts...)
	if err != nil {
		return err
	}
	e.broker = b

	e.logger.InfoContext(ctx, "herald extension registered",
		"base_path", e.config.BasePath,
		"routes", !e.config.DisableRoutes,
	)
	return nil
}

// Broker returns the broker, or nil before Register.
func (e *Extension) Broker() *herald.Broker { return e.broker }

// Config returns the extension configuration.
func (e *Extension) Config() Config { return e.config }

// Prefix returns the configured URL prefix.
func (e *Extension) Prefix() string { return e.config.BasePath }

// Mount attaches the HTTP API to r under the configured prefix. It does
// nothing when routes are disabled or before Register.
func (e *Extension) Mount(r chi.Router) {
	if e.broker == nil || e.config.DisableRoutes {
		return
	}
	prefix := e.config.BasePath
	if prefix == "" {
		prefix = "/"
	}
	r.Mount(prefix, api.NewHandler(e.broker, e.logger))
}

// Start begins delivering jobs.
func (e *Extension) Start(ctx context.Context) error {
	if e.broker == nil {
		return ErrNotRegistered
	}
	e.broker.Start(ctx)
	return nil
}

// Stop drains in-flight jobs and closes the store.
func (e *Extension) Stop(ctx context.Context) error {
	if e.broker == nil {
		return ErrNotRegistered
	}
	err := e.broker.Stop(ctx)
	return errors.Join(err, e.store.Close())
}

// Health reports whether the store is reachable.
func (e *Extension) Health(ctx context.Context) error {
	if e.broker == nil {
		return ErrNotRegistered
	}
	return e.broker.Ping(ctx)
}

// Package extension embeds a herald broker into a host Go service.
//
// The extension:
//   - Builds the broker from a store, an event catalog and a Config
//   - Runs store migrations on registration
//   - Mounts the HTTP API under a configurable prefix of a chi router
//   - Starts the delivery engine and stops it gracefully
//   - Provides a health check via store.Ping
//
// Usage:
//
//	ext := extension.New(
//	    extension.WithPostgres(db),
//	    extension.WithCatalog(cat),
//	    extension.WithPrefix("/webhooks"),
//	)
//	if err := ext.Register(ctx); err != nil {
//	    return err
//	}
//	ext.Mount(router)
//	ext.Start(ctx)
//	defer ext.Stop(context.Background())
package extension

// Package herald provides a webhook broker for Go.
//
// Producers publish named events with a JSON payload; consumers register
// subscriptions (event name, optional JSONPath filter, callback URL) and
// receive matching payloads as signed HTTP callbacks. Herald resolves each
// publication to its subscribers, filters per subscriber, signs every
// callback, validates subscriber intent before delivering, and retries failed
// deliveries a bounded number of times.
//
// Key features:
//   - Static event catalog loaded from YAML, with per-namespace publisher secrets
//   - HMAC-SHA256 signatures over canonical JSON, both inbound and outbound
//   - Intent validation handshake before a subscription receives payloads
//   - At-least-once asynchronous delivery with bounded retries
//   - Composable store pattern with multiple backends (Postgres, SQLite, MongoDB, Redis, Memory)
//
// Quick start:
//
//	cat, err := catalog.LoadFile("events.yml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b, err := herald.New(
//	    herald.WithStore(memory.New()),
//	    herald.WithCatalog(cat),
//	    herald.WithAllowedDomains("example.com"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	b.Start(ctx)
//	defer b.Stop(ctx)
//
//	n, err := b.Publish(ctx, event.Publication{
//	    Event:   "orders.created",
//	    Payload: json.RawMessage(`{"id": 42}`),
//	}, signature)
package herald

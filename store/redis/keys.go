package redis

// Key prefixes for primary entity storage.
const (
	prefixSubscription = "herald:sub:"
	prefixJob          = "herald:job:"
	prefixAbandoned    = "herald:abj:"
)

// Key prefix for the (event, filter, URL) uniqueness index.
const uniqueSubscription = "herald:u:sub:"

// Key prefixes for sorted set indexes.
const (
	zSubscriptionAll    = "herald:z:sub:all"
	zSubscriptionActive = "herald:z:sub:active:" // + event name
	zJobAll             = "herald:z:job:all"
	zJobDue             = "herald:z:job:due" // non-terminal jobs scored by next attempt
	zAbandonedAll       = "herald:z:abj:all"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

// subscriptionKey returns the uniqueness key for a subscription triple.
// NUL cannot appear in an event name or URL, so the join is unambiguous.
func subscriptionKey(event, eventFilter, url string) string {
	return uniqueSubscription + event + "\x00" + eventFilter + "\x00" + url
}

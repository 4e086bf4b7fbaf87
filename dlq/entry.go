// Package dlq keeps a log of delivery jobs that exhausted their attempts.
//
// Abandoned jobs are never re-delivered; the log exists so operators and
// external tooling can see what was lost.
package dlq

import (
	"encoding/json"
	"time"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Entry records one abandoned job.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this entry.
	ID id.ID `json:"id"`

	// JobID references the abandoned job.
	JobID id.ID `json:"job_id"`

	// Kind is the job kind.
	Kind delivery.Kind `json:"kind"`

	// SubscriptionID references the target subscription.
	SubscriptionID id.ID `json:"subscription_id"`

	// Event is the event name the job was created for.
	Event string `json:"event"`

	// URL is the target URL at the time of the last attempt.
	URL string `json:"url"`

	// Body is the request body that could not be delivered.
	Body json.RawMessage `json:"body,omitempty"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// AttemptCount is the total number of attempts made.
	AttemptCount int `json:"attempt_count"`

	// LastStatusCode is the HTTP status code from the final attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// AbandonedAt is when the job was given up on.
	AbandonedAt time.Time `json:"abandoned_at"`
}

// ListOpts configures filtering and pagination for listing entries.
type ListOpts struct {
	Offset         int
	Limit          int
	Event          string
	SubscriptionID *id.ID
	From           *time.Time
	To             *time.Time
}

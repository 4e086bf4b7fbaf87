// Package delivery executes outbound HTTP jobs (subscriber callbacks and
// intent challenges) with bounded retries.
//
// Jobs are persisted by a Store and claimed by an Engine, which runs them on a
// worker pool. Delivery is at-least-once and unordered.
package delivery

import (
	"encoding/json"
	"time"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Kind identifies which Handler performs a job.
type Kind string

const (
	// KindCallback delivers a signed publication to a subscriber.
	KindCallback Kind = "callback"

	// KindChallenge asks a subscriber to prove it controls its URL.
	KindChallenge Kind = "challenge"
)

// State represents the current state of a job.
type State string

const (
	// StatePending indicates the job is awaiting its first attempt.
	StatePending State = "pending"

	// StateAttempting indicates a worker has claimed the job.
	StateAttempting State = "attempting"

	// StateDelivered indicates the job succeeded.
	StateDelivered State = "delivered"

	// StateRetryScheduled indicates the last attempt failed and another is due
	// at NextAttemptAt.
	StateRetryScheduled State = "retry_scheduled"

	// StateAbandoned indicates the job exhausted its attempts.
	StateAbandoned State = "abandoned"
)

// Terminal reports whether no further attempts will be made.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateAbandoned
}

const (
	// DefaultMaxAttempts is the number of attempts made before a job is
	// abandoned.
	DefaultMaxAttempts = 3

	// ClaimLease is how long a claimed job stays invisible to other workers.
	// A job still attempting after its lease is claimed again.
	ClaimLease = 5 * time.Minute
)

// DefaultSchedule is the delay before each retry.
var DefaultSchedule = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// Job is one unit of outbound work. It snapshots everything needed to make the
// request so that later changes to the subscription do not affect it.
type Job struct {
	entity.Entity

	// ID is the unique TypeID for this job.
	ID id.ID `json:"id"`

	// Kind selects the handler.
	Kind Kind `json:"kind"`

	// SubscriptionID references the target subscription.
	SubscriptionID id.ID `json:"subscription_id"`

	// Event is the event name the job was created for.
	Event string `json:"event"`

	// URL is the request target.
	URL string `json:"url"`

	// Body is the request body.
	Body json.RawMessage `json:"body,omitempty"`

	// Signature is the x-hook-signature value for callback jobs.
	Signature string `json:"signature,omitempty"`

	// State is the current job state.
	State State `json:"state"`

	// AttemptCount is the number of attempts made so far.
	AttemptCount int `json:"attempt_count"`

	// MaxAttempts is the number of attempts before the job is abandoned.
	MaxAttempts int `json:"max_attempts"`

	// NextAttemptAt is when the job becomes claimable.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LastError is the error message from the most recent failed attempt.
	LastError string `json:"last_error,omitempty"`

	// LastStatusCode is the HTTP status code from the most recent attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// LastResponse is the response body from the most recent attempt (capped at 1KB).
	LastResponse string `json:"last_response,omitempty"`

	// LastLatencyMs is the latency in milliseconds of the most recent attempt.
	LastLatencyMs int `json:"last_latency_ms,omitempty"`

	// CompletedAt is when the job was delivered or abandoned.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Claimable reports whether a worker may claim the job at now.
func (j *Job) Claimable(now time.Time) bool {
	return !j.State.Terminal() && !j.NextAttemptAt.After(now)
}

// ListOpts configures filtering and pagination for job listing.
type ListOpts struct {
	Offset int
	Limit  int
	State  *State
	Kind   Kind
}

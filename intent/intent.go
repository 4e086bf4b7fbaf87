// Package intent verifies that a subscriber controls the URL it registered.
//
// A challenge POSTs {"intention":"pure"} to the subscription URL with the
// subscription secret in the x-hook-secret header. The subscriber proves
// ownership by answering 2xx and echoing the same header. Subscribers that
// cannot answer inline may instead call back with the secret, which activates
// the subscription by token.
package intent

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/event"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/subscription"
)

// HeaderSecret carries the subscription secret on challenges and
// token activations.
const HeaderSecret = "x-hook-secret"

// ErrMismatch is returned when a supplied secret does not match the
// subscription's.
var ErrMismatch = errors.New("herald: intent secret mismatch")

// Mode selects how new subscriptions are validated.
type Mode int

const (
	// Disabled creates subscriptions active; no challenge is sent.
	Disabled Mode = iota

	// Immediate creates subscriptions inactive and schedules a challenge
	// right away. Token activation remains available.
	Immediate

	// Delayed creates subscriptions inactive and waits for token activation.
	Delayed
)

// ModeFrom resolves the mode from the two configuration toggles.
func ModeFrom(validate, immediate bool) Mode {
	switch {
	case !validate:
		return Disabled
	case immediate:
		return Immediate
	default:
		return Delayed
	}
}

func (m Mode) String() string {
	switch m {
	case Disabled:
		return "disabled"
	case Immediate:
		return "immediate"
	default:
		return "delayed"
	}
}

// Outcome classifies a challenge.
type Outcome int

const (
	// Activated means the subscriber echoed the secret and the subscription
	// is now active.
	Activated Outcome = iota

	// Mismatch means the subscriber answered 2xx without echoing the secret.
	Mismatch

	// TransportError means the challenge request failed or was answered with
	// a non-2xx status.
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Activated:
		return "activated"
	case Mismatch:
		return "mismatch"
	default:
		return "transport_error"
	}
}

// Result is the outcome of one challenge.
type Result struct {
	Outcome Outcome

	// Attempt is the underlying HTTP attempt, with Error set for every
	// outcome other than Activated.
	Attempt delivery.Result
}

// Subscriptions is the subset of subscription storage the validator needs.
type Subscriptions interface {
	GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error)
	ActivateSubscription(ctx context.Context, subID id.ID) error
}

// Scheduler hands jobs to the delivery engine.
type Scheduler interface {
	Schedule(ctx context.Context, jobs ...*delivery.Job) error
}

// Validator runs intent challenges and token activations.
type Validator struct {
	subs      Subscriptions
	sender    *delivery.Sender
	scheduler Scheduler
	mode      Mode
	logger    *slog.Logger
}

var _ delivery.Handler = (*Validator)(nil)

// NewValidator creates a validator.
func NewValidator(subs Subscriptions, sender *delivery.Sender, scheduler Scheduler, mode Mode, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		subs:      subs,
		sender:    sender,
		scheduler: scheduler,
		mode:      mode,
		logger:    logger,
	}
}

// Mode returns the validation mode.
func (v *Validator) Mode() Mode { return v.mode }

// Challenge sends one challenge to sub and activates it on success.
func (v *Validator) Challenge(ctx context.Context, sub *subscription.Subscription) Result {
	body, err := json.Marshal(event.NewChallenge())
	if err != nil {
		return Result{Outcome: TransportError, Attempt: delivery.Result{Error: err.Error()}}
	}

	h := http.Header{}
	h.Set(HeaderSecret, sub.Secret)
	res := v.sender.Post(ctx, sub.URL, body, h)
	if !res.OK() {
		return Result{Outcome: TransportError, Attempt: res}
	}

	if !secretsEqual(res.Header.Get(HeaderSecret), sub.Secret) {
		res.Error = "intent mismatch: " + HeaderSecret + " not echoed"
		return Result{Outcome: Mismatch, Attempt: res}
	}

	if err := v.subs.ActivateSubscription(ctx, sub.ID); err != nil {
		res.Error = fmt.Sprintf("activate subscription: %v", err)
		return Result{Outcome: TransportError, Attempt: res}
	}

	v.logger.InfoContext(ctx, "subscription activated by challenge", "subscription_id", sub.ID.String())
	return Result{Outcome: Activated, Attempt: res}
}

// ActivateByToken activates subID when secret matches its subscription
// secret. It is idempotent: activating an active subscription with the right
// secret succeeds.
func (v *Validator) ActivateByToken(ctx context.Context, subID id.ID, secret string) error {
	sub, err := v.subs.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if !secretsEqual(secret, sub.Secret) {
		return ErrMismatch
	}
	if err := v.subs.ActivateSubscription(ctx, subID); err != nil {
		return err
	}
	v.logger.InfoContext(ctx, "subscription activated by token", "subscription_id", subID.String())
	return nil
}

// Perform runs a challenge job. Implements delivery.Handler.
func (v *Validator) Perform(ctx context.Context, job *delivery.Job) delivery.Result {
	sub, err := v.subs.GetSubscription(ctx, job.SubscriptionID)
	if err != nil {
		return delivery.Result{Error: fmt.Sprintf("load subscription: %v", err)}
	}
	if sub.Active {
		return delivery.Result{Skipped: true}
	}

	res := v.Challenge(ctx, sub)
	if res.Outcome != Activated {
		v.logger.DebugContext(ctx, "challenge failed",
			"subscription_id", sub.ID.String(), "outcome", res.Outcome.String(), "error", res.Attempt.Error)
	}
	return res.Attempt
}

// Schedule enqueues a challenge for sub when the mode is Immediate and the
// subscription is not yet active.
func (v *Validator) Schedule(ctx context.Context, sub *subscription.Subscription) error {
	if v.mode != Immediate || sub.Active {
		return nil
	}

	body, err := json.Marshal(event.NewChallenge())
	if err != nil {
		return err
	}

	return v.scheduler.Schedule(ctx, &delivery.Job{
		Kind:           delivery.KindChallenge,
		SubscriptionID: sub.ID,
		Event:          sub.Event,
		URL:            sub.URL,
		Body:           body,
	})
}

func secretsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

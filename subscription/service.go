package subscription

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/filter"
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
	"github.com/xraph/herald/signature"
)

// Events resolves event names. *catalog.Catalog satisfies it.
type Events interface {
	Lookup(name string) (catalog.EventDefinition, bool)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAllowList sets the callback host allow-list.
func WithAllowList(al AllowList) ServiceOption {
	return func(s *Service) { s.allow = al }
}

// WithIntentValidation controls whether new subscriptions start inactive
// until the subscriber proves ownership of its URL.
func WithIntentValidation(enabled bool) ServiceOption {
	return func(s *Service) { s.validateIntent = enabled }
}

// Service provides subscription registration and lookup.
type Service struct {
	store          Store
	events         Events
	allow          AllowList
	validateIntent bool
	logger         *slog.Logger
}

// NewService creates a new subscription service. By default intent
// validation is on and the allow-list is empty.
func NewService(store Store, events Events, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		store:          store,
		events:         events,
		validateIntent: true,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates a subscription, or returns the existing one for the same
// event, filter and URL. created is false when an existing subscription was
// returned.
func (svc *Service) Register(ctx context.Context, in Input) (sub *Subscription, created bool, err error) {
	if err := validate(in); err != nil {
		return nil, false, err
	}

	if _, ok := svc.events.Lookup(in.Event); !ok {
		return nil, false, catalog.ErrEventNotFound
	}

	existing, err := svc.store.FindExact(ctx, in.Event, in.EventFilter, in.URL)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	if !svc.allow.AllowURL(in.URL) {
		svc.logger.WarnContext(ctx, "subscription rejected by allow-list", "url", in.URL)
		return nil, false, ErrDomainNotAllowed
	}

	sub = &Subscription{
		Entity:      entity.New(),
		ID:          id.NewSubscriptionID(),
		Event:       in.Event,
		EventFilter: in.EventFilter,
		URL:         in.URL,
		Secret:      signature.GenerateSecret(),
		Active:      !svc.validateIntent,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost a race with a concurrent identical registration.
			existing, ferr := svc.store.FindExact(ctx, in.Event, in.EventFilter, in.URL)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	svc.logger.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID.String(),
		"event", sub.Event,
		"active", sub.Active,
	)
	return sub, true, nil
}

// Get returns a subscription by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	return svc.store.GetSubscription(ctx, subID)
}

// List returns subscriptions.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, opts)
}

// Activate marks a subscription active.
func (svc *Service) Activate(ctx context.Context, subID id.ID) error {
	return svc.store.ActivateSubscription(ctx, subID)
}

// ListActiveForEvent returns the active subscriptions for event.
func (svc *Service) ListActiveForEvent(ctx context.Context, event string) ([]*Subscription, error) {
	return svc.store.ListActiveForEvent(ctx, event)
}

func validate(in Input) error {
	if in.Event == "" {
		return &ValidationError{Field: "event", Message: "required"}
	}
	if in.URL == "" {
		return &ValidationError{Field: "url", Message: "required"}
	}
	u, err := url.Parse(in.URL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return &ValidationError{Field: "url", Message: "must be an absolute http or https URL"}
	}
	if err := filter.Validate(in.EventFilter); err != nil {
		return &ValidationError{Field: "event_filter", Message: "invalid JSONPath expression"}
	}
	return nil
}

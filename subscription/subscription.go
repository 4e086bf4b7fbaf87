// Package subscription manages subscriber registrations: who receives which
// event, narrowed by which filter, at which URL.
package subscription

import (
	"github.com/xraph/herald/id"
	"github.com/xraph/herald/internal/entity"
)

// Subscription binds a subscriber URL to one event name and an optional
// filter. The only mutation after creation is activation.
type Subscription struct {
	entity.Entity

	// ID is the unique TypeID for this subscription.
	ID id.ID `json:"id"`

	// Event is the catalog event name this subscription listens to.
	Event string `json:"event"`

	// EventFilter is an optional JSONPath expression. Empty means every
	// publication of Event is delivered.
	EventFilter string `json:"event_filter"`

	// URL is the callback target.
	URL string `json:"url"`

	// Secret signs callbacks and challenges. Never serialized.
	Secret string `json:"-"`

	// Active reports whether the subscriber has proven ownership of URL.
	Active bool `json:"active"`
}

// View is the public representation of a subscription.
type View struct {
	ID          string  `json:"id"`
	Event       string  `json:"event"`
	EventFilter *string `json:"event_filter"`
	URL         string  `json:"url"`
	Active      bool    `json:"active"`
}

// View returns the public representation of s. The secret is omitted and an
// empty filter is reported as null.
func (s *Subscription) View() View {
	v := View{
		ID:     s.ID.String(),
		Event:  s.Event,
		URL:    s.URL,
		Active: s.Active,
	}
	if s.EventFilter != "" {
		f := s.EventFilter
		v.EventFilter = &f
	}
	return v
}

// Views maps View over subs.
func Views(subs []*Subscription) []View {
	out := make([]View, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.View())
	}
	return out
}

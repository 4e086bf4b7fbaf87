package subscription

// Input is the registration payload for subscriptions.
type Input struct {
	// Event is the catalog event name.
	Event string `json:"event"`

	// URL is the callback target.
	URL string `json:"url"`

	// EventFilter is an optional JSONPath expression.
	EventFilter string `json:"event_filter,omitempty"`
}

// ListOpts configures filtering and pagination for subscription listing.
type ListOpts struct {
	Offset int
	Limit  int
	Event  string
	Active *bool
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "subscription validation: " + e.Field + ": " + e.Message
}

// Package event defines the documents exchanged with producers and
// subscribers: inbound publications, outbound callbacks and intent challenges.
package event

import (
	"bytes"
	"encoding/json"
)

// Intention is the fixed value carried by every intent challenge.
const Intention = "pure"

// Publication is one occurrence of an event submitted by a producer. It is
// never persisted.
type Publication struct {
	// Event is the dotted event name.
	Event string `json:"event"`

	// Payload is the producer's JSON document.
	Payload json.RawMessage `json:"payload"`
}

// PublicationBody returns the document a producer signs to authenticate a
// publication: its event and payload, nothing else.
func PublicationBody(p Publication) map[string]any {
	return map[string]any{
		"event":   p.Event,
		"payload": p.Payload,
	}
}

// Validate returns a field → message map describing what is wrong with the
// publication, or nil when it is well-formed.
func (p Publication) Validate() map[string]string {
	fields := map[string]string{}
	if p.Event == "" {
		fields["event"] = "required"
	}
	trimmed := bytes.TrimSpace(p.Payload)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		fields["payload"] = "required"
	case trimmed[0] != '{':
		fields["payload"] = "must be an object"
	case !json.Valid(trimmed):
		fields["payload"] = "invalid JSON"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Callback is the body POSTed to a subscriber for each matching publication.
type Callback struct {
	OK           bool            `json:"ok"`
	Event        string          `json:"event"`
	EventFilter  *string         `json:"event_filter"`
	Subscription string          `json:"subscription"`
	Payload      json.RawMessage `json:"payload"`
}

// NewCallback builds the callback body for one subscriber. An empty filter is
// reported as null.
func NewCallback(eventName, eventFilter, subscriptionID string, payload json.RawMessage) Callback {
	cb := Callback{
		OK:           true,
		Event:        eventName,
		Subscription: subscriptionID,
		Payload:      payload,
	}
	if eventFilter != "" {
		f := eventFilter
		cb.EventFilter = &f
	}
	return cb
}

// Challenge is the body POSTed to a subscriber to prove it controls its URL.
type Challenge struct {
	Intention string `json:"intention"`
}

// NewChallenge returns the intent challenge body.
func NewChallenge() Challenge {
	return Challenge{Intention: Intention}
}

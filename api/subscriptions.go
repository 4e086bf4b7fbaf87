package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/herald/id"
	"github.com/xraph/herald/intent"
	"github.com/xraph/herald/subscription"
)

type createSubscriptionRequest struct {
	Event       string  `json:"event"`
	URL         string  `json:"url"`
	EventFilter *string `json:"event_filter"`
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	opts := subscription.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 0),
		Event:  queryParam(r, "event"),
		Active: queryBool(r, "active"),
	}

	subs, err := h.broker.Subscriptions(r.Context(), opts)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, subscription.Views(subs))
}

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	raw, err := readValidated(r.Body, subscriptionRequest)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	var req createSubscriptionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.writeErr(w, r, errMalformed)
		return
	}

	in := subscription.Input{Event: req.Event, URL: req.URL}
	if req.EventFilter != nil {
		in.EventFilter = *req.EventFilter
	}

	sub, created, err := h.broker.Register(r.Context(), in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	if !created {
		writeJSON(w, http.StatusOK, sub.View())
		return
	}

	w.Header().Set(intent.HeaderSecret, sub.Secret)
	writeJSON(w, http.StatusCreated, sub.View())
}

func (h *Handler) activateSubscription(w http.ResponseWriter, r *http.Request) {
	subID, err := id.ParseSubscriptionID(chi.URLParam(r, "id"))
	if err != nil {
		// An ID that cannot parse cannot exist.
		h.writeErr(w, r, subscription.ErrNotFound)
		return
	}

	secret := r.Header.Get(intent.HeaderSecret)
	if secret == "" {
		h.writeErr(w, r, FieldErrors{intent.HeaderSecret: "required"})
		return
	}

	if err := h.broker.Activate(r.Context(), subID, secret); err != nil {
		h.writeErr(w, r, err)
		return
	}

	sub, err := h.broker.Subscription(r.Context(), subID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sub.View())
}

package api

import (
	"net/http"
	"time"

	"github.com/xraph/herald/dlq"
	"github.com/xraph/herald/id"
)

func (h *Handler) listAbandoned(w http.ResponseWriter, r *http.Request) {
	opts := dlq.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Event:  queryParam(r, "event"),
	}

	if v := queryParam(r, "subscription_id"); v != "" {
		subID, err := id.ParseSubscriptionID(v)
		if err != nil {
			h.writeErr(w, r, FieldErrors{"subscription_id": "invalid subscription ID"})
			return
		}
		opts.SubscriptionID = &subID
	}

	for _, p := range []struct {
		key  string
		dest **time.Time
	}{{"from", &opts.From}, {"to", &opts.To}} {
		v := queryParam(r, p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeErr(w, r, FieldErrors{p.key: "must be an RFC 3339 timestamp"})
			return
		}
		*p.dest = &t
	}

	entries, err := h.broker.Abandoned(r.Context(), opts)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

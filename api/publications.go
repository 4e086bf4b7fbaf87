package api

import (
	"encoding/json"
	"net/http"

	"github.com/xraph/herald/delivery"
	"github.com/xraph/herald/event"
)

type publishResponse struct {
	OK        bool `json:"ok"`
	Scheduled int  `json:"scheduled"`
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	raw, err := readValidated(r.Body, publicationRequest)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	var pub event.Publication
	if err := json.Unmarshal(raw, &pub); err != nil {
		h.writeErr(w, r, errMalformed)
		return
	}
	if fields := pub.Validate(); fields != nil {
		h.writeErr(w, r, FieldErrors(fields))
		return
	}

	n, err := h.broker.Publish(r.Context(), pub, r.Header.Get(delivery.HeaderSignature))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, publishResponse{OK: true, Scheduled: n})
}

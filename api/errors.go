package api

import (
	"errors"
	"net/http"

	"github.com/xraph/herald/catalog"
	"github.com/xraph/herald/dispatch"
	"github.com/xraph/herald/intent"
	"github.com/xraph/herald/subscription"
)

// writeErr maps a broker error to its HTTP response. It is the only place
// errors become status codes.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		fields   FieldErrors
		invalid  *subscription.ValidationError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &fields):
		writeValidation(w, fields)
	case errors.As(err, &invalid):
		writeValidation(w, FieldErrors{invalid.Field: invalid.Message})
	case errors.Is(err, errMalformed):
		writeValidation(w, FieldErrors{"body": "invalid JSON"})
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, catalog.ErrEventNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, subscription.ErrNotFound):
		writeError(w, http.StatusNotFound, "subscription not found")
	case errors.Is(err, subscription.ErrDomainNotAllowed):
		writeError(w, http.StatusForbidden, "subscription domain not allowed")
	case errors.Is(err, dispatch.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "invalid publication signature")
	case errors.Is(err, intent.ErrMismatch):
		writeValidation(w, FieldErrors{intent.HeaderSecret: "does not match"})
	default:
		h.logger.ErrorContext(r.Context(), "api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeValidation(w http.ResponseWriter, fields FieldErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

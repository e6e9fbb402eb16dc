package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/gateway"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/observability"
	"github.com/platinummonkey/orgadmin/pkg/session"
	"github.com/platinummonkey/orgadmin/pkg/templates"
	"github.com/platinummonkey/orgadmin/pkg/transfer"
)

// statusFor maps component errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, hierarchy.ErrValidation),
		errors.Is(err, catalog.ErrValidation),
		errors.Is(err, templates.ErrValidation),
		errors.Is(err, transfer.ErrInvalidBundle):
		return http.StatusBadRequest
	case errors.Is(err, hierarchy.ErrNoActiveAccount),
		errors.Is(err, catalog.ErrNoActiveAccount),
		errors.Is(err, gateway.ErrNoAccount),
		errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, hierarchy.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, templates.ErrNotFound),
		errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, hierarchy.ErrCycle),
		errors.Is(err, transfer.ErrNoLocalStore):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Server errors are logged
// and their details are not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
		httputil.WriteErrorMessage(w, status, "internal server error")
		return
	}
	httputil.WriteError(w, status, err)
}

package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/audit"
	"github.com/platinummonkey/orgadmin/pkg/httputil"
)

// AuditHandlers serves the permission audit trail
type AuditHandlers struct {
	store *audit.Store
}

// NewAuditHandlers creates audit handlers
func NewAuditHandlers(store *audit.Store) *AuditHandlers {
	return &AuditHandlers{store: store}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit", h.search).Methods(http.MethodGet)
	router.HandleFunc("/audit", h.clear).Methods(http.MethodDelete)
	router.HandleFunc("/audit/export", h.export).Methods(http.MethodGet)
}

// parseFilter reads q, action, user, since (RFC 3339) and limit
func parseFilter(r *http.Request) (audit.SearchFilter, error) {
	filter := audit.SearchFilter{
		Term:   httputil.ParseQueryString(r, "q", ""),
		Action: audit.Action(httputil.ParseQueryString(r, "action", "")),
		UserID: httputil.ParseQueryString(r, "user", ""),
	}
	if filter.Action != "" && !filter.Action.Valid() {
		return filter, fmt.Errorf("unknown action %q", filter.Action)
	}
	since, err := httputil.ParseQueryTime(r, "since")
	if err != nil {
		return filter, err
	}
	filter.Since = since
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	return filter, nil
}

func (h *AuditHandlers) search(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	entries, err := h.store.Search(r.Context(), accountID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, entries)
}

func (h *AuditHandlers) export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	format := audit.ExportFormat(httputil.ParseQueryString(r, "format", string(audit.ExportFormatJSON)))
	if format != audit.ExportFormatJSON && format != audit.ExportFormatNDJSON {
		httputil.WriteBadRequest(w, fmt.Sprintf("unsupported format %q", format))
		return
	}

	data, err := h.store.Export(r.Context(), accountID(r), filter, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	contentType := "application/json"
	if format == audit.ExportFormatNDJSON {
		contentType = "application/x-ndjson"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"audit.%s\"", format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ClearResponse reports how many entries were removed
type ClearResponse struct {
	Removed int `json:"removed"`
}

func (h *AuditHandlers) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Clear(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, ClearResponse{Removed: n})
}

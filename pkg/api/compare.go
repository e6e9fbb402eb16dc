package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/compare"
	"github.com/platinummonkey/orgadmin/pkg/httputil"
)

// CompareHandlers serves side by side permission comparison
type CompareHandlers struct {
	comparer *compare.Comparer
}

// NewCompareHandlers creates compare handlers
func NewCompareHandlers(c *compare.Comparer) *CompareHandlers {
	return &CompareHandlers{comparer: c}
}

// RegisterRoutes registers compare routes
func (h *CompareHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/compare", h.diff).Methods(http.MethodGet)
	router.HandleFunc("/compare/copy", h.copy).Methods(http.MethodPost)
	router.HandleFunc("/compare/sync", h.sync).Methods(http.MethodPost)
}

// TransferRequest moves permissions from one employee to another.
// PermissionIDs is ignored by sync.
type TransferRequest struct {
	From          string   `json:"from"`
	To            string   `json:"to"`
	PermissionIDs []string `json:"permissionIds"`
}

// AddedResponse lists the permission ids that were actually added
type AddedResponse struct {
	Added []string `json:"added"`
}

func (h *CompareHandlers) diff(w http.ResponseWriter, r *http.Request) {
	a := httputil.ParseQueryString(r, "a", "")
	b := httputil.ParseQueryString(r, "b", "")
	if !httputil.RequireNonEmpty(w, a, "a") || !httputil.RequireNonEmpty(w, b, "b") {
		return
	}
	d, err := h.comparer.Diff(r.Context(), accountID(r), a, b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, d)
}

func (h *CompareHandlers) copy(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.parse(w, r, &req) {
		return
	}
	added, err := h.comparer.Copy(r.Context(), accountID(r), req.From, req.To, req.PermissionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, AddedResponse{Added: added})
}

func (h *CompareHandlers) sync(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !h.parse(w, r, &req) {
		return
	}
	added, err := h.comparer.SyncAll(r.Context(), accountID(r), req.From, req.To)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, AddedResponse{Added: added})
}

func (h *CompareHandlers) parse(w http.ResponseWriter, r *http.Request, req *TransferRequest) bool {
	if !httputil.ParseJSONOrError(w, r, req) {
		return false
	}
	return httputil.RequireNonEmpty(w, req.From, "from") && httputil.RequireNonEmpty(w, req.To, "to")
}

package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/templates"
)

// TemplateHandlers serves permission templates
type TemplateHandlers struct {
	store *templates.Store
}

// NewTemplateHandlers creates template handlers
func NewTemplateHandlers(store *templates.Store) *TemplateHandlers {
	return &TemplateHandlers{store: store}
}

// RegisterRoutes registers template routes
func (h *TemplateHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/templates", h.list).Methods(http.MethodGet)
	router.HandleFunc("/templates", h.create).Methods(http.MethodPost)
	router.HandleFunc("/templates/{id}", h.get).Methods(http.MethodGet)
	router.HandleFunc("/templates/{id}", h.update).Methods(http.MethodPut)
	router.HandleFunc("/templates/{id}", h.remove).Methods(http.MethodDelete)
	router.HandleFunc("/templates/{id}/apply", h.apply).Methods(http.MethodPost)
}

// ApplyRequest selects the employees a template is applied to
type ApplyRequest struct {
	UserIDs []string `json:"userIds"`
}

func (h *TemplateHandlers) list(w http.ResponseWriter, r *http.Request) {
	out, err := h.store.List(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, out)
}

func (h *TemplateHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	t, err := h.store.Get(r.Context(), accountID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, t)
}

func (h *TemplateHandlers) create(w http.ResponseWriter, r *http.Request) {
	var t templates.Template
	if !httputil.ParseJSONOrError(w, r, &t) {
		return
	}
	created, err := h.store.Create(r.Context(), accountID(r), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *TemplateHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var t templates.Template
	if !httputil.ParseJSONOrError(w, r, &t) {
		return
	}
	t.ID = id
	updated, err := h.store.Update(r.Context(), accountID(r), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, updated)
}

func (h *TemplateHandlers) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), accountID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *TemplateHandlers) apply(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req ApplyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	results, err := h.store.Apply(r.Context(), accountID(r), id, req.UserIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, results)
}

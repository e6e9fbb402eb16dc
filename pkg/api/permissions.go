package api

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/httputil"
)

// PermissionHandlers serves the permission catalog
type PermissionHandlers struct {
	catalog *catalog.Catalog
	store   *hierarchy.Store
}

// NewPermissionHandlers creates catalog handlers
func NewPermissionHandlers(c *catalog.Catalog, store *hierarchy.Store) *PermissionHandlers {
	return &PermissionHandlers{catalog: c, store: store}
}

// RegisterRoutes registers catalog routes
func (h *PermissionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.list).Methods(http.MethodGet)
	router.HandleFunc("/permissions", h.add).Methods(http.MethodPost)
	router.HandleFunc("/permissions/reset", h.reset).Methods(http.MethodPost)
	router.HandleFunc("/permissions/dangling", h.dangling).Methods(http.MethodGet)
	router.HandleFunc("/permissions/{id}", h.get).Methods(http.MethodGet)
	router.HandleFunc("/permissions/{id}", h.update).Methods(http.MethodPut)
	router.HandleFunc("/permissions/{id}", h.remove).Methods(http.MethodDelete)
}

func (h *PermissionHandlers) list(w http.ResponseWriter, r *http.Request) {
	var (
		perms []catalog.Permission
		err   error
	)
	if category := catalog.Category(httputil.ParseQueryString(r, "category", "")); category != "" {
		if !category.Valid() {
			writeError(w, r, fmt.Errorf("%w: unknown category %q", catalog.ErrValidation, category))
			return
		}
		perms, err = h.catalog.ListByCategory(r.Context(), accountID(r), category)
	} else {
		perms, err = h.catalog.List(r.Context(), accountID(r))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perms)
}

func (h *PermissionHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	p, err := h.catalog.Get(r.Context(), accountID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

func (h *PermissionHandlers) add(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewPermission
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	p, err := h.catalog.Add(r.Context(), accountID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, p)
}

func (h *PermissionHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var p catalog.Permission
	if !httputil.ParseJSONOrError(w, r, &p) {
		return
	}
	p.ID = id
	if err := h.catalog.Update(r.Context(), accountID(r), p); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, p)
}

func (h *PermissionHandlers) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.Delete(r.Context(), accountID(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *PermissionHandlers) reset(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.ResetToDefaults(r.Context(), accountID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	h.list(w, r)
}

// dangling lists permission ids held by entities that have no catalog entry
func (h *PermissionHandlers) dangling(w http.ResponseWriter, r *http.Request) {
	acct := accountID(r)
	held := map[string]bool{}
	for _, e := range h.store.Entities(acct) {
		for _, id := range e.Permissions {
			held[id] = true
		}
	}
	ids := make([]string, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out, err := h.catalog.Dangling(r.Context(), acct, ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, out)
}

package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/hierarchy"
	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/observability"
)

// RootID addresses the top level in /entities/{id}/children
const RootID = "root"

// EntityHandlers serves the organization hierarchy
type EntityHandlers struct {
	store *hierarchy.Store
}

// NewEntityHandlers creates entity handlers
func NewEntityHandlers(store *hierarchy.Store) *EntityHandlers {
	return &EntityHandlers{store: store}
}

// RegisterRoutes registers entity routes
func (h *EntityHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/entities", h.listEntities).Methods(http.MethodGet)
	router.HandleFunc("/entities", h.addEntity).Methods(http.MethodPost)
	router.HandleFunc("/entities/{id}", h.getEntity).Methods(http.MethodGet)
	router.HandleFunc("/entities/{id}", h.updateEntity).Methods(http.MethodPut)
	router.HandleFunc("/entities/{id}", h.deleteEntity).Methods(http.MethodDelete)
	router.HandleFunc("/entities/{id}/children", h.children).Methods(http.MethodGet)
	router.HandleFunc("/entities/{id}/subtree", h.subtree).Methods(http.MethodGet)
	router.HandleFunc("/entities/{id}/path", h.path).Methods(http.MethodGet)
	router.HandleFunc("/entities/{id}/move", h.moveEntity).Methods(http.MethodPost)
	router.HandleFunc("/entities/{id}/copy", h.copyUser).Methods(http.MethodPost)

	router.HandleFunc("/entities/{id}/permissions", h.listPermissions).Methods(http.MethodGet)
	router.HandleFunc("/entities/{id}/permissions/{permissionId}", h.addPermission).Methods(http.MethodPut)
	router.HandleFunc("/entities/{id}/permissions/{permissionId}", h.removePermission).Methods(http.MethodDelete)
}

// EntityListResponse wraps the entity list with the account loading state
type EntityListResponse struct {
	Entities []hierarchy.Entity `json:"entities"`
	Loading  bool               `json:"loading"`
}

// MoveRequest is the body of POST /entities/{id}/move. An empty parent
// moves the entity to the top level.
type MoveRequest struct {
	ParentID string `json:"parentId"`
}

// DeleteResponse lists every entity a cascade delete removed
type DeleteResponse struct {
	Deleted []string `json:"deleted"`
}

// listEntities returns every entity. ?type= keeps one entity type and ?q=
// searches names and roles, returning at most ?limit= matches.
func (h *EntityHandlers) listEntities(w http.ResponseWriter, r *http.Request) {
	acct := accountID(r)
	entities := h.store.Entities(acct)

	if raw := httputil.ParseQueryString(r, "type", ""); raw != "" {
		t, err := hierarchy.ParseEntityType(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filtered := entities[:0:0]
		for _, e := range entities {
			if e.Type == t {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}

	if q := httputil.ParseQueryString(r, "q", ""); q != "" {
		limit, err := httputil.ParseQueryInt(r, "limit", hierarchy.DefaultSearchLimit)
		if err != nil {
			httputil.WriteBadRequest(w, err.Error())
			return
		}
		entities = hierarchy.Search(entities, q, limit)
	}

	if entities == nil {
		entities = []hierarchy.Entity{}
	}
	httputil.WriteSuccess(w, EntityListResponse{Entities: entities, Loading: h.store.Loading(acct)})
}

func (h *EntityHandlers) getEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	e, err := h.store.Entity(accountID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, e)
}

func (h *EntityHandlers) addEntity(w http.ResponseWriter, r *http.Request) {
	var e hierarchy.Entity
	if !httputil.ParseJSONOrError(w, r, &e) {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if err := h.store.AddEntity(r.Context(), accountID(r), e); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, e)
}

func (h *EntityHandlers) updateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var e hierarchy.Entity
	if !httputil.ParseJSONOrError(w, r, &e) {
		return
	}
	e.ID = id
	if err := h.store.UpdateEntity(r.Context(), accountID(r), e); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, e)
}

func (h *EntityHandlers) deleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	deleted, err := h.store.DeleteEntity(r.Context(), accountID(r), id)
	if err != nil {
		if len(deleted) > 0 {
			observability.FromContext(r.Context()).WithError(err).
				WithField("deleted", len(deleted)).
				Warn("cascade delete stopped part way")
		}
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, DeleteResponse{Deleted: deleted})
}

func (h *EntityHandlers) children(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if id == RootID {
		id = ""
	}
	httputil.WriteSuccess(w, h.store.ChildrenOf(accountID(r), id))
}

func (h *EntityHandlers) subtree(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	acct := accountID(r)
	if _, err := h.store.Entity(acct, id); err != nil {
		writeError(w, r, err)
		return
	}

	entities := h.store.Entities(acct)
	byID := make(map[string]hierarchy.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}
	out := []hierarchy.Entity{}
	for _, d := range hierarchy.Descendants(entities, id) {
		out = append(out, byID[d])
	}
	httputil.WriteSuccess(w, out)
}

func (h *EntityHandlers) path(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	acct := accountID(r)
	if _, err := h.store.Entity(acct, id); err != nil {
		writeError(w, r, err)
		return
	}
	path := hierarchy.Ancestors(h.store.Entities(acct), id)
	if path == nil {
		path = []hierarchy.Entity{}
	}
	httputil.WriteSuccess(w, path)
}

func (h *EntityHandlers) moveEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req MoveRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.store.MoveEntity(r.Context(), accountID(r), id, req.ParentID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *EntityHandlers) copyUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req hierarchy.CopyRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	newID, err := h.store.CopyUser(r.Context(), accountID(r), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, map[string]string{"id": newID})
}

func (h *EntityHandlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	e, err := h.store.Entity(accountID(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	perms := e.Permissions
	if perms == nil {
		perms = []string{}
	}
	httputil.WriteSuccess(w, perms)
}

func (h *EntityHandlers) addPermission(w http.ResponseWriter, r *http.Request) {
	h.togglePermission(w, r, h.store.AddPermission)
}

func (h *EntityHandlers) removePermission(w http.ResponseWriter, r *http.Request) {
	h.togglePermission(w, r, h.store.RemovePermission)
}

type toggleFunc func(ctx context.Context, accountID, entityID, permissionID string) error

func (h *EntityHandlers) togglePermission(w http.ResponseWriter, r *http.Request, toggle toggleFunc) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathStringOrError(w, r, "permissionId")
	if !ok {
		return
	}
	if err := toggle(r.Context(), accountID(r), id, permissionID); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/settings"
	"github.com/platinummonkey/orgadmin/pkg/transfer"
)

// AccountHandlers serves account wide operations: settings, bundle
// export and import, reset and local migration
type AccountHandlers struct {
	settings *settings.Store
	transfer *transfer.Service
}

// NewAccountHandlers creates account handlers
func NewAccountHandlers(s *settings.Store, t *transfer.Service) *AccountHandlers {
	return &AccountHandlers{settings: s, transfer: t}
}

// RegisterRoutes registers account routes
func (h *AccountHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/settings", h.getSettings).Methods(http.MethodGet)
	router.HandleFunc("/settings", h.saveSettings).Methods(http.MethodPut)
	router.HandleFunc("/settings", h.resetSettings).Methods(http.MethodDelete)

	router.HandleFunc("/export", h.export).Methods(http.MethodGet)
	router.HandleFunc("/import", h.importBundle).Methods(http.MethodPost)
	router.HandleFunc("/reset", h.resetAll).Methods(http.MethodPost)
	router.HandleFunc("/migrate", h.migrate).Methods(http.MethodPost)
}

func (h *AccountHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Load(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, s)
}

func (h *AccountHandlers) saveSettings(w http.ResponseWriter, r *http.Request) {
	s := settings.Defaults()
	if !httputil.ParseJSONOrError(w, r, &s) {
		return
	}
	if err := h.settings.Save(r.Context(), accountID(r), s); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, s)
}

func (h *AccountHandlers) resetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settings.Reset(r.Context(), accountID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, settings.Defaults())
}

func (h *AccountHandlers) export(w http.ResponseWriter, r *http.Request) {
	b, err := h.transfer.Export(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	filename := fmt.Sprintf("orgadmin-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	httputil.WriteSuccess(w, b)
}

func (h *AccountHandlers) importBundle(w http.ResponseWriter, r *http.Request) {
	b, err := transfer.Decode(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.transfer.Import(r.Context(), accountID(r), b); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *AccountHandlers) resetAll(w http.ResponseWriter, r *http.Request) {
	if err := h.transfer.ResetAll(r.Context(), accountID(r)); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// MigrateResponse reports how many documents were copied
type MigrateResponse struct {
	Migrated int `json:"migrated"`
}

func (h *AccountHandlers) migrate(w http.ResponseWriter, r *http.Request) {
	n, err := h.transfer.MigrateLocal(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, MigrateResponse{Migrated: n})
}

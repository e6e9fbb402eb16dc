package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/catalog"
	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/stats"
)

// StatsHandlers serves aggregate statistics
type StatsHandlers struct {
	stats *stats.Service
}

// NewStatsHandlers creates stats handlers
func NewStatsHandlers(s *stats.Service) *StatsHandlers {
	return &StatsHandlers{stats: s}
}

// RegisterRoutes registers stats routes
func (h *StatsHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stats/permissions", h.usage).Methods(http.MethodGet)
	router.HandleFunc("/stats/categories", h.categories).Methods(http.MethodGet)
	router.HandleFunc("/stats/users", h.users).Methods(http.MethodGet)
	router.HandleFunc("/stats/departments", h.departments).Methods(http.MethodGet)
}

func (h *StatsHandlers) usage(w http.ResponseWriter, r *http.Request) {
	category := catalog.Category(httputil.ParseQueryString(r, "category", ""))
	if category != "" && !category.Valid() {
		writeError(w, r, fmt.Errorf("%w: unknown category %q", catalog.ErrValidation, category))
		return
	}
	out, err := h.stats.Usage(r.Context(), accountID(r), category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, out)
}

func (h *StatsHandlers) categories(w http.ResponseWriter, r *http.Request) {
	out, err := h.stats.Categories(r.Context(), accountID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, out)
}

func (h *StatsHandlers) users(w http.ResponseWriter, r *http.Request) {
	department := httputil.ParseQueryString(r, "department", "")
	httputil.WriteSuccess(w, h.stats.Users(accountID(r), department))
}

func (h *StatsHandlers) departments(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, h.stats.Departments(accountID(r)))
}

package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/session"
)

// AuthHandlers runs the OIDC authorization code flow
type AuthHandlers struct {
	provider *session.OIDCProvider
}

// NewAuthHandlers creates login handlers
func NewAuthHandlers(provider *session.OIDCProvider) *AuthHandlers {
	return &AuthHandlers{provider: provider}
}

// RegisterRoutes registers /auth routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.provider.LoginHandler).Methods(http.MethodGet)
	router.HandleFunc("/auth/callback", h.callback).Methods(http.MethodGet)
}

func (h *AuthHandlers) callback(w http.ResponseWriter, r *http.Request) {
	result, err := h.provider.Exchange(r)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			httputil.WriteUnauthorized(w, err.Error())
			return
		}
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

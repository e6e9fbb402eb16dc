package middleware

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/orgadmin/pkg/httputil"
	"github.com/platinummonkey/orgadmin/pkg/observability"
	"github.com/platinummonkey/orgadmin/pkg/session"
)

// SessionMiddleware rejects requests without a session with 401 and adds
// the session to the request context otherwise
func SessionMiddleware(provider session.Provider, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := provider.Session(r)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					logger.WithError(err).Warn("session lookup failed")
				}
				httputil.WriteUnauthorized(w, "no active account")
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

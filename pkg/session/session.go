// Package session resolves the signed-in account for a request. Identity
// is owned by an external OpenID Connect provider; this package only
// verifies what the provider issued.
package session

import (
	"context"
	"errors"
	"net/http"
)

// ErrNoSession is returned when a request carries no valid session
var ErrNoSession = errors.New("no session")

// Session identifies the signed-in account
type Session struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Provider extracts a Session from a request
type Provider interface {
	Session(r *http.Request) (Session, error)
}

type contextKey struct{}

// WithSession adds s to ctx
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session stored in ctx
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok && s.AccountID != ""
}

// AccountID returns the account id of the session in ctx, or ""
func AccountID(ctx context.Context) string {
	s, _ := FromContext(ctx)
	return s.AccountID
}

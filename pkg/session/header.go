package session

import (
	"net/http"
	"strings"
)

// Header names read by HeaderProvider
const (
	DefaultAccountHeader = "X-Account-Id"
	DefaultNameHeader    = "X-Account-Name"
	DefaultEmailHeader   = "X-Account-Email"
)

// HeaderProvider trusts identity headers set by an authenticating reverse
// proxy. Only use it behind such a proxy.
type HeaderProvider struct {
	AccountHeader string
	NameHeader    string
	EmailHeader   string
}

// NewHeaderProvider returns a provider reading the default headers
func NewHeaderProvider() *HeaderProvider {
	return &HeaderProvider{
		AccountHeader: DefaultAccountHeader,
		NameHeader:    DefaultNameHeader,
		EmailHeader:   DefaultEmailHeader,
	}
}

func (p *HeaderProvider) Session(r *http.Request) (Session, error) {
	account := strings.TrimSpace(r.Header.Get(p.AccountHeader))
	if account == "" {
		return Session{}, ErrNoSession
	}
	return Session{
		AccountID:   account,
		DisplayName: r.Header.Get(p.NameHeader),
		Email:       r.Header.Get(p.EmailHeader),
	}, nil
}

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const stateCookie = "orgadmin_oidc_state"

// OIDCConfig configures the OpenID Connect provider
type OIDCConfig struct {
	IssuerURL    string   `yaml:"issuer_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

// TokenVerifier verifies raw ID tokens. *oidc.IDTokenVerifier satisfies it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)
}

// OIDCProvider reads bearer ID tokens issued by an OpenID Connect provider.
// The subject claim becomes the account id.
type OIDCProvider struct {
	verifier     TokenVerifier
	oauth2Config *oauth2.Config
}

type claims struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// NewOIDCProvider discovers the issuer and builds a verifier for its tokens
func NewOIDCProvider(ctx context.Context, config OIDCConfig) (*OIDCProvider, error) {
	if config.IssuerURL == "" || config.ClientID == "" {
		return nil, fmt.Errorf("issuer_url and client_id are required")
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return NewOIDCProviderWithVerifier(
		provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
		&oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
	), nil
}

// NewOIDCProviderWithVerifier builds a provider from parts. oauth2Config
// may be nil when the login flow is not served.
func NewOIDCProviderWithVerifier(verifier TokenVerifier, oauth2Config *oauth2.Config) *OIDCProvider {
	return &OIDCProvider{verifier: verifier, oauth2Config: oauth2Config}
}

func (p *OIDCProvider) Session(r *http.Request) (Session, error) {
	auth := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Session{}, ErrNoSession
	}
	return p.verify(r.Context(), strings.TrimSpace(raw))
}

func (p *OIDCProvider) verify(ctx context.Context, raw string) (Session, error) {
	token, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrNoSession, err)
	}

	var c claims
	if err := token.Claims(&c); err != nil {
		return Session{}, fmt.Errorf("%w: failed to parse claims: %v", ErrNoSession, err)
	}
	if c.Subject == "" {
		c.Subject = token.Subject
	}
	if c.Subject == "" {
		return Session{}, fmt.Errorf("%w: token has no subject", ErrNoSession)
	}

	name := c.Name
	if name == "" {
		name = c.Email
	}
	return Session{AccountID: c.Subject, DisplayName: name, Email: c.Email}, nil
}

// LoginHandler redirects to the provider's authorization endpoint
func (p *OIDCProvider) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if p.oauth2Config == nil {
		http.Error(w, "login is not configured", http.StatusNotFound)
		return
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		http.Error(w, "failed to create state", http.StatusInternalServerError)
		return
	}
	state := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(10 * time.Minute),
	})
	http.Redirect(w, r, p.oauth2Config.AuthCodeURL(state), http.StatusFound)
}

// CallbackResult is returned to the client after a successful login
type CallbackResult struct {
	IDToken string    `json:"idToken"`
	Expiry  time.Time `json:"expiry"`
	Session Session   `json:"session"`
}

// Exchange completes the authorization code flow and verifies the ID token
func (p *OIDCProvider) Exchange(r *http.Request) (CallbackResult, error) {
	if p.oauth2Config == nil {
		return CallbackResult{}, fmt.Errorf("login is not configured")
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != r.URL.Query().Get("state") {
		return CallbackResult{}, fmt.Errorf("%w: state mismatch", ErrNoSession)
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		return CallbackResult{}, fmt.Errorf("%w: missing authorization code", ErrNoSession)
	}

	token, err := p.oauth2Config.Exchange(r.Context(), code)
	if err != nil {
		return CallbackResult{}, fmt.Errorf("failed to exchange token: %w", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return CallbackResult{}, fmt.Errorf("missing id_token in response")
	}

	s, err := p.verify(r.Context(), rawIDToken)
	if err != nil {
		return CallbackResult{}, err
	}
	return CallbackResult{IDToken: rawIDToken, Expiry: token.Expiry, Session: s}, nil
}

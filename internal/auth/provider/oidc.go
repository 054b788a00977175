package provider

import (
	"context"
	"errors"
	"fmt"

	"helpdesk/internal/auth"
	"helpdesk/internal/logger"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Scopes requested from every OpenID Connect provider.
var Scopes = []string{oidc.ScopeOpenID, "email", "profile"}

// OIDC is an authorization-code provider with PKCE whose identity comes
// from a verified id_token.
type OIDC struct {
	name     string
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

func NewOIDC(name string, config *oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDC {
	return &OIDC{name: name, config: config, verifier: verifier}
}

func (p *OIDC) Name() string {
	return p.name
}

func (p *OIDC) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
	)
}

type claims struct {
	Subject           string `json:"sub"`
	Email             string `json:"email"`
	EmailVerified     bool   `json:"email_verified"`
	Name              string `json:"name"`
	PreferredUsername string `json:"preferred_username"`
}

func (p *OIDC) ExchangeCode(ctx context.Context, code, verifier string) (*auth.Identity, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%s: token exchange: %w", p.name, err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("%s: no id_token in token response", p.name)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%s: id_token verification: %w", p.name, err)
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("%s: id_token claims: %w", p.name, err)
	}

	ident, err := c.identity(p.name)
	if err != nil {
		return nil, err
	}

	logger.Info("oidc identity verified", map[string]any{
		"provider":       p.name,
		"issuer":         idToken.Issuer,
		"email_verified": c.EmailVerified,
		"expiry_unix":    idToken.Expiry.Unix(),
	})
	return ident, nil
}

// identity normalizes the claims; preferred_username stands in for a
// missing name.
func (c claims) identity(provider string) (*auth.Identity, error) {
	if c.Subject == "" || c.Email == "" {
		return nil, errors.New(provider + ": id_token missing sub or email")
	}
	name := c.Name
	if name == "" {
		name = c.PreferredUsername
	}
	return &auth.Identity{
		Provider:       provider,
		ProviderUserID: c.Subject,
		Email:          c.Email,
		EmailVerified:  c.EmailVerified,
		Name:           name,
	}, nil
}

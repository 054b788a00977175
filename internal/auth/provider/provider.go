package provider

import (
	"context"

	"helpdesk/internal/auth"
)

// OAuthProvider is an external sign-in provider. It reports identity facts
// only; linking to an account and opening a session happen in the gateway.
type OAuthProvider interface {
	Name() string

	// AuthCodeURL is the login redirect for state. The provider derives
	// the PKCE challenge from verifier.
	AuthCodeURL(state, verifier string) string

	// ExchangeCode redeems the callback code with the verifier that
	// produced the challenge.
	ExchangeCode(ctx context.Context, code, verifier string) (*auth.Identity, error)
}

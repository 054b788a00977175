// Package google configures Google as an OpenID Connect sign-in provider.
package google

import (
	"context"
	"errors"
	"fmt"

	"helpdesk/internal/auth/provider"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const issuerURL = "https://accounts.google.com"

func New(ctx context.Context, clientID, clientSecret, redirectURL string) (*provider.OIDC, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	discovered, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("google: oidc discovery: %w", err)
	}

	return provider.NewOIDC(
		"google",
		&oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     discovered.Endpoint(),
			Scopes:       provider.Scopes,
		},
		discovered.Verifier(&oidc.Config{ClientID: clientID}),
	), nil
}

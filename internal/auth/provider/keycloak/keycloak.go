// Package keycloak configures a Keycloak realm as an OpenID Connect sign-in
// provider.
package keycloak

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"helpdesk/internal/auth/provider"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// New discovers the realm at issuer, e.g.
// http://keycloak:8080/realms/helpdesk. Keycloak is a public client here,
// so PKCE replaces the client secret.
//
// publicBaseURL is the browser-reachable Keycloak origin. The authorization
// endpoint is rewritten onto it while token exchange stays on the issuer.
func New(ctx context.Context, issuer, clientID, redirectURL, publicBaseURL string) (*provider.OIDC, error) {
	if issuer == "" || clientID == "" || redirectURL == "" || publicBaseURL == "" {
		return nil, errors.New("keycloak oauth config missing required fields")
	}

	realm, err := realmPath(issuer)
	if err != nil {
		return nil, err
	}

	discovered, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("keycloak: oidc discovery: %w", err)
	}

	endpoint := discovered.Endpoint()
	endpoint.AuthURL = authURL(publicBaseURL, realm)

	return provider.NewOIDC(
		"keycloak",
		&oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Endpoint:    endpoint,
			Scopes:      provider.Scopes,
		},
		discovered.Verifier(&oidc.Config{ClientID: clientID}),
	), nil
}

func authURL(publicBaseURL, realm string) string {
	return strings.TrimRight(publicBaseURL, "/") + realm + "/protocol/openid-connect/auth"
}

// realmPath extracts "/realms/<name>" from an issuer URL.
func realmPath(issuer string) (string, error) {
	u, err := url.Parse(issuer)
	if err != nil {
		return "", fmt.Errorf("keycloak issuer invalid: %w", err)
	}
	idx := strings.Index(u.Path, "/realms/")
	if idx < 0 || len(u.Path) == idx+len("/realms/") {
		return "", fmt.Errorf("keycloak issuer has no realm: %s", issuer)
	}
	return strings.TrimRight(u.Path[idx:], "/"), nil
}

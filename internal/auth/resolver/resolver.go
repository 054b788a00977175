// Package resolver links external sign-in identities to helpdesk
// principals, creating a principal on first sign-in.
package resolver

import (
	"context"

	"helpdesk/internal/auth"
)

// Resolver returns the principal id an external identity signs in as.
type Resolver interface {
	Resolve(ctx context.Context, identity *auth.Identity) (userID string, err error)
}

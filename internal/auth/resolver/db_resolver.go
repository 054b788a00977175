package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"helpdesk/internal/auth"
	"helpdesk/internal/db"
)

var (
	// ErrUnverifiedEmail is returned when an external identity would be
	// linked to an existing principal by an email the provider did not
	// verify.
	ErrUnverifiedEmail = errors.New("resolver: refusing to link unverified email")

	ErrIncompleteIdentity = errors.New("resolver: identity needs provider, subject and email")
)

// DBResolver maps identities onto auth_users through auth_identities.
// Each resolution runs in one transaction so a half-linked principal is
// never left behind.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(ctx context.Context, identity *auth.Identity) (string, error) {
	if identity == nil || identity.Provider == "" || identity.ProviderUserID == "" || identity.Email == "" {
		return "", ErrIncompleteIdentity
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("resolver: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	userID, err := resolve(ctx, tx, identity)
	if err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("resolver: commit: %w", err)
	}
	return userID, nil
}

func resolve(ctx context.Context, tx *sql.Tx, identity *auth.Identity) (string, error) {
	var userID string

	err := tx.QueryRowContext(ctx, `
		SELECT user_id::text
		FROM auth_identities
		WHERE provider = $1 AND provider_user_id = $2
	`, identity.Provider, identity.ProviderUserID).Scan(&userID)
	switch {
	case err == nil:
		return userID, nil
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("resolver: identity lookup: %w", err)
	}

	// a known email means an existing principal signing in with a new
	// provider; only a verified email may claim it
	err = tx.QueryRowContext(ctx, `
		SELECT id::text
		FROM auth_users
		WHERE LOWER(email) = LOWER($1)
		FOR UPDATE
	`, identity.Email).Scan(&userID)
	switch {
	case err == nil:
		if !identity.EmailVerified {
			return "", ErrUnverifiedEmail
		}
	case errors.Is(err, sql.ErrNoRows):
		// provider-verified emails count as confirmed
		err = tx.QueryRowContext(ctx, `
			INSERT INTO auth_users (email, email_confirmed_at)
			VALUES ($1, CASE WHEN $2 THEN NOW() ELSE NULL END)
			RETURNING id::text
		`, identity.Email, identity.EmailVerified).Scan(&userID)
		if err != nil {
			return "", fmt.Errorf("resolver: create principal: %w", err)
		}
	default:
		return "", fmt.Errorf("resolver: email lookup: %w", err)
	}

	// a concurrent first sign-in may have linked the identity already;
	// whichever mapping exists wins
	err = tx.QueryRowContext(ctx, `
		INSERT INTO auth_identities (user_id, provider, provider_user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider, provider_user_id)
		DO UPDATE SET updated_at = NOW()
		RETURNING user_id::text
	`, userID, identity.Provider, identity.ProviderUserID).Scan(&userID)
	if err != nil {
		return "", fmt.Errorf("resolver: link identity: %w", err)
	}
	return userID, nil
}

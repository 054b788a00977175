package gateway

import (
	"context"
	"errors"
	"io"

	"helpdesk/internal/auth/credentials"
	"helpdesk/internal/logger"
	"helpdesk/internal/session"
)

// Client is the gateway handle of one browser client. Its auth session is
// persisted by the backend under the client id, so it survives restarts of
// this process.
type Client struct {
	backend  *Backend
	clientID string
}

var _ Gateway = (*Client)(nil)

func (c *Client) ID() string {
	return c.clientID
}

func (c *Client) Ping(ctx context.Context) error {
	return c.backend.Ping(ctx)
}

// CurrentPrincipal returns the signed-in principal or nil. Sessions close to
// expiry are extended and announced as TOKEN_REFRESHED.
func (c *Client) CurrentPrincipal(ctx context.Context) (*Principal, error) {
	const op = "current_principal"
	b := c.backend

	s, err := b.sessions.Get(ctx, c.clientID)
	if err != nil {
		return nil, opError(op, err)
	}
	if s == nil {
		return nil, nil
	}

	now := b.now()
	if !now.Before(s.ExpiresAt) {
		_ = b.sessions.Delete(ctx, c.clientID)
		return nil, nil
	}

	account, err := b.accounts.Get(ctx, s.UserID)
	if errors.Is(err, credentials.ErrNotFound) {
		// principal was deleted underneath the session
		_ = b.sessions.Delete(ctx, c.clientID)
		return nil, nil
	}
	if err != nil {
		return nil, opError(op, err)
	}

	principal := &Principal{ID: account.ID, Email: account.Email}

	if s.NeedsRefresh(now, b.opts.RefreshWindow) {
		s.ExpiresAt = now.Add(b.opts.SessionTTL)
		err := b.sessions.Update(ctx, *s)
		switch {
		case errors.Is(err, session.ErrGone):
			// signed out while this probe was running
			return nil, nil
		case err != nil:
			logger.Warn("session refresh failed", map[string]any{
				"client_id": c.clientID,
				"error":     err.Error(),
			})
		default:
			b.publish(ctx, c.clientID, EventTokenRefreshed, principal)
		}
	}

	return principal, nil
}

func (c *Client) SubscribeAuthChanges(handler AuthHandler) (Subscription, error) {
	sub, err := c.backend.events.Subscribe(context.Background(), c.clientID, handler)
	if err != nil {
		return nil, opError("subscribe", err)
	}
	return sub, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Principal, error) {
	const op = "sign_in"

	account, err := c.backend.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return nil, opError(op, err)
	}

	principal := &Principal{ID: account.ID, Email: account.Email}
	if err := c.backend.openSession(ctx, c.clientID, principal); err != nil {
		return nil, opError(op, err)
	}
	return principal, nil
}

func (c *Client) ResendConfirmation(ctx context.Context, email string) error {
	const op = "resend_confirmation"

	account, err := c.backend.accounts.FindByEmail(ctx, email)
	if err != nil {
		return opError(op, err)
	}
	if account.Confirmed() {
		return opError(op, ErrAlreadyConfirmed)
	}
	return opError(op, c.backend.sendConfirmation(ctx, account))
}

func (c *Client) Register(ctx context.Context, email, password string, meta Metadata) (*Registration, error) {
	const op = "register"
	b := c.backend

	account, err := b.accounts.Register(ctx, email, password, credentials.Metadata{
		Name:         meta.Name,
		Organization: meta.Organization,
	}, !b.opts.RequireEmailConfirmation)
	if err != nil {
		return nil, opError(op, err)
	}

	principal := Principal{ID: account.ID, Email: account.Email}

	if b.opts.RequireEmailConfirmation {
		if err := b.sendConfirmation(ctx, account); err != nil {
			return nil, opError(op, err)
		}
		return &Registration{Principal: principal}, nil
	}

	if err := b.openSession(ctx, c.clientID, &principal); err != nil {
		return nil, opError(op, err)
	}
	return &Registration{Principal: principal, SessionActive: true}, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	if err := c.backend.sessions.Delete(ctx, c.clientID); err != nil {
		return opError("sign_out", err)
	}
	c.backend.publish(ctx, c.clientID, EventSignedOut, nil)
	return nil
}

func (c *Client) FetchProfile(ctx context.Context, id string) (*Profile, error) {
	p, err := c.backend.profiles.Fetch(ctx, id)
	if err != nil {
		return nil, opError("fetch_profile", err)
	}
	return p, nil
}

func (c *Client) InsertProfile(ctx context.Context, p Profile) error {
	return opError("insert_profile", c.backend.profiles.Insert(ctx, p))
}

func (c *Client) UpdateProfile(ctx context.Context, id string, u ProfileUpdate) error {
	return opError("update_profile", c.backend.profiles.Update(ctx, id, u))
}

func (c *Client) UploadObject(ctx context.Context, path string, r io.Reader) error {
	return opError("upload_object", c.backend.objects.Upload(ctx, path, r))
}

func (c *Client) PublicURL(path string) string {
	return c.backend.objects.PublicURL(path)
}

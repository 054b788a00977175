package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"helpdesk/internal/auth"
	"helpdesk/internal/auth/credentials"
	"helpdesk/internal/auth/resolver"
	"helpdesk/internal/db"
	"helpdesk/internal/logger"
	"helpdesk/internal/session"

	"github.com/redis/go-redis/v9"
)

// Options tune auth behaviour shared by every client.
type Options struct {
	// RequireEmailConfirmation withholds a session at registration until
	// the confirmation link is followed.
	RequireEmailConfirmation bool
	SessionTTL               time.Duration
	// RefreshWindow is how close to expiry a session must be before
	// CurrentPrincipal extends it.
	RefreshWindow time.Duration
	// ConfirmURL is the absolute URL of the confirmation endpoint; the
	// token is appended as a query parameter.
	ConfirmURL string
}

// Backend owns the shared connections. Clients are cheap views onto it.
type Backend struct {
	db            *db.DB
	redis         *redis.Client
	accounts      *credentials.Service
	resolver      resolver.Resolver
	sessions      session.Store
	profiles      *ProfileStore
	events        *Broker
	confirmations *ConfirmationStore
	objects       *ObjectStore
	mailer        Mailer
	opts          Options
	now           func() time.Time
}

func NewBackend(
	database *db.DB,
	rdb *redis.Client,
	objects *ObjectStore,
	mailer Mailer,
	opts Options,
) *Backend {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Backend{
		db:            database,
		redis:         rdb,
		accounts:      credentials.NewService(database),
		resolver:      resolver.NewDBResolver(database),
		sessions:      session.NewRedisStore(rdb),
		profiles:      NewProfileStore(database),
		events:        NewBroker(rdb),
		confirmations: NewConfirmationStore(rdb),
		objects:       objects,
		mailer:        mailer,
		opts:          opts,
		now:           time.Now,
	}
}

// Client returns the gateway handle for one browser client.
func (b *Backend) Client(clientID string) *Client {
	return &Client{backend: b, clientID: clientID}
}

// Ping reports whether both postgres and redis answer.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.Ping(ctx); err != nil {
		return &Error{Op: "ping", Err: fmt.Errorf("%w: database: %v", ErrUnreachable, err)}
	}
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return &Error{Op: "ping", Err: fmt.Errorf("%w: redis: %v", ErrUnreachable, err)}
	}
	return nil
}

// ConfirmEmail consumes a confirmation token, creates the profile from the
// registration metadata and signs the confirming client in.
func (b *Backend) ConfirmEmail(ctx context.Context, clientID, token string) (*Principal, error) {
	const op = "confirm_email"

	userID, err := b.confirmations.Consume(ctx, token)
	if err != nil {
		return nil, opError(op, err)
	}

	account, err := b.accounts.Confirm(ctx, userID)
	if err != nil {
		return nil, opError(op, err)
	}

	name := account.Metadata.Name
	if name == "" {
		name = auth.Identity{Email: account.Email}.DisplayName()
	}
	profile := Profile{ID: account.ID, Name: name, Email: account.Email}
	if account.Metadata.Organization != "" {
		org := account.Metadata.Organization
		profile.Organization = &org
	}
	if err := b.ensureProfile(ctx, profile); err != nil {
		return nil, opError(op, err)
	}

	principal := &Principal{ID: account.ID, Email: account.Email}
	if err := b.openSession(ctx, clientID, principal); err != nil {
		return nil, opError(op, err)
	}
	return principal, nil
}

// SignInWithIdentity signs a client in with an identity verified by an
// external OAuth provider.
func (b *Backend) SignInWithIdentity(ctx context.Context, clientID string, identity *auth.Identity) (*Principal, error) {
	const op = "sign_in_with_identity"

	userID, err := b.resolver.Resolve(ctx, identity)
	if err != nil {
		return nil, opError(op, err)
	}

	account, err := b.accounts.Get(ctx, userID)
	if err != nil {
		return nil, opError(op, err)
	}
	if !account.Confirmed() {
		return nil, opError(op, ErrEmailNotConfirmed)
	}

	if err := b.ensureProfile(ctx, Profile{
		ID:    account.ID,
		Name:  identity.DisplayName(),
		Email: account.Email,
	}); err != nil {
		return nil, opError(op, err)
	}

	principal := &Principal{ID: account.ID, Email: account.Email}
	if err := b.openSession(ctx, clientID, principal); err != nil {
		return nil, opError(op, err)
	}
	return principal, nil
}

func (b *Backend) ensureProfile(ctx context.Context, p Profile) error {
	_, err := b.profiles.Fetch(ctx, p.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return b.profiles.Insert(ctx, p)
}

// openSession replaces the client's auth session and announces the sign-in.
func (b *Backend) openSession(ctx context.Context, clientID string, principal *Principal) error {
	sessionID, err := session.GenerateID()
	if err != nil {
		return err
	}

	now := b.now()
	if err := b.sessions.Create(ctx, session.Session{
		SessionID: sessionID,
		ClientID:  clientID,
		UserID:    principal.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(b.opts.SessionTTL),
	}); err != nil {
		return err
	}

	b.publish(ctx, clientID, EventSignedIn, principal)
	return nil
}

// publish logs failures instead of returning them; the session change it
// announces has already happened.
func (b *Backend) publish(ctx context.Context, clientID string, event Event, principal *Principal) {
	if err := b.events.Publish(ctx, clientID, event, principal); err != nil {
		logger.Warn("auth event publish failed", map[string]any{
			"client_id": clientID,
			"event":     string(event),
			"error":     err.Error(),
		})
	}
}

func (b *Backend) sendConfirmation(ctx context.Context, account *credentials.Account) error {
	token, err := b.confirmations.Issue(ctx, account.ID)
	if err != nil {
		return err
	}
	link := b.opts.ConfirmURL + "?token=" + url.QueryEscape(token)
	return b.mailer.SendConfirmation(ctx, account.Email, link)
}

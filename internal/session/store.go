package session

import (
	"context"
	"time"
)

// Session is the gateway's record of a signed-in principal on one browser
// client. It stores identity pointers only; profile data lives in postgres.
type Session struct {
	SessionID string    `json:"session_id"`
	ClientID  string    `json:"client_id"`  // browser client that owns the session
	UserID    string    `json:"user_id"`    // references auth_users.id
	CreatedAt time.Time `json:"created_at"` // sign-in time
	ExpiresAt time.Time `json:"expires_at"` // sliding expiry, extended on refresh
}

// NeedsRefresh reports whether the session expires within window of now.
func (s Session) NeedsRefresh(now time.Time, window time.Duration) bool {
	return s.ExpiresAt.Sub(now) < window
}

// Store persists at most one session per browser client.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, clientID string) (*Session, error)
	Update(ctx context.Context, s Session) error
	Delete(ctx context.Context, clientID string) error
}

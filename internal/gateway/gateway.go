// Package gateway is the single handle through which the rest of the
// application reaches authentication, the relational store and object
// storage. Each browser client gets its own Client; all clients share one
// Backend.
package gateway

import (
	"context"
	"io"
)

// Principal is the authentication system's record of a signed-in actor.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is the application-level row keyed by principal id.
type Profile struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	AvatarURL    *string `json:"avatar_url"`
	Organization *string `json:"organization"`
	IsAdmin      bool    `json:"is_admin"`
}

// ProfileUpdate carries the fields to change; nil fields are left alone.
type ProfileUpdate struct {
	Name         *string `json:"name,omitempty"`
	AvatarURL    *string `json:"avatar_url,omitempty"`
	Organization *string `json:"organization,omitempty"`
}

func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.AvatarURL == nil && u.Organization == nil
}

// Metadata is attached to a registration and becomes the profile once the
// principal is confirmed.
type Metadata struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
}

// Registration is the outcome of Register. SessionActive is false when the
// principal must confirm their email before signing in.
type Registration struct {
	Principal     Principal
	SessionActive bool
}

// Event names an auth-state change delivered to subscribers.
type Event string

const (
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
)

// AuthHandler receives auth-state changes. principal is nil on sign-out.
type AuthHandler func(event Event, principal *Principal)

// Subscription is a live registration of an AuthHandler.
type Subscription interface {
	// Unsubscribe stops delivery. No handler call starts after it returns.
	Unsubscribe() error
}

// Gateway is the contract the session manager consumes.
type Gateway interface {
	Ping(ctx context.Context) error

	CurrentPrincipal(ctx context.Context) (*Principal, error)
	SubscribeAuthChanges(handler AuthHandler) (Subscription, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Principal, error)
	ResendConfirmation(ctx context.Context, email string) error
	Register(ctx context.Context, email, password string, meta Metadata) (*Registration, error)
	SignOut(ctx context.Context) error

	FetchProfile(ctx context.Context, id string) (*Profile, error)
	InsertProfile(ctx context.Context, p Profile) error
	UpdateProfile(ctx context.Context, id string, u ProfileUpdate) error

	UploadObject(ctx context.Context, path string, r io.Reader) error
	PublicURL(path string) string
}

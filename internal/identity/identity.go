package identity

import (
	"fmt"

	"helpdesk/internal/gateway"
)

// Status is the tri-state session status published by the Manager.
type Status int

const (
	// StatusUnknown holds until the first probe resolves.
	StatusUnknown Status = iota
	StatusAbsent
	StatusPresent
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusAbsent:
		return "resolved-absent"
	case StatusPresent:
		return "resolved-present"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Identity is the merged view of a principal and its profile.
type Identity struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	DisplayName  string  `json:"display_name"`
	AvatarURL    *string `json:"avatar_url"`
	Organization *string `json:"organization"`
	IsPrivileged bool    `json:"is_privileged"`
}

func newIdentity(p gateway.Principal, prof gateway.Profile) *Identity {
	return &Identity{
		ID:           p.ID,
		Email:        p.Email,
		DisplayName:  prof.Name,
		AvatarURL:    cloneString(prof.AvatarURL),
		Organization: cloneString(prof.Organization),
		IsPrivileged: prof.IsAdmin,
	}
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.AvatarURL = cloneString(i.AvatarURL)
	c.Organization = cloneString(i.Organization)
	return &c
}

// merged returns a copy with the non-nil fields of u applied.
func (i *Identity) merged(u gateway.ProfileUpdate) *Identity {
	c := i.clone()
	if u.Name != nil {
		c.DisplayName = *u.Name
	}
	if u.AvatarURL != nil {
		c.AvatarURL = cloneString(u.AvatarURL)
	}
	if u.Organization != nil {
		c.Organization = cloneString(u.Organization)
	}
	return c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// State is a snapshot of everything the Manager publishes.
type State struct {
	Identity       *Identity `json:"identity"`
	Status         Status    `json:"status"`
	Authenticating bool      `json:"authenticating"`
	Probing        bool      `json:"probing"`
	// ReachabilityError is set when the last probe could not reach the
	// backend.
	ReachabilityError string `json:"reachability_error,omitempty"`
}

// Signed reports a resolved identity; Identity is then never nil.
func (s State) Signed() bool {
	return s.Status == StatusPresent
}

func (s State) clone() State {
	s.Identity = s.Identity.clone()
	return s
}

// Result is the uniform outcome of every Manager operation.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

func ok() Result {
	return Result{Success: true}
}

func fail(msg string) Result {
	return Result{Error: msg}
}

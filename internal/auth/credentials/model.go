package credentials

import "time"

// Metadata is attached at registration and copied into the profile once
// the account is confirmed.
type Metadata struct {
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
}

// Account is the password principal as stored in auth_users.
type Account struct {
	ID          string
	Email       string
	ConfirmedAt *time.Time
	Metadata    Metadata
}

func (a Account) Confirmed() bool {
	return a.ConfirmedAt != nil
}

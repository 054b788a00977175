package auth

// Identity represents a normalized external authentication identity
// returned by an OAuth provider. It contains facts only, no decisions.
type Identity struct {
	Provider       string // e.g. "google", "keycloak"
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Email          string // email returned by provider
	EmailVerified  bool   // whether provider asserts email ownership
	Name           string // display name claim, may be empty
}

// DisplayName falls back to the local part of the email when the provider
// sent no name claim.
func (i Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	for n := 0; n < len(i.Email); n++ {
		if i.Email[n] == '@' {
			return i.Email[:n]
		}
	}
	return i.Email
}

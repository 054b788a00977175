package session

import (
	"encoding/base64"
	"errors"

	"github.com/gorilla/securecookie"
)

// idBytes gives 256 bits of entropy.
const idBytes = 32

// GenerateID returns a random URL-safe identifier. It names auth sessions,
// browser clients, confirmation tokens and OAuth states.
func GenerateID() (string, error) {
	b := securecookie.GenerateRandomKey(idBytes)
	if b == nil {
		return "", errors.New("session: random source unavailable")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

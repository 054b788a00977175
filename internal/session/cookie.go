package session

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	CookieName = "__Host-helpdesk"

	clientField = "client"
)

// ClientCookie signs a browser client id into the __Host-helpdesk cookie.
// __Host- cookies must be Path=/ with no Domain, so neither is configurable.
type ClientCookie struct {
	Codec  *securecookie.SecureCookie
	Secure bool
}

// Write issues the cookie for id, valid until expiresAt.
func (c ClientCookie) Write(w http.ResponseWriter, id string, expiresAt time.Time) error {
	encoded, err := c.Codec.Encode(CookieName, map[string]string{clientField: id})
	if err != nil {
		return fmt.Errorf("session: encode client cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    encoded,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Read returns the client id carried by the request. A missing, expired or
// tampered cookie yields an error.
func (c ClientCookie) Read(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}

	var value map[string]string
	if err := c.Codec.Decode(CookieName, cookie.Value, &value); err != nil {
		return "", err
	}
	id := value[clientField]
	if id == "" {
		return "", fmt.Errorf("session: client cookie carries no id")
	}
	return id, nil
}

package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"helpdesk/internal/session"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
)

const (
	flowCookieName = "__Host-oauth"
	flowTTL        = 5 * time.Minute
)

// flow is what the login redirect remembers for its callback.
type flow struct {
	Provider  string    `json:"provider"`
	State     string    `json:"state"`
	Verifier  string    `json:"verifier"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) startFlow(c *gin.Context, provider string) (flow, error) {
	state, err := session.GenerateID()
	if err != nil {
		return flow{}, err
	}
	f := flow{
		Provider:  provider,
		State:     state,
		Verifier:  oauth2.GenerateVerifier(),
		ExpiresAt: h.now().Add(flowTTL),
	}

	encoded, err := h.cookies.Encode(flowCookieName, f)
	if err != nil {
		return flow{}, err
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     flowCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(flowTTL.Seconds()),
	})
	return f, nil
}

// takeFlow reads and clears the flow cookie. It succeeds only when the
// callback belongs to the same provider and carries the same state.
func (h *Handler) takeFlow(c *gin.Context, provider string) (flow, bool) {
	cookie, err := c.Request.Cookie(flowCookieName)
	if err != nil {
		return flow{}, false
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     flowCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})

	var f flow
	if err := h.cookies.Decode(flowCookieName, cookie.Value, &f); err != nil {
		return flow{}, false
	}

	state := c.Query("state")
	if state == "" || subtle.ConstantTimeCompare([]byte(f.State), []byte(state)) != 1 || f.Provider != provider {
		return flow{}, false
	}
	if h.now().After(f.ExpiresAt) {
		return flow{}, false
	}
	return f, true
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) SignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	m, ok := manager(c)
	if !ok {
		return
	}

	res := m.SignIn(c.Request.Context(), req.Email, req.Password)
	c.JSON(status(res, http.StatusUnauthorized), res)
}

func (h *Handler) SignOut(c *gin.Context) {
	m, ok := manager(c)
	if !ok {
		return
	}

	res := m.SignOut(c.Request.Context())
	c.JSON(status(res, http.StatusBadGateway), res)
}

// Session reports the published session state of the requesting client.
func (h *Handler) Session(c *gin.Context) {
	m, ok := manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.State())
}

// Retry re-runs the session probe. A form post carrying a redirect field
// comes from the wait placeholder and is sent back to where it came from.
func (h *Handler) Retry(c *gin.Context) {
	m, ok := manager(c)
	if !ok {
		return
	}

	res := m.Retry(c.Request.Context())

	if target, ok := safeRedirect(c.PostForm("redirect")); ok {
		c.Redirect(http.StatusSeeOther, target)
		return
	}
	c.JSON(status(res, http.StatusServiceUnavailable), res)
}

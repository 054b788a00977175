package handler

import (
	"errors"
	"net/http"
	"strings"

	"helpdesk/internal/gateway"
	"helpdesk/internal/logger"

	"github.com/gin-gonic/gin"
)

type signUpRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	Organization string `json:"organization"`
}

func (h *Handler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.Organization = strings.TrimSpace(req.Organization)
	if req.Email == "" || req.Password == "" || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMissingFields.Error()})
		return
	}

	m, ok := manager(c)
	if !ok {
		return
	}

	res := m.SignUp(c.Request.Context(), req.Email, req.Password, req.Name, req.Organization)
	if !res.Success {
		code := http.StatusBadRequest
		if res.Error == gateway.ErrAlreadyRegistered.Error() {
			code = http.StatusConflict
		}
		c.JSON(code, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// Confirm follows the emailed confirmation link. The confirming browser is
// signed in and sent home.
func (h *Handler) Confirm(c *gin.Context) {
	cl, ok := client(c)
	if !ok {
		return
	}

	principal, err := h.accounts.ConfirmEmail(c.Request.Context(), cl.ID, c.Query("token"))
	if err != nil {
		logger.Warn("email confirmation failed", map[string]any{
			"client_id": cl.ID,
			"error":     err.Error(),
		})
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, gateway.ErrInvalidToken), errors.Is(err, gateway.ErrAlreadyConfirmed):
			code = http.StatusBadRequest
		case errors.Is(err, gateway.ErrNotFound):
			code = http.StatusNotFound
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	cl.Manager.Retry(c.Request.Context())

	logger.Info("email confirmed", map[string]any{
		"user_id":   principal.ID,
		"client_id": cl.ID,
	})
	c.Redirect(http.StatusFound, h.home)
}

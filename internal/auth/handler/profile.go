package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"helpdesk/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

const maxAvatarBytes = 5 << 20

var avatarExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

type profileRequest struct {
	Name         *string `json:"name"`
	Organization *string `json:"organization"`
}

func (h *Handler) Profile(c *gin.Context) {
	m, ok := manager(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, m.State().Identity)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	u := gateway.ProfileUpdate{Name: req.Name, Organization: req.Organization}
	if u.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name must not be empty"})
		return
	}

	m, ok := manager(c)
	if !ok {
		return
	}

	res := m.UpdateProfile(c.Request.Context(), u)
	c.JSON(status(res, http.StatusBadGateway), res)
}

func (h *Handler) UploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxAvatarBytes)

	header, err := c.FormFile("avatar")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar file is required"})
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), "."))
	if !lo.Contains(avatarExtensions, ext) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "avatar must be one of " + strings.Join(avatarExtensions, ", "),
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable avatar file"})
		return
	}
	defer file.Close()

	m, ok := manager(c)
	if !ok {
		return
	}

	res := m.UploadAvatar(c.Request.Context(), header.Filename, file)
	c.JSON(status(res, http.StatusBadGateway), res)
}

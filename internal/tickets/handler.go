package tickets

import (
	"errors"
	"net/http"
	"time"

	"helpdesk/internal/logger"
	"helpdesk/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the ticket API on a privately guarded group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/tickets", h.list)
	r.POST("/tickets", h.create)
	r.GET("/tickets/:id", h.get)
	r.PUT("/tickets/:id", h.update)
	r.PATCH("/tickets/:id", h.patch)
	r.DELETE("/tickets/:id", h.delete)
}

// currentUser is the id of the signed-in identity the guard let through.
func currentUser(c *gin.Context) (string, bool) {
	m, ok := middleware.ManagerFromContext(c.Request.Context())
	if ok {
		if st := m.State(); st.Signed() {
			return st.Identity.ID, true
		}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	return "", false
}

func (h *Handler) list(c *gin.Context) {
	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be an RFC 3339 timestamp"})
			return
		}
		before = &t
	}

	page, err := h.repo.List(c.Request.Context(), before)
	if err != nil {
		respondError(c, "list tickets", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) get(c *gin.Context) {
	t, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get ticket", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) create(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	t, err := h.repo.Create(c.Request.Context(), userID, in)
	if err != nil {
		respondError(c, "create ticket", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) update(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	t, err := h.repo.Update(c.Request.Context(), c.Param("id"), userID, in)
	if err != nil {
		respondError(c, "update ticket", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) patch(c *gin.Context) {
	var p Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	t, err := h.repo.Patch(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		respondError(c, "patch ticket", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "delete ticket", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr),
		errors.Is(err, ErrScheduledInPast),
		errors.Is(err, ErrDescriptionLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrCustomerNotFound):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.Error(op+" failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

package customers

import (
	"errors"
	"net/http"

	"helpdesk/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes mounts the customer API on a privately guarded group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/customers", h.list)
	r.POST("/customers", h.create)
	r.GET("/customers/:id", h.get)
	r.PUT("/customers/:id", h.update)
	r.DELETE("/customers/:id", h.delete)
}

// summary is the row shown in customer pickers and the customer list.
type summary struct {
	ID          string `json:"id"`
	FantasyName string `json:"fantasy_name"`
	CNPJ        string `json:"cnpj"`
	Address     string `json:"address"`
}

func toSummary(c Customer, _ int) summary {
	return summary{ID: c.ID, FantasyName: c.FantasyName, CNPJ: c.CNPJ, Address: c.Address}
}

func (h *Handler) list(c *gin.Context) {
	list, err := h.repo.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, "list customers", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": lo.Map(list, toSummary)})
}

func (h *Handler) get(c *gin.Context) {
	customer, err := h.repo.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "get customer", err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *Handler) create(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	customer, err := h.repo.Create(c.Request.Context(), in)
	if err != nil {
		respondError(c, "create customer", err)
		return
	}
	c.JSON(http.StatusCreated, customer)
}

func (h *Handler) update(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	customer, err := h.repo.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		respondError(c, "update customer", err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

func (h *Handler) delete(c *gin.Context) {
	if err := h.repo.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, "delete customer", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func respondError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrDuplicateCNPJ):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(op+" failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

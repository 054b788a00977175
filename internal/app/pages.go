package app

import (
	"errors"
	"net/http"

	"helpdesk/internal/customers"
	"helpdesk/internal/identity"
	"helpdesk/internal/logger"
	"helpdesk/internal/middleware"
	"helpdesk/internal/tickets"

	"github.com/gin-gonic/gin"
)

// pages serves the JSON page models the browser front end renders.
type pages struct {
	providers func() []string
	customers *customers.Repository
	tickets   *tickets.Repository
}

type ticketForm struct {
	Customers  []customers.Customer `json:"customers"`
	Subjects   []tickets.Subject    `json:"subjects"`
	Statuses   []tickets.Status     `json:"statuses"`
	Priorities []tickets.Priority   `json:"priorities"`
	Ticket     *tickets.Ticket      `json:"ticket,omitempty"`
}

func (p *pages) registerPublic(r gin.IRoutes) {
	r.GET("/", p.signIn)
	r.GET("/register", p.register)
}

func (p *pages) registerPrivate(r gin.IRoutes) {
	r.GET("/dashboard", p.dashboard)
	r.GET("/profile", p.profile)
	r.GET("/customers", p.customerList)
	r.GET("/new", p.newTicket)
	r.GET("/new/:id", p.editTicket)
}

func currentIdentity(c *gin.Context) *identity.Identity {
	m, ok := middleware.ManagerFromContext(c.Request.Context())
	if !ok {
		return nil
	}
	return m.State().Identity
}

func (p *pages) signIn(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page":      "signin",
		"providers": p.providers(),
	})
}

func (p *pages) register(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"page": "register"})
}

func (p *pages) dashboard(c *gin.Context) {
	page, err := p.tickets.List(c.Request.Context(), nil)
	if err != nil {
		pageError(c, "dashboard", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":     "dashboard",
		"identity": currentIdentity(c),
		"tickets":  page,
	})
}

func (p *pages) profile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"page":     "profile",
		"identity": currentIdentity(c),
	})
}

func (p *pages) customerList(c *gin.Context) {
	list, err := p.customers.ListActive(c.Request.Context())
	if err != nil {
		pageError(c, "customers", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"page":      "customers",
		"customers": list,
	})
}

func (p *pages) form(c *gin.Context) (*ticketForm, bool) {
	list, err := p.customers.ListActive(c.Request.Context())
	if err != nil {
		pageError(c, "ticket form", err)
		return nil, false
	}
	return &ticketForm{
		Customers:  list,
		Subjects:   tickets.Subjects,
		Statuses:   tickets.Statuses,
		Priorities: tickets.Priorities,
	}, true
}

func (p *pages) newTicket(c *gin.Context) {
	form, ok := p.form(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"page": "new", "form": form})
}

func (p *pages) editTicket(c *gin.Context) {
	t, err := p.tickets.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, tickets.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		pageError(c, "edit ticket", err)
		return
	}

	form, ok := p.form(c)
	if !ok {
		return
	}
	form.Ticket = t
	c.JSON(http.StatusOK, gin.H{"page": "edit", "form": form})
}

func pageError(c *gin.Context, page string, err error) {
	logger.Error("page model failed", map[string]any{
		"page":  page,
		"error": err.Error(),
	})
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

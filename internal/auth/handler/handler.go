package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"helpdesk/internal/auth"
	"helpdesk/internal/auth/provider"
	"helpdesk/internal/clients"
	"helpdesk/internal/gateway"
	"helpdesk/internal/identity"
	"helpdesk/internal/logger"
	"helpdesk/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
)

// Accounts is the part of the shared backend that acts on behalf of a
// client outside the per-client gateway contract.
type Accounts interface {
	ConfirmEmail(ctx context.Context, clientID, token string) (*gateway.Principal, error)
	SignInWithIdentity(ctx context.Context, clientID string, identity *auth.Identity) (*gateway.Principal, error)
}

type Options struct {
	// Secure marks the OAuth flow cookie Secure.
	Secure bool
	// SignInPath and HomePath are where the browser lands after an auth
	// redirect fails or succeeds.
	SignInPath string
	HomePath   string
	Now        func() time.Time
}

type Handler struct {
	providers *provider.Registry
	accounts  Accounts
	cookies   *securecookie.SecureCookie
	secure    bool
	signIn    string
	home      string
	now       func() time.Time
}

func NewHandler(
	registry *provider.Registry,
	accounts Accounts,
	cookies *securecookie.SecureCookie,
	opts Options,
) *Handler {
	if opts.SignInPath == "" {
		opts.SignInPath = "/"
	}
	if opts.HomePath == "" {
		opts.HomePath = "/dashboard"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		providers: registry,
		accounts:  accounts,
		cookies:   cookies,
		secure:    opts.Secure,
		signIn:    opts.SignInPath,
		home:      opts.HomePath,
		now:       opts.Now,
	}
}

// RegisterRoutes mounts the auth endpoints. They need the client
// middleware but no route guard.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/auth/signin", h.SignIn)
	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/signout", h.SignOut)
	r.GET("/auth/confirm", h.Confirm)
	r.GET("/auth/session", h.Session)
	r.POST("/session/retry", h.Retry)

	r.GET("/oauth/login/:provider", h.login)
	r.GET("/oauth/callback/:provider", h.callback)
}

// RegisterProfileRoutes mounts the profile API on a privately guarded group.
func (h *Handler) RegisterProfileRoutes(r gin.IRoutes) {
	r.GET("/profile", h.Profile)
	r.PATCH("/profile", h.UpdateProfile)
	r.POST("/profile/avatar", h.UploadAvatar)
}

// Providers lists the OAuth providers offered on the sign-in page.
func (h *Handler) Providers() []string {
	return h.providers.Names()
}

func manager(c *gin.Context) (*identity.Manager, bool) {
	m, ok := middleware.ManagerFromContext(c.Request.Context())
	if !ok {
		logger.Error("request reached auth handler without a client", map[string]any{
			"path": c.Request.URL.Path,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "client not resolved"})
	}
	return m, ok
}

func client(c *gin.Context) (*clients.Client, bool) {
	cl, ok := middleware.ClientFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "client not resolved"})
	}
	return cl, ok
}

func (h *Handler) login(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	f, err := h.startFlow(c, p.Name())
	if err != nil {
		logger.Error("failed to start oauth flow", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sign in"})
		return
	}

	c.Redirect(http.StatusFound, p.AuthCodeURL(f.State, f.Verifier))
}

func (h *Handler) callback(c *gin.Context) {
	providerName := c.Param("provider")

	p, err := h.providers.Get(providerName)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "unknown oauth provider",
		})
		return
	}

	f, ok := h.takeFlow(c, p.Name())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "invalid state",
		})
		return
	}

	// the provider declined, e.g. the user cancelled consent
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oidc callback returned error", map[string]any{
			"provider": providerName,
			"error":    errParam,
			"desc":     c.Query("error_description"),
		})
		c.Redirect(http.StatusFound, h.signIn)
		return
	}

	code := c.Query("code")
	if code == "" {
		logger.Error("oidc callback missing code and error", map[string]any{
			"provider": providerName,
		})
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	cl, ok := client(c)
	if !ok {
		return
	}

	ident, err := p.ExchangeCode(c.Request.Context(), code, f.Verifier)
	if err != nil {
		logger.Warn("oauth code exchange failed", map[string]any{
			"provider": providerName,
			"error":    err.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "authentication failed",
		})
		return
	}

	principal, err := h.accounts.SignInWithIdentity(c.Request.Context(), cl.ID, ident)
	if err != nil {
		logger.Warn("failed to sign in external identity", map[string]any{
			"provider":  providerName,
			"client_id": cl.ID,
			"error":     err.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": err.Error(),
		})
		return
	}

	// settle the identity before the redirect so the guard allows it
	cl.Manager.Retry(c.Request.Context())

	logger.Info("oauth sign in", map[string]any{
		"provider":  providerName,
		"user_id":   principal.ID,
		"client_id": cl.ID,
		"ip":        c.ClientIP(),
	})

	c.Redirect(http.StatusFound, h.home)
}

// safeRedirect accepts only same-origin absolute paths.
func safeRedirect(target string) (string, bool) {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return "", false
	}
	return target, true
}

func status(res identity.Result, failure int) int {
	if res.Success {
		return http.StatusOK
	}
	return failure
}

var errMissingFields = errors.New("missing required fields")

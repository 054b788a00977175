package app

import (
	"context"
	"net/http"
	"strings"

	"helpdesk/internal/auth/handler"
	"helpdesk/internal/auth/provider"
	"helpdesk/internal/auth/provider/google"
	"helpdesk/internal/auth/provider/keycloak"
	"helpdesk/internal/clients"
	"helpdesk/internal/config"
	"helpdesk/internal/customers"
	"helpdesk/internal/gateway"
	"helpdesk/internal/guard"
	"helpdesk/internal/logger"
	"helpdesk/internal/middleware"
	"helpdesk/internal/tickets"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
)

func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	var list []provider.OAuthProvider

	if cfg.GoogleEnabled() {
		p, err := google.New(
			ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	if cfg.KeycloakEnabled() {
		p, err := keycloak.New(
			ctx,
			cfg.KeycloakIssuer,
			cfg.KeycloakClientID,
			cfg.KeycloakRedirectURL,
			cfg.KeycloakPublicBaseURL,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}

	registry := provider.NewRegistry(list...)
	logger.Info("oauth providers configured", map[string]any{
		"providers": registry.Names(),
	})
	return registry, nil
}

func setupHTTP(ctx context.Context, cfg config.Config) (*gin.Engine, func() error, error) {

	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	// ----------------------------
	// Dependencies
	// ----------------------------

	storageFS := afero.NewBasePathFs(afero.NewOsFs(), cfg.StorageRoot)
	objects := gateway.NewObjectStore(storageFS, cfg.StoragePublicURL)

	backend := gateway.NewBackend(
		infra.DB,
		infra.Redis.Client,
		objects,
		gateway.LogMailer{},
		gateway.Options{
			RequireEmailConfirmation: cfg.RequireEmailConfirmation,
			SessionTTL:               cfg.AuthSessionTTL,
			RefreshWindow:            cfg.AuthRefreshWindow,
			ConfirmURL:               cfg.PublicBaseURL + "/auth/confirm",
		},
	)

	providers, err := setupProviders(ctx, cfg)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	secure := strings.HasPrefix(cfg.PublicBaseURL, "https://")

	codec, err := clients.NewCodec([]byte(cfg.CookieHashKey), []byte(cfg.CookieBlockKey))
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}

	registry, err := clients.New(
		func(id string) gateway.Gateway { return backend.Client(id) },
		clients.Options{
			Codec:             codec,
			Secure:            secure,
			IdleTTL:           cfg.ClientIdleTTL,
			ProbeTimeout:      cfg.BootstrapTimeout,
			GuardWaitTimeout:  cfg.GuardWaitTimeout,
			CheckReachability: true,
		},
	)
	if err != nil {
		_ = infra.Close()
		return nil, nil, err
	}
	go registry.Run(ctx)

	authHandler := handler.NewHandler(providers, backend, codec, handler.Options{
		Secure:     secure,
		SignInPath: "/",
		HomePath:   "/dashboard",
	})

	customerRepo := customers.NewRepository(infra.DB)
	ticketRepo := tickets.NewRepository(infra.DB)

	pageModels := &pages{
		providers: authHandler.Providers,
		customers: customerRepo,
		tickets:   ticketRepo,
	}

	// ----------------------------
	// Router
	// ----------------------------

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.GinRequestLog())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.StaticFS("/storage", afero.NewHttpFs(storageFS).Dir("/"))

	// every route below belongs to a browser client
	web := router.Group("/")
	web.Use(middleware.GinAttachClient(middleware.NewClientMiddleware(registry)))

	// ----------------------------
	// Auth Routes
	// ----------------------------

	authHandler.RegisterRoutes(web)
	web.GET("/session/events", guard.Events(middleware.GuardLookup))

	// ----------------------------
	// Public Pages
	// ----------------------------

	public := web.Group("/")
	public.Use(guard.RequirePublic(middleware.GuardLookup, "/dashboard"))
	pageModels.registerPublic(public)

	// ----------------------------
	// Private Pages
	// ----------------------------

	private := web.Group("/")
	private.Use(guard.RequirePrivate(middleware.GuardLookup, "/"))
	pageModels.registerPrivate(private)

	// ----------------------------
	// Private API
	// ----------------------------

	api := web.Group("/api")
	api.Use(guard.RequirePrivateAPI(middleware.GuardLookup))

	authHandler.RegisterProfileRoutes(api)
	customers.NewHandler(customerRepo).RegisterRoutes(api)
	tickets.NewHandler(ticketRepo).RegisterRoutes(api)

	// ----------------------------
	// Cleanup
	// ----------------------------

	return router, func() error {
		_ = registry.Close()
		return infra.Close()
	}, nil
}

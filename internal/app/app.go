// Package app assembles the helpdesk server from configuration.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"helpdesk/internal/config"
	"helpdesk/internal/logger"
)

type App struct {
	httpServer *http.Server
	cleanup    func() error

	// stopStreams cancels the base context every request derives from.
	stopStreams context.CancelFunc
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	router, cleanup, err := setupHTTP(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newApp(":"+cfg.AppPort, router, cleanup), nil
}

func newApp(addr string, handler http.Handler, cleanup func() error) *App {
	base, cancel := context.WithCancel(context.Background())

	// no write timeout: /session/events streams for as long as the page is open
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return base },
	}

	return &App{
		httpServer:  server,
		cleanup:     cleanup,
		stopStreams: cancel,
	}
}

// Run serves until Shutdown is called, which is not an error.
func (a *App) Run() error {
	return serveResult(a.httpServer.ListenAndServe())
}

func serveResult(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown ends open event streams, drains in-flight requests, then
// releases every browser client and closes the database and redis.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopStreams()

	shutdownErr := a.httpServer.Shutdown(ctx)
	if shutdownErr != nil {
		logger.Warn("http shutdown incomplete", map[string]any{
			"error": shutdownErr.Error(),
		})
	}
	if a.cleanup != nil {
		if err := a.cleanup(); err != nil {
			return err
		}
	}
	return shutdownErr
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helpdesk/internal/app"
	"helpdesk/internal/config"
	"helpdesk/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Fatal("helpdesk exited", map[string]any{
			"error": err.Error(),
		})
	}
	logger.Info("helpdesk stopped cleanly", nil)
}

func run(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- application.Run()
	}()

	logger.Info("helpdesk started", map[string]any{
		"port":            cfg.AppPort,
		"public_base_url": cfg.PublicBaseURL,
		"google":          cfg.GoogleEnabled(),
		"keycloak":        cfg.KeycloakEnabled(),
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received", nil)
	case runErr = <-serveErr:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return runErr
}

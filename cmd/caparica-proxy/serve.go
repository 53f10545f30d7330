package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"caparica-client/config"
	"caparica-client/internal/app"
	"caparica-client/pkg/logger"

	"github.com/choria-io/fisk"
)

func runServe(_ *fisk.ParseContext) error {
	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("upstream", cfg.Upstream.URL).
		Msg("Starting Caparica signing proxy")

	signing, err := app.NewSigning(context.Background(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize request signer: %w", err)
	}
	defer signing.Close()

	reg, m := app.NewRegistry()
	srv, err := app.NewServer(cfg, signing, reg, m, log)
	if err != nil {
		return fmt.Errorf("failed to initialize proxy: %w", err)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

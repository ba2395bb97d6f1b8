// Package hub is the main orchestrator that ties all server components together.
package hub

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/chatwire/chatwire/internal/api"
	"github.com/chatwire/chatwire/internal/auth"
	"github.com/chatwire/chatwire/internal/config"
	"github.com/chatwire/chatwire/internal/router"
	"github.com/chatwire/chatwire/internal/store"
)

// Hub is the main chat server process.
type Hub struct {
	cfg          *config.Config
	store        store.Store
	authProvider auth.Provider
	router       *router.Router
	api          *api.Server
	logger       *slog.Logger
}

// New creates a new hub from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Hub, error) {
	// Initialize storage.
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	// Create auth provider based on config.
	authProvider, err := auth.NewProvider(cfg.Auth, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init auth provider: %w", err)
	}

	// Registration and login only exist with the builtin provider.
	var loginProvider auth.LoginProvider
	if lp, ok := authProvider.(auth.LoginProvider); ok {
		loginProvider = lp
	}

	// Initialize router.
	rt := router.New(db, authProvider, logger, router.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		HistoryLimit:    cfg.Chat.HistoryLimit,
		MaxMessageBytes: cfg.Chat.MaxMessageBytes,
		MaxConnsPerUser: cfg.Chat.MaxConnsPerUser,
	})

	// Initialize API server.
	apiSrv := api.NewServer(db, authProvider, loginProvider, rt, cfg, logger)

	h := &Hub{
		cfg:          cfg,
		store:        db,
		authProvider: authProvider,
		router:       rt,
		api:          apiSrv,
		logger:       logger.With("component", "hub"),
	}

	// Startup validation warnings (only for builtin provider).
	if authProvider.Name() == "builtin" && len(cfg.Auth.JWTSecret) < 32 {
		logger.Warn("JWT secret is shorter than 32 characters — use a stronger secret in production")
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			logger.Warn("CORS allowed_origins contains wildcard '*' — restrict to specific origins in production")
			break
		}
	}

	return h, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (h *Hub) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.cfg.Server.Addr,
		Handler:           h.api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start idle connection reaper.
	h.router.StartIdleReaper(ctx, h.cfg.Chat.IdleTimeout.Duration)

	// Start rate limiter cleanup tasks.
	h.api.StartBackgroundTasks(ctx)

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("server listening", "addr", h.cfg.Server.Addr)
		if h.cfg.Server.TLSCert != "" && h.cfg.Server.TLSKey != "" {
			errCh <- srv.ListenAndServeTLS(h.cfg.Server.TLSCert, h.cfg.Server.TLSKey)
		} else {
			h.logger.Warn("TLS not configured, running without encryption (development only)")
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		} else {
			h.logger.Info("http server stopped gracefully")
		}

		h.logger.Info("closing store")
		_ = h.store.Close()
		h.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		_ = h.store.Close()
		return err
	}
}

// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-mfa.
//
// go-mfa is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-mfa/pkg/logging"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
	"github.com/jeremyhahn/go-mfa/pkg/ratelimit"
)

// Server represents the REST API server.
type Server struct {
	server        *http.Server
	handlers      *HandlerContext
	port          int
	tlsConfig     *tls.Config
	authenticator *Authenticator
	internalToken string
	limiter       *ratelimit.Limiter
	logger        *logging.Logger
}

// Config holds the REST server configuration.
type Config struct {
	// Port is the HTTP port to listen on (default: 8443)
	Port int

	// Service is the MFA service the handlers delegate to (required)
	Service *mfa.Service

	// JWTSecret is the HS256 secret used to validate caller tokens (required)
	JWTSecret []byte

	// JWTIssuer is the expected token issuer (optional)
	JWTIssuer string

	// InternalToken guards the /internal/login endpoints. When empty those
	// endpoints are not mounted.
	InternalToken string

	// Version is the API version string
	Version string

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// RateLimit configures per-client request limiting (optional)
	RateLimit *ratelimit.Config

	// Logger is the structured logger (optional, defaults to logging.DefaultLogger)
	Logger *logging.Logger

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// IdleTimeout is the maximum amount of time to wait for the next request
	IdleTimeout time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logging.DefaultLogger()
	}

	authenticator, err := NewAuthenticator(&AuthenticatorConfig{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
	})
	if err != nil {
		return nil, err
	}

	server := &Server{
		handlers:      NewHandlerContext(cfg.Service, log, cfg.Version),
		port:          cfg.Port,
		tlsConfig:     cfg.TLSConfig,
		authenticator: authenticator,
		internalToken: cfg.InternalToken,
		limiter:       ratelimit.New(cfg.RateLimit),
		logger:        log,
	}

	router := server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Apply global middleware
	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())

	// Health endpoint (no auth required)
	r.Get("/health", s.handlers.HealthHandler)
	r.Head("/health", s.handlers.HealthHandler)

	// Self-service enrollment and method management
	r.Route("/auth/mfa", func(r chi.Router) {
		r.Use(ratelimit.Middleware(s.limiter))
		r.Use(s.AuthenticationMiddleware())

		r.Get("/methods", s.handlers.ListMethodsHandler)

		r.Post("/totp/setup", s.handlers.TOTPSetupHandler)
		r.Post("/totp/confirm", s.handlers.TOTPConfirmHandler)
		r.Delete("/totp/{methodId}", s.handlers.TOTPDeleteHandler)

		r.Post("/webauthn/registration/options", s.handlers.WebAuthnRegistrationOptionsHandler)
		r.Post("/webauthn/registration/verify", s.handlers.WebAuthnRegistrationVerifyHandler)
		r.Delete("/webauthn/credentials/{credentialId}", s.handlers.WebAuthnCredentialDeleteHandler)
	})

	// Login challenge endpoints consumed by the login route.
	// Mounted only when a shared internal token is configured.
	if s.internalToken != "" {
		r.Route("/internal/login", func(r chi.Router) {
			r.Use(ratelimit.Middleware(s.limiter))
			r.Use(s.InternalAuthMiddleware())

			r.Post("/challenges", s.handlers.LoginChallengeHandler)
			r.Post("/challenges/{challengeId}/totp", s.handlers.LoginTOTPVerifyHandler)
			r.Post("/challenges/{challengeId}/webauthn", s.handlers.LoginWebAuthnVerifyHandler)
		})
	}

	return r
}

// Handler returns the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", "port", s.port)

		if err := s.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTPS server: %w", err)
		}
	} else {
		s.logger.Info("Starting HTTP server", "port", s.port)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Errorf("failed to shutdown server: %v", err)
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.port
}

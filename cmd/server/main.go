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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeremyhahn/go-mfa/internal/config"
	"github.com/jeremyhahn/go-mfa/internal/rest"
	"github.com/jeremyhahn/go-mfa/pkg/audit"
	"github.com/jeremyhahn/go-mfa/pkg/datakey"
	"github.com/jeremyhahn/go-mfa/pkg/fieldcrypt"
	"github.com/jeremyhahn/go-mfa/pkg/logging"
	"github.com/jeremyhahn/go-mfa/pkg/mfa"
	"github.com/jeremyhahn/go-mfa/pkg/storage/postgres"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/mfa/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("go-mfa server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("MFA_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	slog.Info("Starting MFA server",
		"config", *configPath,
		"version", version)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Debug())

	// Wire up the persistence layer
	var (
		methodStore     mfa.MethodStore
		secretStore     mfa.SecretStore
		credentialStore mfa.CredentialStore
		challengeStore  mfa.ChallengeStore
		auditSink       audit.Sink
	)
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(cfg.Database.DSN)
		if err != nil {
			slog.Error("Failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer db.Close()

		if cfg.Database.Migrate {
			if err := postgres.Migrate(context.Background(), db); err != nil {
				slog.Error("Failed to run migrations", slog.Any("error", err))
				os.Exit(1)
			}
			slog.Info("Migrations applied")
		}

		methodStore = postgres.NewMethodStore(db)
		secretStore = postgres.NewSecretStore(db)
		credentialStore = postgres.NewCredentialStore(db)
		challengeStore = postgres.NewChallengeStore(db)
		auditSink = postgres.NewAuditSink(db)
	} else {
		slog.Warn("No database DSN configured, using in-memory stores")
		methodStore = mfa.NewMemoryMethodStore()
		secretStore = mfa.NewMemorySecretStore()
		credentialStore = mfa.NewMemoryCredentialStore()
		challengeStore = mfa.NewMemoryChallengeStore()
		auditSink = audit.NewWriterSink(os.Stdout)
	}

	// Key provider and field encryption
	keyProvider, err := datakey.NewProvider(cfg.KMSConfig(), logger)
	if err != nil {
		slog.Error("Failed to create key provider", slog.Any("error", err))
		os.Exit(1)
	}

	// MFA service
	service, err := mfa.NewService(mfa.ServiceParams{
		Config:          cfg.MFAConfig(),
		MethodStore:     methodStore,
		SecretStore:     secretStore,
		CredentialStore: credentialStore,
		ChallengeStore:  challengeStore,
		AuditSink:       auditSink,
		FieldCipher:     fieldcrypt.NewCodec(keyProvider),
		Logger:          logger,
	})
	if err != nil {
		slog.Error("Failed to create MFA service", slog.Any("error", err))
		os.Exit(1)
	}

	// TLS
	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		slog.Error("Failed to load TLS configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// REST server
	server, err := rest.NewServer(&rest.Config{
		Port:          cfg.Server.Port,
		Service:       service,
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		JWTIssuer:     cfg.Auth.JWTIssuer,
		InternalToken: cfg.Auth.InternalToken,
		Version:       version,
		TLSConfig:     tlsConfig,
		RateLimit:     cfg.RateLimitConfig(),
		Logger:        logger,
		ReadTimeout:   cfg.Server.ReadTimeout.Std(),
		WriteTimeout:  cfg.Server.WriteTimeout.Std(),
		IdleTimeout:   cfg.Server.IdleTimeout.Std(),
	})
	if err != nil {
		slog.Error("Failed to create REST server", slog.Any("error", err))
		os.Exit(1)
	}

	// Setup signal handler for graceful shutdown
	shutdownCtx := setupSignalHandler()

	// Periodic expired-challenge sweep
	if cfg.Sweep.Interval.Std() > 0 {
		go runSweeper(shutdownCtx, service, cfg.Sweep.Interval.Std())
	}

	// Start the REST server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	slog.Info("MFA server started successfully", "port", cfg.Server.Port)

	// Wait for shutdown signal or error
	select {
	case <-shutdownCtx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errChan:
		slog.Error("Server error", slog.Any("error", err))
	}

	// Gracefully shutdown
	shutdownTimeout, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownTimeout); err != nil {
		slog.Error("Error during server shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("MFA server stopped successfully")
}

// runSweeper deletes expired challenges on a fixed interval until the
// context is cancelled.
func runSweeper(ctx context.Context, service *mfa.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := service.SweepExpiredChallenges(ctx)
			if err != nil {
				slog.Error("Challenge sweep failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				slog.Debug("Swept expired challenges", "removed", removed)
			}
		}
	}
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}

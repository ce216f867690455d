/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the SynePoints server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env honored, flags override)
  2. Initialize SQLite store
  3. Build the vault, session signer and Google sign-in
  4. Seed demo data when configured
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DATABASE_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

SEE ALSO:
  - config/config.go: Environment configuration
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/synetech/synepoints/api"
	"github.com/synetech/synepoints/auth"
	"github.com/synetech/synepoints/config"
	"github.com/synetech/synepoints/seed"
	"github.com/synetech/synepoints/store/sqlite"
	"github.com/synetech/synepoints/vault"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	// Flags override the environment.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DatabasePath, "SQLite database path")
	flag.Parse()

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	v, err := vault.New([]byte(cfg.EncryptionKey), store)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize vault")
	}

	sessions := auth.NewSessions([]byte(cfg.SessionSecret), cfg.SessionTTL)
	google := auth.NewGoogle(
		cfg.Google.ClientID,
		cfg.Google.ClientSecret,
		cfg.Google.RedirectURL,
		cfg.HostedDomain,
	)

	if cfg.SeedDemoData {
		if err := seed.Load(context.Background(), store); err != nil {
			log.WithError(err).Fatal("failed to seed demo data")
		}
	}

	handler := api.NewHandler(store, v, sessions, google, log)
	handler.JiraBaseURL = cfg.JiraBaseURL
	handler.TogglBaseURL = cfg.TogglBaseURL
	handler.DevIdentityHeader = cfg.DevIdentityHeader

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("forced shutdown")
	}
	log.Info("server stopped")
}

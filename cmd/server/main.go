// @title           Ticket Registry API
// @version         0.1.0
// @description     Event ticketing platform backend: organizations publish ticket series, attendees mint and resell tickets, the platform owner takes a configurable fee.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                         Authorization
// @description                  "JWT token or API key. For JWT: 'Bearer {token}'. For API Key: 'Bearer {api_key}'"
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics and profiling are served on a dedicated side-channel port (default: 9090) that is separate from the main API server. This keeps the scrape path off the public ingress and avoids rate-limiting middleware. Configure the port with TKR_TELEMETRY_METRICS_PROMETHEUS_PORT. The endpoint path is always GET /metrics. pprof (if enabled via TKR_TELEMETRY_PROFILING_ENABLED=true) is served on TKR_TELEMETRY_PROFILING_PORT (default: 6060) at the standard /debug/pprof/ paths. Neither endpoint is part of the OpenAPI spec because they are not served by the Gin router.

// Package main is the entry point for the Ticket Registry server binary.
// It dispatches three subcommands, serve, migrate, and version, via a simple
// switch on os.Args so the binary's full CLI surface is readable in one place
// without requiring a cobra dependency. The serve command runs auto-migration on
// startup so freshly deployed containers never need a separate migration step.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	// pprof registers on http.DefaultServeMux at init time. That mux is only
	// ever bound to the internal profiling port, never to the Gin listener.
	_ "net/http/pprof" // #nosec G108

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ticket-registry/ticket-registry/internal/api"
	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/db"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/safego"
	"github.com/ticket-registry/ticket-registry/internal/telemetry"
	"golang.org/x/crypto/bcrypt"

	// Archive backends register with the storage factory via init().
	_ "github.com/ticket-registry/ticket-registry/internal/storage/azure"
	_ "github.com/ticket-registry/ticket-registry/internal/storage/gcs"
	_ "github.com/ticket-registry/ticket-registry/internal/storage/local"
	_ "github.com/ticket-registry/ticket-registry/internal/storage/s3"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("Ticket Registry v%s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	// Logger first so everything after it logs in the configured format.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level, cfg.Logging.Output)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Refuse to boot in production without a real JWT secret.
	if err := auth.ValidateJWTSecret(); err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	log.Println("JWT secret validated successfully")

	maskedPassword := "****"
	if cfg.Database.Password != "" {
		maskedPassword = cfg.Database.Password[:1] + "****"
	}
	log.Printf("Database config: host=%s, port=%d, user=%s, password=%s, dbname=%s, sslmode=%s", // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User, maskedPassword,
		cfg.Database.Name, cfg.Database.SSLMode)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Println("Connected to database successfully")
	telemetry.StartDBStatsCollector(database)

	// Auto-migrate so a fresh container comes up with a current schema.
	log.Println("Running database migrations...")
	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if schemaVersion, dirty, err := db.GetMigrationVersion(database); err != nil {
		log.Printf("Warning: failed to get migration version: %v", err)
	} else {
		log.Printf("Database schema version: %d (dirty: %v)", schemaVersion, dirty) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
	}

	// Mint a first-boot setup token if the setup wizard still needs to run.
	ssoConfigRepo := repositories.NewSSOConfigRepository(sqlx.NewDb(database, "postgres"))
	if err := handleSetupToken(ssoConfigRepo); err != nil {
		log.Printf("Warning: setup token handling failed: %v", err)
	}

	if cfg.Telemetry.Metrics.Enabled {
		startMetricsServer(cfg.Telemetry.Metrics.PrometheusPort)
	}
	if cfg.Telemetry.Profiling.Enabled {
		startPprofServer(cfg.Telemetry.Profiling.Port)
	}

	router, bgServices := api.NewRouter(cfg, database)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.GetAddress())
		log.Printf("Base URL: %s", cfg.Server.BaseURL)
		log.Printf("Payment provider: %s", cfg.Payment.Provider)
		log.Printf("Dev mode: %v", cfg.Server.DevMode)
		log.Println("Server is ready to accept connections")

		var err error
		if cfg.Security.TLS.Enabled {
			log.Printf("TLS enabled: cert=%s, key=%s", cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// In-flight requests are done; now the relay, shippers, and limiters.
	bgServices.Shutdown()

	log.Println("Server stopped gracefully")
	return nil
}

// startMetricsServer serves /metrics on its own port, off the public ingress
// path and outside the rate-limiting chain.
func startMetricsServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	safego.Go(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		slog.Info("starting Prometheus metrics server", "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	})
}

// startPprofServer binds http.DefaultServeMux (where net/http/pprof registered
// itself) to the internal profiling port.
func startPprofServer(port int) {
	addr := fmt.Sprintf(":%d", port)
	safego.Go(func() {
		slog.Info("starting pprof server", "addr", addr)
		srv := &http.Server{ //nolint:gosec // #nosec G112 -- internal-only pprof port, long timeouts acceptable
			Addr:         addr,
			Handler:      http.DefaultServeMux, // #nosec G108 -- not the main listener; pprof-only internal port
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("pprof server error", "error", err)
		}
	})
}

// handleSetupToken checks if the initial setup wizard needs a setup token and
// generates one if required. The raw token is printed to stdout (and optionally
// written to SETUP_TOKEN_FILE); only the bcrypt hash is stored in the database.
func handleSetupToken(repo *repositories.SSOConfigRepository) error {
	ctx := context.Background()

	completed, err := repo.IsSetupCompleted(ctx)
	if err != nil {
		return fmt.Errorf("failed to check setup status: %w", err)
	}
	if completed {
		return nil
	}

	// A hash with no completed setup means the server restarted mid-wizard.
	existingHash, err := repo.GetSetupTokenHash(ctx)
	if err != nil {
		return fmt.Errorf("failed to check existing setup token: %w", err)
	}
	if existingHash != "" {
		log.Println("")
		log.Println("══════════════════════════════════════════════════════════════════")
		log.Println("  SETUP REQUIRED: A setup token was previously generated.")
		log.Println("  If you lost it, delete the setup_token_hash from system_settings")
		log.Println("  and restart the server to generate a new one.")
		log.Println("══════════════════════════════════════════════════════════════════")
		log.Println("")
		return nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return fmt.Errorf("failed to generate setup token: %w", err)
	}
	rawToken := "tkr_setup_" + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(tokenBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(rawToken), 12)
	if err != nil {
		return fmt.Errorf("failed to hash setup token: %w", err)
	}
	if err := repo.SetSetupTokenHash(ctx, string(hash)); err != nil {
		return fmt.Errorf("failed to store setup token hash: %w", err)
	}

	separator := strings.Repeat("═", 66)
	log.Println("")
	log.Println(separator)
	log.Println("  INITIAL SETUP REQUIRED")
	log.Println("")
	log.Printf("  Setup Token: %s", rawToken)
	log.Println("")
	log.Println("  Use this token to complete initial setup via:")
	log.Println("    • Browser:  Navigate to https://<your-host>/setup")
	log.Println("    • API:      POST /api/v1/setup/validate-token")
	log.Println("               Authorization: SetupToken <token>")
	log.Println("")
	log.Println("  This token is single-use and will be invalidated after setup.")
	log.Println("  Treat it like a root password — do not share or log externally.")
	log.Println(separator)
	log.Println("")

	// SETUP_TOKEN_FILE lets container setups mount the token as a secret. The
	// path is operator-supplied config; clean it and refuse traversal.
	if tokenFile := os.Getenv("SETUP_TOKEN_FILE"); tokenFile != "" {
		if strings.Contains(filepath.ToSlash(tokenFile), "..") {
			log.Printf("Warning: SETUP_TOKEN_FILE contains path-traversal sequences, ignoring: %s", tokenFile) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
		} else {
			cleanPath := filepath.Clean(tokenFile)
			// #nosec G703 -- path is operator-supplied config, cleaned and traversal-validated above.
			if err := os.WriteFile(cleanPath, []byte(rawToken), 0600); err != nil {
				log.Printf("Warning: failed to write setup token to %s: %v", cleanPath, err) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
			} else {
				log.Printf("Setup token written to %s", cleanPath) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
			}
		}
	}

	// The token travels in an Authorization header, so plaintext HTTP leaks it.
	if os.Getenv("TKR_SECURITY_TLS_ENABLED") != "true" {
		log.Println("Warning: TLS is not enabled. The setup token will be transmitted in plaintext.")
		log.Println("         Consider enabling TLS before completing setup.")
	}

	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", schemaVersion, dirty) // #nosec G706 -- logged value is application-internal (config string, integer, or application-constructed path); not raw user-controlled request input
	return nil
}

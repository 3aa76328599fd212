// Package api wires together all HTTP routes for the ticket registry backend.
//
// Route grouping philosophy:
//   - Browsing endpoints (event listings, event detail, ticket lookups,
//     organization pages) are public with optional authentication, so attendees
//     can discover events before they ever sign in.
//   - Organizer and attendee mutations always require authentication; organizer
//     operations additionally require the events:write scope, and purchases run
//     under a stricter rate limit than ordinary traffic.
//   - The /admin surface requires the platform:admin scope. Identity-level
//     authorization (organization ownership, the platform owner check) lives in
//     the service layer; middleware only enforces scopes.
//   - The first-run setup wizard authenticates with a one-time setup token and
//     goes permanently dark once setup completes.
//
// The Swagger UI at /api-docs/ uses a nonce-based Content Security Policy rather
// than hash-based CSP. The CDN-loaded Swagger UI bundle contains inline <script>
// elements whose hashes would change with every CDN version update. A per-request
// cryptographic nonce allows those inline scripts to execute while keeping the
// CSP strict for all other content.
package api

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/ticket-registry/ticket-registry/docs"
	"github.com/ticket-registry/ticket-registry/internal/api/admin"
	"github.com/ticket-registry/ticket-registry/internal/api/events"
	"github.com/ticket-registry/ticket-registry/internal/api/setup"
	"github.com/ticket-registry/ticket-registry/internal/audit"
	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/auth/oidc"
	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/crypto"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/factory"
	"github.com/ticket-registry/ticket-registry/internal/jobs"
	"github.com/ticket-registry/ticket-registry/internal/middleware"
	"github.com/ticket-registry/ticket-registry/internal/payment"
	"github.com/ticket-registry/ticket-registry/internal/safego"
	"github.com/ticket-registry/ticket-registry/internal/services"
	"github.com/ticket-registry/ticket-registry/internal/storage"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	relay          *jobs.TransitionRelay
	shipper        *audit.MultiShipper
	expiryNotifier *jobs.APIKeyExpiryNotifier
	limiters       []middleware.Limiter
	redis          *redis.Client
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first. The
// relay stops before its shippers close so no pass ships into a closed sink.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.relay != nil {
		bg.relay.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Warn("error closing transition shippers", "error", err)
		}
	}
	if bg.expiryNotifier != nil {
		bg.expiryNotifier.Stop()
	}
	for _, l := range bg.limiters {
		if l != nil {
			l.Stop()
		}
	}
	if bg.redis != nil {
		if err := bg.redis.Close(); err != nil {
			slog.Warn("error closing redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize repositories
	accountRepo := repositories.NewAccountRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	platformRepo := repositories.NewPlatformRepository(db)
	orgRepo := repositories.NewOrganizationRepository(db)
	eventRepo := repositories.NewEventRepository(db)
	registryEventRepo := repositories.NewRegistryEventRepository(db)
	ticketRepo := repositories.NewTicketRepository(db)
	transitionRepo := repositories.NewTransitionRepository(db)

	// Wrap *sql.DB with sqlx for the settings repositories
	sqlxDB := sqlx.NewDb(db, "postgres")
	ssoConfigRepo := repositories.NewSSOConfigRepository(sqlxDB)
	archiveRepo := repositories.NewArchiveConfigRepository(sqlxDB)

	// The secret cipher seals archive credentials at rest. Without a key the
	// API still works, but secret-bearing archive settings cannot be stored.
	var secretCipher *crypto.SecretCipher
	if cfg.Security.EncryptionKey != "" {
		var err error
		secretCipher, err = crypto.NewSecretCipher([]byte(cfg.Security.EncryptionKey))
		if err != nil {
			log.Fatalf("Failed to initialize secret cipher: %v", err)
		}
	} else {
		slog.Warn("security.encryption_key not set; archive credentials cannot be stored through the API")
	}

	archiveBackend := loadArchiveBackend(context.Background(), archiveRepo, secretCipher, cfg)

	// Initialize and start the transition relay
	shipperConfigs := auditShipperConfigs(cfg.Transitions.Shippers)
	var shipper audit.Shipper
	var multiShipper *audit.MultiShipper
	if len(shipperConfigs) > 0 {
		var err error
		multiShipper, err = audit.NewMultiShipper(shipperConfigs)
		if err != nil {
			log.Fatalf("Failed to initialize transition shippers: %v", err)
		}
		shipper = multiShipper
	}
	relay := jobs.NewTransitionRelay(db, transitionRepo, shipper, archiveBackend, &cfg.Transitions)
	safego.Go(func() { relay.Start(context.Background()) })

	// Initialize and start the API key expiry notifier
	expiryNotifier := jobs.NewAPIKeyExpiryNotifier(apiKeyRepo, accountRepo, &cfg.Notifications)
	safego.Go(func() { expiryNotifier.Start(context.Background()) })

	// Initialize the payment ledger
	ledger := buildLedger(context.Background(), cfg, platformRepo)
	memLedger, _ := ledger.(*payment.MemoryLedger)

	// Add middleware. Security headers come first so they appear on every
	// response, including middleware rejections further down the chain.
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes archive backend probe when archiving is on)
	router.GET("/ready", readinessHandler(db, archiveBackend))

	// API version
	router.GET("/version", versionHandler())

	// Swagger UI - serve from CDN
	serveSwaggerUI := func(c *gin.Context) {
		// Generate a per-request nonce for CSP
		nb := make([]byte, 16)
		if _, err := rand.Read(nb); err != nil {
			c.String(http.StatusInternalServerError, "failed to generate nonce")
			return
		}
		nonce := base64.StdEncoding.EncodeToString(nb)

		// Allow same-origin framing so the frontend can embed this page
		c.Header("X-Frame-Options", "SAMEORIGIN")

		// Set a nonce-based Content Security Policy allowing the generated
		// nonce for inline scripts and styles. This is safe for serving the
		// Swagger UI page while keeping the global API CSP strict.
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.Header("Content-Security-Policy", fmt.Sprintf(
			"default-src 'self' https:; script-src 'self' 'nonce-%s' https:; style-src 'self' 'nonce-%s' https:; img-src 'self' data: https:; font-src 'self' https:; connect-src 'self' https:",
			nonce, nonce,
		))

		html := fmt.Sprintf(`<!DOCTYPE html>
<html>
	<head>
		<title>Swagger UI</title>
		<meta charset="utf-8"/>
		<meta name="viewport" content="width=device-width, initial-scale=1">
		<link rel="stylesheet" href="https://cdnjs.cloudflare.com/ajax/libs/swagger-ui/4.15.5/swagger-ui.min.css">
		<style nonce="%s">
			html{
				box-sizing: border-box;
				overflow: -moz-scrollbars-vertical;
				overflow-y: scroll;
			}
			*,
			*:before,
			*:after{
				box-sizing: inherit;
			}
			body {@font-family: sans-serif;
				color: #fafafa;
			}
		</style>
	</head>

	<body>
		<div id="swagger-ui"></div>

		<script src="https://cdnjs.cloudflare.com/ajax/libs/swagger-ui/4.15.5/swagger-ui-bundle.min.js" crossorigin></script>
		<script src="https://cdnjs.cloudflare.com/ajax/libs/swagger-ui/4.15.5/swagger-ui-standalone-preset.min.js" crossorigin></script>
		<script nonce="%s">
		window.onload = function() {
			const ui = SwaggerUIBundle({
				url: "/swagger.json",
				dom_id: '#swagger-ui',
				deepLinking: true,
				presets: [
					SwaggerUIBundle.presets.apis,
					SwaggerUIBundle.SwaggerUIStandalonePreset
				],
				plugins: [
					SwaggerUIBundle.plugins.DownloadUrl
				],
				layout: "BaseLayout",
				docExpansion: "list"
			})
			window.ui = ui
		}
	</script>
	</body>
</html>`, nonce, nonce)

		c.Data(200, "text/html; charset=utf-8", []byte(html))
	}

	// Register both exact and trailing-slash routes for Swagger UI
	router.GET("/api-docs/index.html", serveSwaggerUI)
	router.GET("/api-docs/", serveSwaggerUI)
	// Redirect /api-docs -> /api-docs/
	router.GET("/api-docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/api-docs/")
	})

	// Raw Swagger JSON endpoint - serve the embedded spec with the deployment's
	// host injected so "Try it out" targets this instance rather than whatever
	// was baked in at build time.
	router.GET("/swagger.json", func(c *gin.Context) {
		c.Header("Content-Type", "application/json")
		c.Header("Access-Control-Allow-Origin", "*")

		data := docs.SwaggerJSON

		public, err := url.Parse(cfg.Server.GetPublicURL())
		if err != nil || public.Host == "" {
			c.Data(http.StatusOK, "application/json", data)
			return
		}

		var doc map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			log.Printf("failed to unmarshal swagger.json: %v", err)
			c.Data(http.StatusOK, "application/json", data)
			return
		}
		doc["host"] = public.Host
		if public.Scheme != "" {
			doc["schemes"] = []string{public.Scheme}
		}

		out, err := json.Marshal(doc)
		if err != nil {
			log.Printf("failed to marshal modified swagger.json: %v", err)
			c.Data(http.StatusOK, "application/json", data)
			return
		}

		c.Data(http.StatusOK, "application/json", out)
	})

	// Initialize the service graph
	platformAddress := cfg.Payment.PlatformAccount

	registry := services.NewRegistryService(db, platformAddress,
		platformRepo, orgRepo, eventRepo, registryEventRepo, ticketRepo, transitionRepo, ledger)
	series := services.NewSeriesService(db, platformAddress,
		platformRepo, orgRepo, eventRepo, ticketRepo, transitionRepo, ledger)

	templateAddr := cfg.Events.TemplateAddress
	if templateAddr == "" {
		// Without an explicit template the platform account anchors series
		// address derivation.
		templateAddr = platformAddress
	}
	seriesFactory := factory.New(eventRepo, factory.Template{
		Address: templateAddr,
		BaseURI: cfg.Events.MetadataBaseURI,
	})
	orgs := services.NewOrganizationService(db, platformAddress,
		registry, series, seriesFactory, platformRepo, orgRepo, transitionRepo, ledger)

	eventHandlers := events.NewHandlers(registry, orgs, series)

	// Initialize admin handlers
	authHandlers, err := admin.NewAuthHandlers(cfg, db, ssoConfigRepo)
	if err != nil {
		log.Fatalf("Failed to initialize auth handlers: %v", err)
	}

	// SSO settings saved through the admin API take precedence over the config
	// file; load them so sign-in works without a restart after setup.
	if ssoCfg, ssoErr := ssoConfigRepo.GetEnabledSSOConfig(context.Background()); ssoErr != nil {
		slog.Error("failed to load SSO configuration from database", "error", ssoErr)
	} else if ssoCfg != nil {
		discoverCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		provider, provErr := oidc.New(discoverCtx, oidc.Settings{
			IssuerURL:    ssoCfg.IssuerURL,
			ClientID:     ssoCfg.ClientID,
			ClientSecret: ssoCfg.ClientSecret,
			RedirectURL:  ssoCfg.RedirectURL,
			Scopes:       ssoCfg.GetScopes(),
		})
		cancel()
		if provErr != nil {
			slog.Error("failed to initialize SSO provider from database configuration",
				"error", provErr, "issuer", ssoCfg.IssuerURL)
		} else {
			authHandlers.SetSSOProvider(provider, ssoCfg.ClientID)
			slog.Info("SSO provider loaded from database configuration", "issuer", ssoCfg.IssuerURL)
		}
	}

	apiKeyHandlers := admin.NewAPIKeyHandlers(cfg, db)
	accountHandlers := admin.NewAccountHandlers(db)
	platformHandlers := admin.NewPlatformHandlers(registry)
	transitionHandlers := admin.NewTransitionHandlers(transitionRepo, registry)
	ssoConfigHandlers := admin.NewSSOConfigHandlers(ssoConfigRepo, authHandlers)
	archiveHandlers := admin.NewArchiveHandlers(archiveRepo, secretCipher, relay)

	// Initialize setup wizard handlers
	setupHandlers := setup.NewHandlers(ssoConfigRepo, accountRepo, platformRepo, archiveRepo, ledger)

	// Initialize rate limiters
	rdb := middleware.NewRedisClient(&cfg.Security.RateLimiting)
	authLimiter := middleware.NewLimiter(&cfg.Security.RateLimiting, rdb, middleware.AuthRateLimitConfig())
	generalLimiter := middleware.NewLimiter(&cfg.Security.RateLimiting, rdb, middleware.DefaultRateLimitConfig())
	purchaseLimiter := middleware.NewLimiter(&cfg.Security.RateLimiting, rdb, middleware.PurchaseRateLimitConfig())

	apiV1 := router.Group("/api/v1")
	{
		// Setup status endpoint (public, no auth required)
		apiV1.GET("/setup/status", setupHandlers.GetSetupStatus)

		// Setup wizard endpoints (setup token auth, rate limited by the
		// middleware). The SSO and archive steps reuse the admin handlers;
		// the setup package only implements what has no admin equivalent.
		setupGroup := apiV1.Group("/setup")
		setupGroup.Use(middleware.SetupTokenMiddleware(ssoConfigRepo))
		{
			setupGroup.POST("/validate-token", setupHandlers.ValidateToken)
			setupGroup.POST("/admin", setupHandlers.ConfigureAdmin)
			setupGroup.POST("/platform", setupHandlers.ConfigurePlatform)
			setupGroup.POST("/sso/test", setupHandlers.TestSSOConfig)
			setupGroup.POST("/sso", ssoConfigHandlers.PutSSOConfig)
			setupGroup.POST("/archive/test", archiveHandlers.TestArchiveConfig)
			setupGroup.POST("/archive", archiveHandlers.PutArchiveConfig)
			setupGroup.POST("/complete", setupHandlers.CompleteSetup)
		}

		// Public authentication endpoints (no auth required, but rate limited)
		authGroup := apiV1.Group("/auth")
		authGroup.Use(middleware.RateLimitMiddleware(authLimiter))
		{
			authGroup.POST("/login", authHandlers.LoginHandler())
			authGroup.POST("/refresh", authHandlers.RefreshHandler())
			authGroup.GET("/sso/login", authHandlers.SSOLoginHandler())
			authGroup.GET("/sso/callback", authHandlers.SSOCallbackHandler())
			authGroup.GET("/logout", authHandlers.LogoutHandler())
		}

		// Public browsing endpoints. Optional auth populates the actor context
		// when a token is present, which the frontend uses to show management
		// actions on events the caller organizes.
		publicGroup := apiV1.Group("")
		publicGroup.Use(middleware.OptionalAuthMiddleware(accountRepo, apiKeyRepo))
		publicGroup.Use(middleware.RateLimitMiddleware(generalLimiter))
		{
			publicGroup.GET("/events", eventHandlers.ListEventsHandler())
			publicGroup.GET("/events/:address", eventHandlers.GetEventHandler())
			publicGroup.GET("/events/:address/tickets", eventHandlers.ListTicketsHandler())
			publicGroup.GET("/events/:address/tickets/:id", eventHandlers.GetTicketHandler())
			publicGroup.GET("/events/:address/tickets/:id/validation", eventHandlers.ValidateTicketHandler())
			publicGroup.GET("/organizations/:address", eventHandlers.GetOrganizationHandler())
		}

		// Authenticated-only endpoints
		authenticatedGroup := apiV1.Group("")
		authenticatedGroup.Use(middleware.AuthMiddleware(accountRepo, apiKeyRepo))
		authenticatedGroup.Use(middleware.RateLimitMiddleware(generalLimiter))
		{
			authenticatedGroup.GET("/auth/me", accountHandlers.GetCurrentAccountHandler())

			// Organizer surface - requires events:write
			authenticatedGroup.POST("/organizations",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.CreateOrganizationHandler())
			authenticatedGroup.POST("/organizations/ownership-transfers",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.TransferOwnershipHandler())
			authenticatedGroup.PUT("/organizations/banner",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.UpdateBannerHandler())
			authenticatedGroup.POST("/organizations/withdrawals",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.WithdrawHandler())
			authenticatedGroup.GET("/organizations/mine",
				middleware.RequireScope(auth.ScopeEventsRead),
				eventHandlers.GetMyOrganizationHandler())

			authenticatedGroup.POST("/events",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.CreateEventHandler())
			authenticatedGroup.POST("/events/:address/close",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.CloseEventHandler())
			authenticatedGroup.PUT("/events/:address/price",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.SetTicketPriceHandler())
			authenticatedGroup.PUT("/events/:address/deadline",
				middleware.RequireScope(auth.ScopeEventsWrite),
				eventHandlers.SetDeadlineHandler())

			// Attendee surface - purchases carry their own stricter rate limit
			authenticatedGroup.POST("/events/:address/tickets",
				middleware.RateLimitMiddleware(purchaseLimiter),
				middleware.RequireScope(auth.ScopeEventsRead),
				eventHandlers.MintHandler())
			authenticatedGroup.POST("/events/:address/tickets/:id/resales",
				middleware.RateLimitMiddleware(purchaseLimiter),
				middleware.RequireScope(auth.ScopeEventsRead),
				eventHandlers.ResellHandler())
			authenticatedGroup.GET("/tickets/mine",
				middleware.RequireScope(auth.ScopeEventsRead),
				eventHandlers.ListMyTicketsHandler())

			// API keys - self-service for own keys; ownership is verified in
			// the handlers rather than by scope
			apiKeysGroup := authenticatedGroup.Group("/apikeys")
			{
				apiKeysGroup.GET("", apiKeyHandlers.ListAPIKeysHandler())
				apiKeysGroup.POST("", apiKeyHandlers.CreateAPIKeyHandler())
				apiKeysGroup.GET("/:id", apiKeyHandlers.GetAPIKeyHandler())
				apiKeysGroup.DELETE("/:id", apiKeyHandlers.RevokeAPIKeyHandler())
				apiKeysGroup.POST("/:id/rotate", apiKeyHandlers.RotateAPIKeyHandler())
			}

			// Platform owner surface
			adminGroup := authenticatedGroup.Group("/admin")
			adminGroup.Use(middleware.RequireScope(auth.ScopePlatformAdmin))
			{
				adminGroup.GET("/platform", platformHandlers.GetPlatformHandler())
				adminGroup.PUT("/platform/fee", platformHandlers.UpdateFeeHandler())
				adminGroup.PUT("/platform/payment-token", platformHandlers.UpdatePaymentTokenHandler())
				adminGroup.POST("/platform/pause", platformHandlers.PauseHandler())
				adminGroup.POST("/platform/unpause", platformHandlers.UnpauseHandler())

				adminGroup.GET("/organizers", platformHandlers.ListOrganizersHandler())
				adminGroup.PUT("/organizers/:address", platformHandlers.SetOrganizerStatusHandler())
				adminGroup.GET("/organizations", platformHandlers.ListOrganizationsHandler())
				adminGroup.PUT("/organizations/:address/status", platformHandlers.SetOrganizationStatusHandler())
				adminGroup.GET("/events", platformHandlers.ListRegistryEventsHandler())

				adminGroup.GET("/stats", transitionHandlers.StatsHandler())
				adminGroup.GET("/transitions", transitionHandlers.ListTransitionsHandler())
				adminGroup.GET("/transitions/:id", transitionHandlers.GetTransitionHandler())

				adminGroup.GET("/accounts", accountHandlers.ListAccountsHandler())
				adminGroup.POST("/accounts", accountHandlers.CreateAccountHandler())
				adminGroup.GET("/accounts/:id", accountHandlers.GetAccountHandler())
				adminGroup.PUT("/accounts/:id", accountHandlers.UpdateAccountHandler())
				adminGroup.DELETE("/accounts/:id", accountHandlers.DeleteAccountHandler())

				adminGroup.GET("/sso-config", ssoConfigHandlers.GetSSOConfig)
				adminGroup.PUT("/sso-config", ssoConfigHandlers.PutSSOConfig)

				adminGroup.GET("/archive-config", archiveHandlers.GetArchiveConfig)
				adminGroup.PUT("/archive-config", archiveHandlers.PutArchiveConfig)
				adminGroup.POST("/archive-config/test", archiveHandlers.TestArchiveConfig)
			}
		}

		// Development-only endpoints (guarded by DevModeMiddleware)
		devGroup := apiV1.Group("/dev")
		devGroup.Use(admin.DevModeMiddleware(cfg))
		{
			devHandlers := admin.NewDevHandlers(cfg, db, memLedger)
			// Unauthenticated dev endpoints (dev-mode-gated only)
			devGroup.GET("/status", devHandlers.DevStatusHandler())
			devGroup.POST("/ledger/seed", devHandlers.SeedBalanceHandler())
			devGroup.POST("/ledger/approve", devHandlers.ApproveAllowanceHandler())
			devGroup.GET("/ledger/accounts/:address", devHandlers.GetLedgerAccountHandler())

			// Impersonation requires auth; the handler checks the admin scope
			devGroup.Use(middleware.AuthMiddleware(accountRepo, apiKeyRepo))
			devGroup.POST("/impersonate/:account_id", devHandlers.ImpersonateAccountHandler())
		}
	}

	bg := &BackgroundServices{
		relay:          relay,
		shipper:        multiShipper,
		expiryNotifier: expiryNotifier,
		limiters:       []middleware.Limiter{authLimiter, generalLimiter, purchaseLimiter},
		redis:          rdb,
	}

	return router, bg
}

// loadArchiveBackend resolves the transition archive backend. A configuration
// stored through the admin API takes precedence over the config file; with
// neither present (or archiving disabled) the relay runs without an archive,
// and an administrator can attach one later at runtime.
func loadArchiveBackend(ctx context.Context, archiveRepo *repositories.ArchiveConfigRepository, cipher *crypto.SecretCipher, cfg *config.Config) storage.Backend {
	row, err := archiveRepo.GetArchiveConfig(ctx)
	if err != nil {
		slog.Error("failed to load archive configuration from database", "error", err)
	} else if row != nil && row.ConfiguredAt != nil {
		settings, serr := row.ParseSettings()
		if serr == nil {
			settings, serr = storage.OpenSettings(cipher, settings)
		}
		var backend storage.Backend
		if serr == nil {
			backend, serr = storage.NewBackend(row.Backend, settings)
		}
		if serr != nil {
			slog.Error("stored archive configuration is unusable, falling back to config file",
				"backend", row.Backend, "error", serr)
		} else {
			slog.Info("transition archive loaded from database configuration", "backend", row.Backend)
			return backend
		}
	}

	if !cfg.Transitions.ArchiveEnabled {
		return nil
	}
	backend, err := storage.NewBackendFromConfig(&cfg.Archive)
	if err != nil {
		log.Fatalf("Failed to initialize archive backend: %v", err)
	}
	slog.Info("transition archive initialized", "backend", cfg.Archive.DefaultBackend)
	return backend
}

// auditShipperConfigs converts the file-format shipper entries into the audit
// package's config type. Disabled entries are dropped here so the caller can
// tell whether any shipper is actually active.
func auditShipperConfigs(entries []config.TransitionShipperConfig) []audit.ShipperConfig {
	out := make([]audit.ShipperConfig, 0, len(entries))
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		sc := audit.ShipperConfig{Enabled: true, Type: e.Type}
		if e.File != nil {
			sc.File = &audit.FileConfig{
				Path:       e.File.Path,
				MaxSizeMB:  e.File.MaxSizeMB,
				MaxBackups: e.File.MaxBackups,
			}
		}
		if e.Webhook != nil {
			sc.Webhook = &audit.WebhookConfig{
				URL:     e.Webhook.URL,
				Headers: e.Webhook.Headers,
				Timeout: time.Duration(e.Webhook.TimeoutSecs) * time.Second,
			}
		}
		if e.AMQP != nil {
			sc.AMQP = &audit.AMQPConfig{
				URL:      e.AMQP.URL,
				Exchange: e.AMQP.Exchange,
				Queue:    e.AMQP.Queue,
			}
		}
		out = append(out, sc)
	}
	return out
}

// buildLedger creates the payment ledger provider. The token address comes from
// the platform configuration row so a restart keeps settling against the token
// the owner configured; before first-run setup it is empty and the provider is
// retargeted when setup stores one.
func buildLedger(ctx context.Context, cfg *config.Config, platformRepo *repositories.PlatformRepository) payment.Ledger {
	tokenAddr := ""
	if pc, err := platformRepo.GetConfig(ctx); err != nil {
		slog.Warn("could not load platform config for ledger token", "error", err)
	} else if pc != nil && !address.IsZero(pc.PaymentTokenAddress) {
		tokenAddr = pc.PaymentTokenAddress
	}

	ledger, err := payment.CreateLedger(&payment.ProviderConfig{
		Type:            payment.ProviderType(cfg.Payment.Provider),
		GatewayURL:      cfg.Payment.GatewayURL,
		APIToken:        cfg.Payment.APIToken,
		PlatformAccount: cfg.Payment.PlatformAccount,
		TokenAddress:    tokenAddr,
		Timeout:         time.Duration(cfg.Payment.TimeoutSecs) * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to initialize payment ledger: %v", err)
	}
	slog.Info("payment ledger initialized", "provider", cfg.Payment.Provider)
	return ledger
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database connectivity and, when archiving is enabled, the archive backend.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks per dependency"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: failing dependency"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the archive backend so
// that a readiness gate fails when transition archiving would error. The probe
// uses List, which exercises authentication and connectivity without writing.
func readinessHandler(db *sql.DB, archive storage.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if archive != nil {
			if _, err := archive.List(c.Request.Context(), ".readiness-probe"); err != nil {
				checks["archive"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "archive backend not ready",
				})
				return
			}
			checks["archive"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	requestID, _ := c.Get(middleware.RequestIDKey)
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", fmt.Sprintf("%v", requestID)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// auth.go implements HTTP handlers for password login, OIDC SSO login and
// callbacks, token refresh, and logout.
package admin

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/auth/oidc"
	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
)

// tokenTTL is the lifetime of issued JWTs.
const tokenTTL = 24 * time.Hour

// activeSSO pairs a built provider with the client id it was built from; the
// logout redirect needs the client id and the two must always match.
type activeSSO struct {
	provider *oidc.Provider
	clientID string
}

// AuthHandlers handles authentication-related endpoints
type AuthHandlers struct {
	cfg           *config.Config
	accountRepo   *repositories.AccountRepository
	ssoConfigRepo *repositories.SSOConfigRepository
	sso           atomic.Pointer[activeSSO]

	stateMu      sync.Mutex
	sessionStore map[string]*SessionState // In-memory; a multi-replica deployment needs a shared store
}

// SessionState represents OAuth state during the SSO authentication flow
type SessionState struct {
	State     string
	CreatedAt time.Time
}

// NewAuthHandlers creates a new AuthHandlers instance. The SSO provider is
// built from the database configuration when one is enabled, falling back to
// the static config file. Password login works either way.
func NewAuthHandlers(cfg *config.Config, db *sql.DB, ssoConfigRepo *repositories.SSOConfigRepository) (*AuthHandlers, error) {
	h := &AuthHandlers{
		cfg:           cfg,
		accountRepo:   repositories.NewAccountRepository(db),
		ssoConfigRepo: ssoConfigRepo,
		sessionStore:  make(map[string]*SessionState),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ssoConfigRepo != nil {
		dbCfg, err := ssoConfigRepo.GetEnabledSSOConfig(ctx)
		if err == nil && dbCfg != nil {
			provider, err := oidc.New(ctx, oidc.Settings{
				IssuerURL:    dbCfg.IssuerURL,
				ClientID:     dbCfg.ClientID,
				ClientSecret: dbCfg.ClientSecret,
				RedirectURL:  dbCfg.RedirectURL,
				Scopes:       dbCfg.GetScopes(),
			})
			if err != nil {
				// A broken IdP must not take password login down with it
				slog.Warn("stored SSO config failed to initialize", "issuer", dbCfg.IssuerURL, "error", err)
			} else {
				h.sso.Store(&activeSSO{provider: provider, clientID: dbCfg.ClientID})
				return h, nil
			}
		}
	}

	if cfg.Auth.OIDC.Enabled {
		provider, err := oidc.New(ctx, oidc.Settings{
			IssuerURL:    cfg.Auth.OIDC.IssuerURL,
			ClientID:     cfg.Auth.OIDC.ClientID,
			ClientSecret: cfg.Auth.OIDC.ClientSecret,
			RedirectURL:  cfg.Auth.OIDC.RedirectURL,
			Scopes:       cfg.Auth.OIDC.Scopes,
		})
		if err != nil {
			return nil, err
		}
		h.sso.Store(&activeSSO{provider: provider, clientID: cfg.Auth.OIDC.ClientID})
	}

	return h, nil
}

// SetSSOProvider atomically swaps the active SSO provider. This is used by
// the setup wizard and the SSO config handlers to activate a newly configured
// provider at runtime without requiring a server restart.
func (h *AuthHandlers) SetSSOProvider(provider *oidc.Provider, clientID string) {
	h.sso.Store(&activeSSO{provider: provider, clientID: clientID})
	slog.Info("SSO provider swapped at runtime")
}

// generateState generates a random state string for OAuth
func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *AuthHandlers) storeState(state string) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	h.sessionStore[state] = &SessionState{State: state, CreatedAt: time.Now()}
}

// takeState removes and returns the stored state, preventing replay.
func (h *AuthHandlers) takeState(state string) *SessionState {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	s := h.sessionStore[state]
	delete(h.sessionStore, state)
	return s
}

// LoginRequest represents a password login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// @Summary      Password login
// @Description  Authenticate with email and password, returning a JWT bound to the account's actor address.
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        body  body  LoginRequest  true  "Login credentials"
// @Success      200  {object}  map[string]interface{}  "token, expires_in, account"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      401  {object}  map[string]interface{}  "Invalid email or password"
// @Failure      403  {object}  map[string]interface{}  "Account is disabled"
// @Router       /api/v1/auth/login [post]
// LoginHandler authenticates with a local password
// POST /api/v1/auth/login
func (h *AuthHandlers) LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		account, err := h.accountRepo.GetAccountByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to look up account",
			})
			return
		}

		// One message for both unknown email and wrong password, so the
		// endpoint cannot be used to enumerate accounts. bcrypt fails on the
		// empty hash of an SSO-only account too.
		if account == nil || bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid email or password",
			})
			return
		}

		if !account.Active {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Account is disabled",
			})
			return
		}

		token, err := auth.GenerateJWT(account.ID, account.Address, account.Email, tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(tokenTTL.Seconds()),
			"account":    account.ToResponse(),
		})
	}
}

// @Summary      Initiate SSO login
// @Description  Redirect the browser to the configured OIDC identity provider to begin the authentication flow.
// @Tags         Authentication
// @Produce      json
// @Success      302  {object}  string  "Redirects to the provider authorization URL"
// @Failure      400  {object}  map[string]interface{}  "SSO is not configured"
// @Failure      500  {object}  map[string]interface{}  "Failed to generate state"
// @Router       /api/v1/auth/sso/login [get]
// SSOLoginHandler initiates the OIDC login flow
// GET /api/v1/auth/sso/login
func (h *AuthHandlers) SSOLoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sso := h.sso.Load()
		if sso == nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "SSO is not configured",
			})
			return
		}

		// Generate state for CSRF protection
		state, err := generateState()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate state",
			})
			return
		}
		h.storeState(state)

		c.Redirect(http.StatusFound, sso.provider.AuthURL(state))
	}
}

// @Summary      SSO callback handler
// @Description  Handles the callback from the identity provider. Exchanges the authorization code for a verified identity, resolves it to a local account by email, and redirects the browser to the frontend /auth/callback page with a JWT as a query parameter. Accounts are not auto-provisioned; an administrator must create the account first.
// @Tags         Authentication
// @Produce      json
// @Param        code   query  string  true  "Authorization code from the identity provider"
// @Param        state  query  string  true  "State parameter for CSRF validation"
// @Success      302  {object}  string  "Redirects to frontend /auth/callback?token=<jwt>"
// @Failure      400  {object}  map[string]interface{}  "Invalid state or authorization code"
// @Router       /api/v1/auth/sso/callback [get]
// SSOCallbackHandler handles the OIDC callback
// GET /api/v1/auth/sso/callback?code=...&state=...
func (h *AuthHandlers) SSOCallbackHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// The frontend base serves both the success redirect and all error
		// redirects so the user always lands on the frontend callback page.
		frontendBase := deriveFrontendURL(h.cfg)

		// callbackError sends the browser to the frontend callback page with
		// error details as query parameters. Falls back to a plain JSON
		// response only when no frontend URL can be derived.
		callbackError := func(errCode, description string) {
			if frontendBase == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": description})
				return
			}
			target := fmt.Sprintf(
				"%s/auth/callback?error=%s&error_description=%s",
				frontendBase,
				url.QueryEscape(errCode),
				url.QueryEscape(description),
			)
			c.Redirect(http.StatusFound, target)
		}

		sso := h.sso.Load()
		if sso == nil {
			callbackError("provider_not_configured", "SSO is not configured.")
			return
		}

		code := c.Query("code")
		state := c.Query("state")

		sessionState := h.takeState(state)
		if sessionState == nil {
			callbackError("invalid_state", "Invalid state parameter. Please try logging in again.")
			return
		}

		// Stale states are rejected; takeState already removed it
		if time.Since(sessionState.CreatedAt) > 5*time.Minute {
			callbackError("state_expired", "Login session expired. Please try logging in again.")
			return
		}

		ctx := c.Request.Context()

		token, err := sso.provider.ExchangeCode(ctx, code)
		if err != nil {
			callbackError("token_exchange_failed", "Failed to exchange authorization code for token.")
			return
		}

		rawIDToken, ok := token.Extra("id_token").(string)
		if !ok {
			callbackError("no_id_token", "The identity provider did not return an ID token.")
			return
		}

		idToken, err := sso.provider.VerifyIDToken(ctx, rawIDToken)
		if err != nil {
			callbackError("id_token_invalid", "The ID token could not be verified.")
			return
		}

		_, email, _, err := sso.provider.ExtractAccountInfo(idToken)
		if err != nil {
			callbackError("account_info_failed", "Failed to extract identity information from the ID token.")
			return
		}

		// SSO identities map onto pre-provisioned accounts by email. The
		// account carries the actor address, so auto-provisioning would mint
		// actors nobody controls.
		account, err := h.accountRepo.GetAccountByEmail(ctx, email)
		if err != nil {
			callbackError("account_lookup_failed", "Failed to look up your account.")
			return
		}
		if account == nil {
			callbackError("no_account", "No account exists for this identity. Ask a platform administrator to create one.")
			return
		}
		if !account.Active {
			callbackError("account_disabled", "Your account is disabled.")
			return
		}

		jwtToken, err := auth.GenerateJWT(account.ID, account.Address, account.Email, tokenTTL)
		if err != nil {
			callbackError("jwt_failed", "Failed to generate an authentication token.")
			return
		}

		// Redirect the browser to the frontend callback page with the JWT in
		// the query string so the SPA can store it.
		redirectTarget := fmt.Sprintf("%s/auth/callback?token=%s", frontendBase, url.QueryEscape(jwtToken))
		c.Redirect(http.StatusFound, redirectTarget)
	}
}

// @Summary      Logout
// @Description  When SSO is active, redirects the browser to the provider's end_session_endpoint so the IdP session is terminated too. Falls back to a plain redirect to the frontend home page.
// @Tags         Authentication
// @Produce      json
// @Success      302  {object}  string  "Redirects to the IdP end_session_endpoint or the frontend"
// @Router       /api/v1/auth/logout [get]
// LogoutHandler terminates the SSO session by redirecting to the provider's end_session_endpoint
// GET /api/v1/auth/logout
func (h *AuthHandlers) LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		frontendBase := deriveFrontendURL(h.cfg)
		postLogoutRedirect := frontendBase + "/"

		// Without the end-session redirect, clicking "Login with SSO" after
		// logout silently re-authenticates via the still-active IdP cookie.
		if sso := h.sso.Load(); sso != nil {
			if endSessionURL := sso.provider.EndSessionEndpoint(); endSessionURL != "" {
				logoutURL, err := url.Parse(endSessionURL)
				if err == nil {
					q := logoutURL.Query()
					q.Set("post_logout_redirect_uri", postLogoutRedirect)
					// Most IdPs require client_id when post_logout_redirect_uri
					// is set. It is public config, so nothing sensitive leaks.
					q.Set("client_id", sso.clientID)
					logoutURL.RawQuery = q.Encode()
					c.Redirect(http.StatusFound, logoutURL.String())
					return
				}
			}
		}

		c.Redirect(http.StatusFound, postLogoutRedirect)
	}
}

// deriveFrontendURL returns the browser-facing base URL of the frontend SPA.
// It tries (in order):
//  1. cfg.Server.PublicURL — set explicitly to the frontend's public address
//  2. The origin of cfg.Auth.OIDC.RedirectURL — the registered callback URL
//     already points at the frontend, so stripping its path gives the base.
//  3. cfg.Server.BaseURL — internal backend address, last resort.
func deriveFrontendURL(cfg *config.Config) string {
	if cfg.Server.PublicURL != "" {
		return strings.TrimRight(cfg.Server.PublicURL, "/")
	}
	if cfg.Auth.OIDC.RedirectURL != "" {
		if u, err := url.Parse(cfg.Auth.OIDC.RedirectURL); err == nil {
			return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
		}
	}
	return strings.TrimRight(cfg.Server.BaseURL, "/")
}

// @Summary      Refresh JWT token
// @Description  Exchange a valid JWT for a fresh one with extended expiration.
// @Tags         Authentication
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "token, expires_in"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/auth/refresh [post]
// RefreshHandler refreshes an existing JWT token
// POST /api/v1/auth/refresh
func (h *AuthHandlers) RefreshHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("account_id")
		if accountID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Not authenticated",
			})
			return
		}

		// Re-read the account so revocation and deactivation take effect at
		// refresh time rather than only at key expiry
		account, err := h.accountRepo.GetAccountByID(c.Request.Context(), accountID)
		if err != nil || account == nil || !account.Active {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Account not found or disabled",
			})
			return
		}

		token, err := auth.GenerateJWT(account.ID, account.Address, account.Email, tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate new token",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":      token,
			"expires_in": int(tokenTTL.Seconds()),
		})
	}
}

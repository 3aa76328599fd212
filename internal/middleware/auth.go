// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and request telemetry.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → Metrics → RateLimit → Auth → Scope check → Handler
//
// Security headers run first so they appear on all responses including errors.
// Request IDs and metrics wrap everything that follows. Rate limiting runs
// before auth so brute-force traffic is rejected before any database work.
// Auth populates the account identity and scopes; the scope middleware reads
// from that context. Identity-level authorization (organization ownership,
// the platform owner check) belongs to the service layer, not middleware.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
)

// AuthMiddleware validates authentication (JWT or API key)
func AuthMiddleware(accountRepo *repositories.AccountRepository, apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		// The JWT check is stateless, so it runs before the API key path,
		// which always costs a database query.
		if claims, err := auth.ValidateJWT(token); err == nil {
			account, err := accountRepo.GetAccountByID(c.Request.Context(), claims.AccountID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to load account",
				})
				return
			}
			if account == nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Account not found",
				})
				return
			}
			if !account.Active {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Account is disabled",
				})
				return
			}

			c.Set("account", account)
			c.Set("account_id", account.ID)
			c.Set("actor_address", account.Address)
			c.Set("auth_method", "jwt")
			c.Set("scopes", account.Scopes)

			c.Next()
			return
		}

		// Only the bcrypt hash of a key is stored. The unique display prefix
		// narrows the lookup to a single row before the expensive comparison.
		var apiKey *models.APIKey
		if apiKeyRepo != nil {
			var err error
			apiKey, err = authenticateAPIKey(c.Request.Context(), token, apiKeyRepo)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Authentication failed",
				})
				return
			}
		}

		if apiKey != nil {
			if apiKey.IsExpired() {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "API key expired",
				})
				return
			}

			// The key's scopes may be narrower than the account's, but the key
			// still acts as the owning account's address.
			account, err := accountRepo.GetAccountByID(c.Request.Context(), apiKey.AccountID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Failed to load account",
				})
				return
			}
			if account == nil || !account.Active {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Account is disabled",
				})
				return
			}

			// Last-used tracking is best-effort and happens off the request
			// path. The timeout stops the goroutine leaking when the database
			// is unreachable.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = apiKeyRepo.UpdateLastUsed(ctx, apiKey.ID)
			}()

			c.Set("account", account)
			c.Set("account_id", account.ID)
			c.Set("actor_address", account.Address)
			c.Set("api_key", apiKey)
			c.Set("api_key_id", apiKey.ID)
			c.Set("auth_method", "api_key")
			c.Set("scopes", apiKey.Scopes)

			c.Next()
			return
		}

		// Neither JWT nor API key worked
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "Invalid credentials",
		})
	}
}

// OptionalAuthMiddleware populates the account context when valid credentials
// are presented but never rejects the request. Public read endpoints use it so
// anonymous and authenticated traffic share one handler.
func OptionalAuthMiddleware(accountRepo *repositories.AccountRepository, apiKeyRepo *repositories.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.Next()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.Next()
			return
		}

		if claims, err := auth.ValidateJWT(token); err == nil {
			account, err := accountRepo.GetAccountByID(c.Request.Context(), claims.AccountID)
			if err == nil && account != nil && account.Active {
				c.Set("account", account)
				c.Set("account_id", account.ID)
				c.Set("actor_address", account.Address)
				c.Set("auth_method", "jwt")
				c.Set("scopes", account.Scopes)
			}
			c.Next()
			return
		}

		if apiKeyRepo != nil {
			apiKey, _ := authenticateAPIKey(c.Request.Context(), token, apiKeyRepo)
			if apiKey != nil && !apiKey.IsExpired() {
				account, err := accountRepo.GetAccountByID(c.Request.Context(), apiKey.AccountID)
				if err == nil && account != nil && account.Active {
					go func() {
						ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = apiKeyRepo.UpdateLastUsed(ctx, apiKey.ID)
					}()

					c.Set("account", account)
					c.Set("account_id", account.ID)
					c.Set("actor_address", account.Address)
					c.Set("api_key", apiKey)
					c.Set("api_key_id", apiKey.ID)
					c.Set("auth_method", "api_key")
					c.Set("scopes", apiKey.Scopes)
				}
			}
		}

		// Continue regardless of auth status
		c.Next()
	}
}

// authenticateAPIKey resolves an API key by its display prefix and verifies
// the full key against the stored bcrypt hash.
func authenticateAPIKey(ctx context.Context, providedKey string, apiKeyRepo *repositories.APIKeyRepository) (*models.APIKey, error) {
	keyPrefix := providedKey
	if len(providedKey) > auth.DisplayPrefixLength {
		keyPrefix = providedKey[:auth.DisplayPrefixLength]
	}

	key, err := apiKeyRepo.GetAPIKeyByPrefix(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}

	if !auth.ValidateAPIKey(providedKey, key.KeyHash) {
		return nil, nil
	}

	return key, nil
}

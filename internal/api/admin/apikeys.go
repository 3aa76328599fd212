// Package admin implements the administrative HTTP handlers for the ticket
// registry: accounts, API keys, platform governance, the transition log and
// runtime configuration. Unlike the public read endpoints in the sibling
// events package, these handlers require authentication and the appropriate
// scopes (see internal/middleware/scopes.go).
package admin

import (
	"database/sql"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/config"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
)

// APIKeyHandlers handles API key management endpoints
type APIKeyHandlers struct {
	cfg        *config.Config
	apiKeyRepo *repositories.APIKeyRepository
}

// NewAPIKeyHandlers creates a new APIKeyHandlers instance
func NewAPIKeyHandlers(cfg *config.Config, db *sql.DB) *APIKeyHandlers {
	return &APIKeyHandlers{
		cfg:        cfg,
		apiKeyRepo: repositories.NewAPIKeyRepository(db),
	}
}

// keyPrefix returns the configured key prefix without the trailing separator;
// GenerateAPIKey adds its own.
func (h *APIKeyHandlers) keyPrefix() string {
	prefix := strings.TrimSuffix(h.cfg.Auth.APIKeys.Prefix, "_")
	if prefix == "" {
		prefix = "tkr"
	}
	return prefix
}

// apiKeyJSON maps a key to its API shape. The hash never leaves the database
// layer; models carry no JSON tags so the mapping is explicit.
func apiKeyJSON(k *models.APIKey) gin.H {
	return gin.H{
		"id":            k.ID,
		"account_id":    k.AccountID,
		"account_email": k.AccountEmail,
		"name":          k.Name,
		"prefix":        k.Prefix,
		"scopes":        k.Scopes,
		"expires_at":    k.ExpiresAt,
		"last_used_at":  k.LastUsedAt,
		"created_at":    k.CreatedAt,
	}
}

// canAccessKey reports whether the caller owns the key or holds the admin
// wildcard.
func canAccessKey(c *gin.Context, key *models.APIKey) bool {
	if key.AccountID == c.GetString("account_id") {
		return true
	}
	scopesVal, _ := c.Get("scopes")
	scopes, _ := scopesVal.([]string)
	return auth.HasScope(scopes, auth.ScopePlatformAdmin)
}

// CreateAPIKeyRequest represents the request to create a new API key
type CreateAPIKeyRequest struct {
	Name      string   `json:"name" binding:"required"`
	Scopes    []string `json:"scopes" binding:"required"`
	ExpiresAt *string  `json:"expires_at"` // RFC3339 format
}

// CreateAPIKeyResponse represents the response when creating an API key
type CreateAPIKeyResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Key       string     `json:"key"` // Only returned once during creation
	Prefix    string     `json:"prefix"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// @Summary      List API keys
// @Description  List API keys. Callers with platform:admin scope see every key on the platform, everyone else sees only their own.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "keys: list of API keys"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [get]
// ListAPIKeysHandler lists API keys for the authenticated account
// GET /api/v1/apikeys
func (h *APIKeyHandlers) ListAPIKeysHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetString("account_id")
		if accountID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Not authenticated",
			})
			return
		}

		scopesVal, _ := c.Get("scopes")
		scopes, _ := scopesVal.([]string)

		var keys []*models.APIKey
		var err error

		if auth.HasScope(scopes, auth.ScopePlatformAdmin) {
			// Admins see every key, joined with the owning account email
			keys, err = h.apiKeyRepo.ListAll(c.Request.Context())
		} else {
			keys, err = h.apiKeyRepo.ListAPIKeysByAccount(c.Request.Context(), accountID)
		}

		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list API keys",
			})
			return
		}

		resp := make([]gin.H, 0, len(keys))
		for _, k := range keys {
			resp = append(resp, apiKeyJSON(k))
		}

		c.JSON(http.StatusOK, gin.H{
			"keys": resp,
		})
	}
}

// @Summary      Create API key
// @Description  Create a new API key with the given scopes. The full key is only returned once. Requested scopes must not exceed the caller's own scopes.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  CreateAPIKeyRequest  true  "API key creation request"
// @Success      201  {object}  CreateAPIKeyResponse  "API key created (full key returned once)"
// @Failure      400  {object}  map[string]interface{}  "Invalid request or scopes"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Requested scopes exceed the caller's own"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys [post]
// CreateAPIKeyHandler creates a new API key
// POST /api/v1/apikeys
func (h *APIKeyHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		accountID := c.GetString("account_id")
		if accountID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Not authenticated",
			})
			return
		}

		// Validate scopes are valid scope strings
		if err := auth.ValidateScopes(req.Scopes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid scopes: " + err.Error(),
			})
			return
		}

		// A key cannot carry more permission than the account that mints it
		scopesVal, _ := c.Get("scopes")
		callerScopes, _ := scopesVal.([]string)
		for _, requested := range req.Scopes {
			if !auth.HasScope(callerScopes, auth.Scope(requested)) {
				c.JSON(http.StatusForbidden, gin.H{
					"error": "Scope '" + requested + "' exceeds your own permissions",
				})
				return
			}
		}

		// Parse expiration if provided
		var expiresAt *time.Time
		if req.ExpiresAt != nil {
			parsed, err := time.Parse(time.RFC3339, *req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid expires_at format. Use RFC3339",
				})
				return
			}
			expiresAt = &parsed
		}

		fullKey, keyHash, displayPrefix, err := auth.GenerateAPIKey(h.keyPrefix())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate API key",
			})
			return
		}

		apiKey := &models.APIKey{
			AccountID: accountID,
			Name:      req.Name,
			Prefix:    displayPrefix,
			KeyHash:   keyHash,
			Scopes:    req.Scopes,
			ExpiresAt: expiresAt,
		}

		if err := h.apiKeyRepo.CreateAPIKey(c.Request.Context(), apiKey); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create API key",
			})
			return
		}

		// Return full key (only time it's visible)
		c.JSON(http.StatusCreated, CreateAPIKeyResponse{
			ID:        apiKey.ID,
			Name:      apiKey.Name,
			Key:       fullKey, // IMPORTANT: Only returned once
			Prefix:    displayPrefix,
			Scopes:    apiKey.Scopes,
			ExpiresAt: apiKey.ExpiresAt,
			CreatedAt: apiKey.CreatedAt,
		})
	}
}

// @Summary      Get API key
// @Description  Retrieve a specific API key by ID. Callers can only access their own keys unless they hold platform:admin scope.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}  "key: API key details"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Access denied to this key"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id} [get]
// GetAPIKeyHandler retrieves a specific API key
// GET /api/v1/apikeys/:id
func (h *APIKeyHandlers) GetAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve API key",
			})
			return
		}

		if apiKey == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		if !canAccessKey(c, apiKey) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access denied",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"key": apiKeyJSON(apiKey),
		})
	}
}

// @Summary      Revoke API key
// @Description  Revoke an API key by ID. Revocation is immediate and permanent. Callers can only revoke their own keys unless they hold platform:admin scope.
// @Tags         API Keys
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "API key ID"
// @Success      200  {object}  map[string]interface{}  "Revocation confirmation"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Access denied to this key"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id} [delete]
// RevokeAPIKeyHandler revokes an API key
// DELETE /api/v1/apikeys/:id
func (h *APIKeyHandlers) RevokeAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		// Get the key first to check authorization
		apiKey, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve API key",
			})
			return
		}

		if apiKey == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		if !canAccessKey(c, apiKey) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access denied",
			})
			return
		}

		if err := h.apiKeyRepo.RevokeAPIKey(c.Request.Context(), keyID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to revoke API key",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "API key revoked successfully",
		})
	}
}

// RotateAPIKeyRequest represents the request to rotate an API key
type RotateAPIKeyRequest struct {
	// GracePeriodHours is how long the old key should remain valid (0 = immediate revocation)
	GracePeriodHours int `json:"grace_period_hours"`
}

// RotateAPIKeyResponse represents the response when rotating an API key
type RotateAPIKeyResponse struct {
	NewKey       CreateAPIKeyResponse `json:"new_key"`
	OldKeyStatus string               `json:"old_key_status"` // "revoked" or "expires_at"
	OldExpiresAt *time.Time           `json:"old_expires_at,omitempty"`
}

// @Summary      Rotate API key
// @Description  Rotate an API key: mint a replacement with the same scopes and either revoke the old key immediately or keep it valid for a grace period of up to 72 hours. Callers can only rotate their own keys unless they hold platform:admin scope.
// @Tags         API Keys
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "API key ID"
// @Param        body  body  RotateAPIKeyRequest  true  "Rotation request with optional grace period (0-72 hours)"
// @Success      200  {object}  RotateAPIKeyResponse  "New API key and old key status"
// @Failure      400  {object}  map[string]interface{}  "Invalid grace period"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      403  {object}  map[string]interface{}  "Access denied to this key"
// @Failure      404  {object}  map[string]interface{}  "API key not found"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/apikeys/{id}/rotate [post]
// RotateAPIKeyHandler rotates an API key - creates a new key and optionally schedules old key expiration
// POST /api/v1/apikeys/:id/rotate
func (h *APIKeyHandlers) RotateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		keyID := c.Param("id")

		var req RotateAPIKeyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			// Default to immediate revocation if no body provided
			req.GracePeriodHours = 0
		}

		if req.GracePeriodHours < 0 || req.GracePeriodHours > 72 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "grace_period_hours must be between 0 and 72",
			})
			return
		}

		oldKey, err := h.apiKeyRepo.GetAPIKeyByID(c.Request.Context(), keyID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to retrieve API key",
			})
			return
		}

		if oldKey == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "API key not found",
			})
			return
		}

		if !canAccessKey(c, oldKey) {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Access denied",
			})
			return
		}

		fullKey, keyHash, displayPrefix, err := auth.GenerateAPIKey(h.keyPrefix())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to generate new API key",
			})
			return
		}

		// Create new API key with same properties as the old one
		newKey := &models.APIKey{
			AccountID: oldKey.AccountID,
			Name:      oldKey.Name + " (rotated)",
			Prefix:    displayPrefix,
			KeyHash:   keyHash,
			Scopes:    oldKey.Scopes,
			ExpiresAt: oldKey.ExpiresAt, // Keep same expiration policy
		}

		if err := h.apiKeyRepo.CreateAPIKey(c.Request.Context(), newKey); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to create new API key",
			})
			return
		}

		// Handle old key based on grace period
		var oldKeyStatus string
		var oldExpiresAt *time.Time

		if req.GracePeriodHours == 0 {
			if err := h.apiKeyRepo.RevokeAPIKey(c.Request.Context(), oldKey.ID); err != nil {
				// The new key already exists; report the failure instead of
				// rolling it back
				oldKeyStatus = "revocation_failed"
			} else {
				oldKeyStatus = "revoked"
			}
		} else {
			gracePeriodEnd := time.Now().Add(time.Duration(req.GracePeriodHours) * time.Hour)
			if err := h.apiKeyRepo.UpdateExpiry(c.Request.Context(), oldKey.ID, &gracePeriodEnd); err != nil {
				oldKeyStatus = "grace_period_update_failed"
			} else {
				oldKeyStatus = "expires_at"
				oldExpiresAt = &gracePeriodEnd
			}
		}

		c.JSON(http.StatusOK, RotateAPIKeyResponse{
			NewKey: CreateAPIKeyResponse{
				ID:        newKey.ID,
				Name:      newKey.Name,
				Key:       fullKey, // IMPORTANT: Only returned once
				Prefix:    displayPrefix,
				Scopes:    newKey.Scopes,
				ExpiresAt: newKey.ExpiresAt,
				CreatedAt: newKey.CreatedAt,
			},
			OldKeyStatus: oldKeyStatus,
			OldExpiresAt: oldExpiresAt,
		})
	}
}

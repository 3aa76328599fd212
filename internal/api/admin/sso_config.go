// sso_config.go implements admin handlers for reading and updating the SSO
// provider configuration at runtime without re-running the setup wizard.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ticket-registry/ticket-registry/internal/auth/oidc"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
)

// SSOConfigHandlers handles admin SSO configuration endpoints
type SSOConfigHandlers struct {
	ssoConfigRepo *repositories.SSOConfigRepository
	authHandlers  *AuthHandlers // for hot-swapping the live provider
}

// NewSSOConfigHandlers creates a new SSOConfigHandlers instance
func NewSSOConfigHandlers(ssoConfigRepo *repositories.SSOConfigRepository, authHandlers *AuthHandlers) *SSOConfigHandlers {
	return &SSOConfigHandlers{
		ssoConfigRepo: ssoConfigRepo,
		authHandlers:  authHandlers,
	}
}

// @Summary      Get SSO configuration
// @Description  Returns the stored SSO configuration, enabled or not. The client secret is never returned. Requires platform:admin scope.
// @Tags         SSO
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  models.SSOConfigResponse
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      404  {object}  map[string]interface{}  "No SSO configuration"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/sso-config [get]
func (h *SSOConfigHandlers) GetSSOConfig(c *gin.Context) {
	ctx := c.Request.Context()

	configs, err := h.ssoConfigRepo.ListSSOConfigs(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve SSO configuration"})
		return
	}
	if len(configs) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No SSO configuration"})
		return
	}

	// Newest first; the platform keeps a single effective configuration
	c.JSON(http.StatusOK, configs[0].ToResponse())
}

// @Summary      Update SSO configuration
// @Description  Create or replace the SSO provider configuration. The provider is verified against the issuer's discovery document before saving, and when enabled it goes live immediately without a restart. Requires platform:admin scope.
// @Tags         SSO
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  models.SSOConfigInput  true  "SSO provider configuration"
// @Success      200  {object}  models.SSOConfigResponse
// @Failure      400  {object}  map[string]interface{}  "Invalid request or unreachable provider"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/sso-config [put]
func (h *SSOConfigHandlers) PutSSOConfig(c *gin.Context) {
	var input models.SSOConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	// Verify against the issuer before anything is persisted. Discovery can
	// be slow, so bound it.
	var provider *oidc.Provider
	if enabled {
		discoverCtx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		defer cancel()

		var err error
		provider, err = oidc.New(discoverCtx, oidc.Settings{
			IssuerURL:    input.IssuerURL,
			ClientID:     input.ClientID,
			ClientSecret: input.ClientSecret,
			RedirectURL:  input.RedirectURL,
			Scopes:       input.Scopes,
		})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provider verification failed: " + err.Error()})
			return
		}
	}

	ctx := c.Request.Context()

	name := input.Name
	if name == "" {
		name = "default"
	}

	scopesJSON, err := models.MarshalScopes(input.Scopes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode scopes"})
		return
	}

	existing, err := h.ssoConfigRepo.ListSSOConfigs(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve SSO configuration"})
		return
	}

	var cfg *models.SSOConfig
	if len(existing) > 0 {
		cfg = existing[0]
		cfg.Name = name
		cfg.IssuerURL = input.IssuerURL
		cfg.ClientID = input.ClientID
		cfg.ClientSecret = input.ClientSecret
		cfg.RedirectURL = input.RedirectURL
		cfg.Scopes = scopesJSON
		cfg.Enabled = enabled

		if err := h.ssoConfigRepo.UpdateSSOConfig(ctx, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save SSO configuration"})
			return
		}
	} else {
		now := time.Now()
		cfg = &models.SSOConfig{
			ID:           uuid.New(),
			Name:         name,
			IssuerURL:    input.IssuerURL,
			ClientID:     input.ClientID,
			ClientSecret: input.ClientSecret,
			RedirectURL:  input.RedirectURL,
			Scopes:       scopesJSON,
			Enabled:      enabled,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := h.ssoConfigRepo.CreateSSOConfig(ctx, cfg); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save SSO configuration"})
			return
		}
	}

	if enabled {
		// Single effective config: everything else goes dark
		if err := h.ssoConfigRepo.EnableSSOConfig(ctx, cfg.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enable SSO configuration"})
			return
		}
		if h.authHandlers != nil {
			h.authHandlers.SetSSOProvider(provider, cfg.ClientID)
		}
	}

	c.JSON(http.StatusOK, cfg.ToResponse())
}

// Package setup implements HTTP handlers for the first-run setup wizard.
// These endpoints are authenticated via setup token (not JWT/API key) and are
// permanently disabled after setup completes. They create the first
// administrator account, claim platform ownership for its address, and set the
// payment token and fee before the registry opens for business. The optional
// SSO and archive steps reuse the admin handlers, mounted under the setup
// group by the router.
package setup

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/ticket-registry/ticket-registry/internal/auth"
	"github.com/ticket-registry/ticket-registry/internal/auth/oidc"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/payment"
	"github.com/ticket-registry/ticket-registry/pkg/address"
)

// Handlers holds all dependencies for setup wizard endpoints.
type Handlers struct {
	ssoConfigRepo *repositories.SSOConfigRepository
	accountRepo   *repositories.AccountRepository
	platformRepo  *repositories.PlatformRepository
	archiveRepo   *repositories.ArchiveConfigRepository
	ledger        payment.Ledger // retargeted when setup sets the payment token; may be nil
}

// NewHandlers creates a new setup Handlers instance.
func NewHandlers(
	ssoConfigRepo *repositories.SSOConfigRepository,
	accountRepo *repositories.AccountRepository,
	platformRepo *repositories.PlatformRepository,
	archiveRepo *repositories.ArchiveConfigRepository,
	ledger payment.Ledger,
) *Handlers {
	return &Handlers{
		ssoConfigRepo: ssoConfigRepo,
		accountRepo:   accountRepo,
		platformRepo:  platformRepo,
		archiveRepo:   archiveRepo,
		ledger:        ledger,
	}
}

// ConfigureAdminRequest is the payload for creating the first administrator.
type ConfigureAdminRequest struct {
	Address     string `json:"address" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"display_name" binding:"required"`
	Password    string `json:"password" binding:"required,min=8"`
}

// ConfigurePlatformRequest is the payload for the platform economics step.
type ConfigurePlatformRequest struct {
	PaymentTokenAddress string `json:"payment_token_address" binding:"required"`
	FeeBps              *int   `json:"fee_bps"`
}

// @Summary      Get setup status
// @Description  Returns the first-run setup progress. Public: the frontend uses it to decide whether to show the wizard or the login page.
// @Tags         Setup
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "per-component configuration flags"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/setup/status [get]
// GetSetupStatus returns setup progress with per-component flags
// GET /api/v1/setup/status
func (h *Handlers) GetSetupStatus(c *gin.Context) {
	ctx := c.Request.Context()

	status, err := h.ssoConfigRepo.GetSetupStatus(ctx)
	if err != nil {
		slog.Error("failed to get setup status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get setup status"})
		return
	}

	accountCount, err := h.accountRepo.CountAccounts(ctx)
	if err != nil {
		slog.Error("failed to count accounts for setup status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get setup status"})
		return
	}

	platformCfg, err := h.platformRepo.GetConfig(ctx)
	if err != nil {
		slog.Error("failed to get platform config for setup status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get setup status"})
		return
	}
	platformConfigured := platformCfg != nil && !address.IsZero(platformCfg.PaymentTokenAddress)

	archiveCfg, err := h.archiveRepo.GetArchiveConfig(ctx)
	if err != nil {
		slog.Error("failed to get archive config for setup status", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get setup status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"setup_completed":     status.SetupCompleted,
		"setup_required":      status.SetupRequired,
		"sso_enabled":         status.SSOEnabled,
		"admin_configured":    accountCount > 0,
		"platform_configured": platformConfigured,
		"archive_configured":  archiveCfg != nil && archiveCfg.ConfiguredAt != nil,
	})
}

// @Summary      Validate setup token
// @Description  Confirms the presented setup token is valid. Validation happens in the middleware; reaching the handler means the token checked out.
// @Tags         Setup
// @Security     SetupToken
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "valid flag"
// @Failure      401  {object}  map[string]interface{}  "Invalid setup token"
// @Failure      403  {object}  map[string]interface{}  "Setup already completed"
// @Router       /api/v1/setup/validate-token [post]
// ValidateToken confirms the setup token presented in the Authorization header
// POST /api/v1/setup/validate-token
func (h *Handlers) ValidateToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"valid":   true,
		"message": "Setup token is valid",
	})
}

// @Summary      Create the first administrator
// @Description  Creates the initial administrator account with full scopes and claims platform ownership for its actor address. Refused once any account exists.
// @Tags         Setup
// @Security     SetupToken
// @Accept       json
// @Produce      json
// @Param        body  body  ConfigureAdminRequest  true  "Administrator account"
// @Success      201  {object}  map[string]interface{}  "created account"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      409  {object}  map[string]interface{}  "An account already exists"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/setup/admin [post]
// ConfigureAdmin creates the first administrator account and makes its address
// the platform owner
// POST /api/v1/setup/admin
func (h *Handlers) ConfigureAdmin(c *gin.Context) {
	var req ConfigureAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if !address.IsValid(req.Address) || address.IsZero(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid actor address"})
		return
	}
	addr := address.Normalize(req.Address)

	ctx := c.Request.Context()

	count, err := h.accountRepo.CountAccounts(ctx)
	if err != nil {
		slog.Error("failed to count accounts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing accounts"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "An account already exists. Setup can only create the first administrator."})
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), auth.BcryptCost)
	if err != nil {
		slog.Error("failed to hash password", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create administrator account"})
		return
	}

	// Claim ownership before creating the account: a failure between the two
	// writes leaves no account behind, so the step can simply be retried and
	// the claim overwritten.
	if err := h.platformRepo.SetOwner(ctx, addr); err != nil {
		slog.Error("failed to claim platform ownership", "error", err, "address", addr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to claim platform ownership"})
		return
	}

	account := &models.Account{
		Address:      addr,
		Email:        req.Email,
		PasswordHash: string(passwordHash),
		DisplayName:  req.DisplayName,
		Scopes:       auth.GetAdminScopes(),
		Active:       true,
	}
	if err := h.accountRepo.CreateAccount(ctx, account); err != nil {
		slog.Error("failed to create administrator account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create administrator account"})
		return
	}

	slog.Info("first administrator configured",
		"address", addr,
		"email", req.Email)

	c.JSON(http.StatusCreated, gin.H{
		"message": "Administrator account created and platform ownership claimed",
		"account": account.ToResponse(),
	})
}

// @Summary      Configure platform economics
// @Description  Sets the payment token address and, optionally, the platform fee on the seeded platform config row. The running ledger is retargeted at the new token immediately.
// @Tags         Setup
// @Security     SetupToken
// @Accept       json
// @Produce      json
// @Param        body  body  ConfigurePlatformRequest  true  "Payment token and fee"
// @Success      200  {object}  map[string]interface{}  "applied configuration"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/setup/platform [post]
// ConfigurePlatform sets the payment token and platform fee
// POST /api/v1/setup/platform
func (h *Handlers) ConfigurePlatform(c *gin.Context) {
	var req ConfigurePlatformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if !address.IsValid(req.PaymentTokenAddress) || address.IsZero(req.PaymentTokenAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment token address"})
		return
	}
	token := address.Normalize(req.PaymentTokenAddress)

	if req.FeeBps != nil && (*req.FeeBps < 0 || *req.FeeBps > models.MaxFeeBps) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fee_bps must be between 0 and 10000"})
		return
	}

	ctx := c.Request.Context()

	if err := h.platformRepo.UpdatePaymentToken(ctx, token); err != nil {
		slog.Error("failed to set payment token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to configure platform"})
		return
	}
	if req.FeeBps != nil {
		if err := h.platformRepo.UpdateFee(ctx, *req.FeeBps); err != nil {
			slog.Error("failed to set platform fee", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to configure platform"})
			return
		}
	}

	if scoped, ok := h.ledger.(payment.TokenScoped); ok {
		scoped.SetTokenAddress(token)
		slog.Info("payment ledger retargeted", "token", token)
	}

	resp := gin.H{
		"message":               "Platform configured",
		"payment_token_address": token,
	}
	if req.FeeBps != nil {
		resp["fee_bps"] = *req.FeeBps
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary      Test SSO configuration
// @Description  Runs OIDC discovery against the submitted issuer without saving anything. Returns success=false with the discovery error rather than failing the request.
// @Tags         Setup
// @Security     SetupToken
// @Accept       json
// @Produce      json
// @Param        body  body  models.SSOConfigInput  true  "SSO provider configuration to test"
// @Success      200  {object}  map[string]interface{}  "success flag plus a human-readable message"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Router       /api/v1/setup/sso/test [post]
// TestSSOConfig verifies an SSO provider configuration without saving it
// POST /api/v1/setup/sso/test
func (h *Handlers) TestSSOConfig(c *gin.Context) {
	var input models.SSOConfigInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// Discovery can be slow against a cold issuer, so bound it.
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if _, err := oidc.New(ctx, oidc.Settings{
		IssuerURL:    input.IssuerURL,
		ClientID:     input.ClientID,
		ClientSecret: input.ClientSecret,
		RedirectURL:  input.RedirectURL,
		Scopes:       input.Scopes,
	}); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "SSO provider verification failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "SSO provider verified",
		"issuer":  input.IssuerURL,
	})
}

// @Summary      Complete setup
// @Description  Marks first-run setup as complete and invalidates the setup token. Requires the administrator account to exist; SSO and archive configuration are optional.
// @Tags         Setup
// @Security     SetupToken
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "completion message"
// @Failure      400  {object}  map[string]interface{}  "Setup is not complete"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/setup/complete [post]
// CompleteSetup finalizes the wizard and permanently disables these endpoints
// POST /api/v1/setup/complete
func (h *Handlers) CompleteSetup(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.accountRepo.CountAccounts(ctx)
	if err != nil {
		slog.Error("failed to count accounts", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup components"})
		return
	}

	var missing []string
	if count == 0 {
		missing = append(missing, "administrator account")
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Setup is not complete",
			"missing": missing,
		})
		return
	}

	if err := h.ssoConfigRepo.SetSetupCompleted(ctx); err != nil {
		slog.Error("failed to mark setup completed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete setup"})
		return
	}

	slog.Info("first-run setup completed")

	c.JSON(http.StatusOK, gin.H{
		"message": "Setup completed successfully. The setup token is now invalid.",
	})
}

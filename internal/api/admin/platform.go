// platform.go implements handlers for platform governance: fee and payment
// token updates, the global pause switch, the organizer allowlist, and
// administrative organization controls.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/domain"
	"github.com/ticket-registry/ticket-registry/internal/services"
)

// PlatformHandlers handles platform governance endpoints
type PlatformHandlers struct {
	registry *services.RegistryService
}

// NewPlatformHandlers creates a new PlatformHandlers instance
func NewPlatformHandlers(registry *services.RegistryService) *PlatformHandlers {
	return &PlatformHandlers{registry: registry}
}

// respondError maps a domain error onto an HTTP status: validation 400,
// payment 402, authorization 403, state conflict 409, anything else 500.
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsPayment(err):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case domain.IsAuthorization(err):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case domain.IsState(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		slog.Error("admin request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func platformJSON(cfg *models.PlatformConfig) gin.H {
	return gin.H{
		"owner_address":         cfg.OwnerAddress,
		"fee_bps":               cfg.FeeBps,
		"payment_token_address": cfg.PaymentTokenAddress,
		"paused":                cfg.Paused,
		"created_at":            cfg.CreatedAt,
		"updated_at":            cfg.UpdatedAt,
	}
}

func adminOrganizationJSON(o *models.Organization) gin.H {
	return gin.H{
		"address":       o.Address,
		"owner_address": o.OwnerAddress,
		"banner_uri":    o.BannerURI,
		"paused":        o.Paused,
		"created_at":    o.CreatedAt,
		"updated_at":    o.UpdatedAt,
	}
}

// UpdateFeeRequest represents the request to change the platform fee.
// FeeBps is a pointer so an explicit zero (fee-free platform) still binds.
type UpdateFeeRequest struct {
	FeeBps *int `json:"fee_bps" binding:"required"`
}

// @Summary      Update platform fee
// @Description  Set the platform fee in basis points (0-10000). Applies to all future mints and resales. Requires the platform owner identity.
// @Tags         Platform
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UpdateFeeRequest  true  "New fee in basis points"
// @Success      200  {object}  map[string]interface{}  "message, fee_bps"
// @Failure      400  {object}  map[string]interface{}  "Fee outside 0-10000"
// @Failure      403  {object}  map[string]interface{}  "Caller is not the platform owner"
// @Router       /api/v1/admin/platform/fee [put]
// UpdateFeeHandler changes the platform fee rate
// PUT /api/v1/admin/platform/fee
func (h *PlatformHandlers) UpdateFeeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateFeeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if err := h.registry.UpdatePlatformFee(c.Request.Context(), c.GetString("actor_address"), *req.FeeBps); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Platform fee updated",
			"fee_bps": *req.FeeBps,
		})
	}
}

// UpdatePaymentTokenRequest represents the request to change the payment token
type UpdatePaymentTokenRequest struct {
	TokenAddress string `json:"token_address" binding:"required"`
}

// @Summary      Update payment token
// @Description  Switch the platform to a new payment token. All future payments settle in the new token; organization balances in the old token remain withdrawable only while it is active, so withdraw first. Requires the platform owner identity.
// @Tags         Platform
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  UpdatePaymentTokenRequest  true  "New payment token address"
// @Success      200  {object}  map[string]interface{}  "message, token_address"
// @Failure      400  {object}  map[string]interface{}  "Invalid token address"
// @Failure      403  {object}  map[string]interface{}  "Caller is not the platform owner"
// @Router       /api/v1/admin/platform/payment-token [put]
// UpdatePaymentTokenHandler switches the active payment token
// PUT /api/v1/admin/platform/payment-token
func (h *PlatformHandlers) UpdatePaymentTokenHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdatePaymentTokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		if err := h.registry.UpdatePaymentToken(c.Request.Context(), c.GetString("actor_address"), req.TokenAddress); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":       "Payment token updated",
			"token_address": req.TokenAddress,
		})
	}
}

// @Summary      Pause platform
// @Description  Halt all state-changing operations platform-wide. Reads keep working. Requires the platform owner identity.
// @Tags         Platform
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      403  {object}  map[string]interface{}  "Caller is not the platform owner"
// @Failure      409  {object}  map[string]interface{}  "Already paused"
// @Router       /api/v1/admin/platform/pause [post]
// PauseHandler pauses the whole platform
// POST /api/v1/admin/platform/pause
func (h *PlatformHandlers) PauseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.registry.Pause(c.Request.Context(), c.GetString("actor_address")); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Platform paused",
		})
	}
}

// @Summary      Unpause platform
// @Description  Resume state-changing operations platform-wide. Requires the platform owner identity.
// @Tags         Platform
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "message"
// @Failure      403  {object}  map[string]interface{}  "Caller is not the platform owner"
// @Failure      409  {object}  map[string]interface{}  "Not paused"
// @Router       /api/v1/admin/platform/unpause [post]
// UnpauseHandler resumes the platform
// POST /api/v1/admin/platform/unpause
func (h *PlatformHandlers) UnpauseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.registry.Unpause(c.Request.Context(), c.GetString("actor_address")); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Platform unpaused",
		})
	}
}

// @Summary      Get platform configuration
// @Description  Get the current platform configuration: owner, fee, payment token and pause state.
// @Tags         Platform
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "Platform configuration"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/platform [get]
// GetPlatformHandler returns the platform configuration
// GET /api/v1/admin/platform
func (h *PlatformHandlers) GetPlatformHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := h.registry.GetConfig(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		if cfg == nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Platform configuration not initialized",
			})
			return
		}

		c.JSON(http.StatusOK, platformJSON(cfg))
	}
}

// SetOrganizerStatusRequest represents an organizer allowlist change.
// Allowed is a pointer so an explicit false (revocation) still binds.
type SetOrganizerStatusRequest struct {
	Allowed *bool `json:"allowed" binding:"required"`
}

// @Summary      Set organizer status
// @Description  Add an address to the organizer allowlist or revoke it. Revocation blocks new organizations but does not touch an existing one. Requires the platform owner identity.
// @Tags         Platform
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        address  path  string                     true  "Organizer address"
// @Param        body     body  SetOrganizerStatusRequest  true  "Allowlist status"
// @Success      200  {object}  map[string]interface{}  "message, address, allowed"
// @Failure      400  {object}  map[string]interface{}  "Invalid address"
// @Failure      403  {object}  map[string]interface{}  "Caller is not the platform owner"
// @Router       /api/v1/admin/organizers/{address} [put]
// SetOrganizerStatusHandler upserts an organizer allowlist entry
// PUT /api/v1/admin/organizers/:address
func (h *PlatformHandlers) SetOrganizerStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetOrganizerStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		organizer := c.Param("address")
		if err := h.registry.SetOrganizerStatus(c.Request.Context(), c.GetString("actor_address"), organizer, *req.Allowed); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Organizer status updated",
			"address": organizer,
			"allowed": *req.Allowed,
		})
	}
}

// @Summary      List organizers
// @Description  List every address that has ever been on the organizer allowlist, including revoked ones.
// @Tags         Platform
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "organizers, count"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/organizers [get]
// ListOrganizersHandler lists organizer allowlist entries
// GET /api/v1/admin/organizers
func (h *PlatformHandlers) ListOrganizersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		organizers, err := h.registry.ListOrganizers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list organizers",
			})
			return
		}

		out := make([]gin.H, 0, len(organizers))
		for _, o := range organizers {
			out = append(out, gin.H{
				"address":    o.Address,
				"allowed":    o.Allowed,
				"created_at": o.CreatedAt,
				"updated_at": o.UpdatedAt,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"organizers": out,
			"count":      len(out),
		})
	}
}

// SetOrganizationStatusRequest represents an administrative pause change.
// Paused is a pointer so an explicit false (unpause) still binds.
type SetOrganizationStatusRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// @Summary      Set organization status
// @Description  Pause or unpause a single organization. A paused organization cannot mutate anything; its events stop minting. Requires the platform owner identity.
// @Tags         Platform
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        address  path  string                        true  "Organization address"
// @Param        body     body  SetOrganizationStatusRequest  true  "Pause status"
// @Success      200  {object}  map[string]interface{}  "message, address, paused"
// @Failure      403  {object}  map[string]interface{}  "Caller is not the platform owner"
// @Failure      409  {object}  map[string]interface{}  "Organization not found or already in that state"
// @Router       /api/v1/admin/organizations/{address}/status [put]
// SetOrganizationStatusHandler pauses or unpauses an organization
// PUT /api/v1/admin/organizations/:address/status
func (h *PlatformHandlers) SetOrganizationStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetOrganizationStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request: " + err.Error(),
			})
			return
		}

		orgAddress := c.Param("address")
		if err := h.registry.SetOrganizationStatus(c.Request.Context(), c.GetString("actor_address"), orgAddress, *req.Paused); err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Organization status updated",
			"address": orgAddress,
			"paused":  *req.Paused,
		})
	}
}

// @Summary      List organizations
// @Description  Get a paginated list of all organizations, newest first.
// @Tags         Platform
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "organizations, pagination"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/organizations [get]
// ListOrganizationsHandler lists organizations with pagination
// GET /api/v1/admin/organizations?page=1&per_page=20
func (h *PlatformHandlers) ListOrganizationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		offset := (page - 1) * perPage

		orgs, err := h.registry.ListOrganizations(c.Request.Context(), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list organizations",
			})
			return
		}

		out := make([]gin.H, 0, len(orgs))
		for _, o := range orgs {
			out = append(out, adminOrganizationJSON(o))
		}

		c.JSON(http.StatusOK, gin.H{
			"organizations": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}

// @Summary      List registry events
// @Description  List the registry's event memberships, optionally filtered to the active or past set.
// @Tags         Platform
// @Security     Bearer
// @Produce      json
// @Param        status    query  string  false  "Membership set: active or past"
// @Param        page      query  int     false  "Page number (default 1)"
// @Param        per_page  query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "events, pagination"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/events [get]
// ListRegistryEventsHandler lists registry event memberships
// GET /api/v1/admin/events?status=active
func (h *PlatformHandlers) ListRegistryEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		offset := (page - 1) * perPage

		list, err := h.registry.ListEvents(c.Request.Context(), c.Query("status"), perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list registry events",
			})
			return
		}

		out := make([]gin.H, 0, len(list))
		for _, e := range list {
			out = append(out, gin.H{
				"event_address":        e.EventAddress,
				"organization_address": e.OrganizationAddress,
				"status":               e.Status,
				"registered_at":        e.RegisteredAt,
				"closed_at":            e.ClosedAt,
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"events": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
			},
		})
	}
}

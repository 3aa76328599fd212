package events

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TransferOwnershipRequest is the body for organization ownership transfers.
type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

// UpdateBannerRequest is the body for banner updates.
type UpdateBannerRequest struct {
	BannerURI string `json:"banner_uri" binding:"required"`
}

// WithdrawRequest is the body for token withdrawals.
type WithdrawRequest struct {
	TokenAddress string `json:"token_address" binding:"required"`
}

// CreateOrganizationHandler registers a new organization for the caller
// @Summary Create organization
// @Description Registers an organization owned by the authenticated caller. The caller must be on the platform organizer allowlist and must not already own an organization.
// @Tags organizations
// @Security BearerAuth
// @Produce json
// @Success 201 {object} map[string]interface{} "Created organization"
// @Failure 403 {object} map[string]string "Caller not an approved organizer"
// @Failure 409 {object} map[string]string "Caller already owns an organization or platform is paused"
// @Router /organizations [post]
// POST /api/v1/organizations
func (h *Handlers) CreateOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.registry.CreateOrganization(c.Request.Context(), actorAddress(c))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, organizationJSON(org))
	}
}

// TransferOwnershipHandler moves the caller's organization to a new owner
// @Summary Transfer organization ownership
// @Description Transfers the caller's organization to a new owner address. The new owner must not already own an organization.
// @Tags organizations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body TransferOwnershipRequest true "New owner address"
// @Success 200 {object} map[string]interface{} "Updated organization"
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 403 {object} map[string]string "Caller owns no organization"
// @Failure 409 {object} map[string]string "New owner already owns an organization"
// @Router /organizations/ownership-transfers [post]
// POST /api/v1/organizations/ownership-transfers
func (h *Handlers) TransferOwnershipHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferOwnershipRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		org, err := h.registry.TransferOrganizationOwnership(c.Request.Context(), actorAddress(c), req.NewOwner)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, organizationJSON(org))
	}
}

// UpdateBannerHandler sets the caller's organization banner URI
// @Summary Update organization banner
// @Description Replaces the banner URI of the caller's organization.
// @Tags organizations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body UpdateBannerRequest true "Banner URI"
// @Success 200 {object} map[string]interface{} "Updated organization"
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 403 {object} map[string]string "Caller owns no organization"
// @Router /organizations/banner [put]
// PUT /api/v1/organizations/banner
func (h *Handlers) UpdateBannerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateBannerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		org, err := h.orgs.UpdateBanner(c.Request.Context(), actorAddress(c), req.BannerURI)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, organizationJSON(org))
	}
}

// WithdrawHandler drains the organization's balance of the active payment token
// @Summary Withdraw organization funds
// @Description Moves the organization's full balance of the given token to the owner's account. The token must be the platform's active payment token.
// @Tags organizations
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body WithdrawRequest true "Token to withdraw"
// @Success 200 {object} map[string]interface{} "Withdrawn amount"
// @Failure 400 {object} map[string]string "Token is not the active payment token"
// @Failure 402 {object} map[string]string "Nothing to withdraw"
// @Failure 403 {object} map[string]string "Caller owns no organization"
// @Router /organizations/withdrawals [post]
// POST /api/v1/organizations/withdrawals
func (h *Handlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req WithdrawRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		amount, err := h.orgs.WithdrawTokens(c.Request.Context(), actorAddress(c), req.TokenAddress)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"token_address": req.TokenAddress,
			"amount":        amount,
		})
	}
}

// GetOrganizationHandler returns one organization by address
// @Summary Get organization
// @Description Returns a single organization by its address.
// @Tags organizations
// @Produce json
// @Param address path string true "Organization address"
// @Success 200 {object} map[string]interface{} "Organization"
// @Failure 404 {object} map[string]string "Organization not found"
// @Router /organizations/{address} [get]
// GET /api/v1/organizations/:address
func (h *Handlers) GetOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.registry.GetOrganization(c.Request.Context(), c.Param("address"))
		if err != nil {
			respondError(c, err)
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}
		c.JSON(http.StatusOK, organizationJSON(org))
	}
}

// GetMyOrganizationHandler returns the caller's organization
// @Summary Get own organization
// @Description Returns the organization owned by the authenticated caller.
// @Tags organizations
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{} "Organization"
// @Failure 404 {object} map[string]string "Caller owns no organization"
// @Router /organizations/mine [get]
// GET /api/v1/organizations/mine
func (h *Handlers) GetMyOrganizationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		org, err := h.registry.GetOrganizationByOwner(c.Request.Context(), actorAddress(c))
		if err != nil {
			respondError(c, err)
			return
		}
		if org == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Organization not found"})
			return
		}
		c.JSON(http.StatusOK, organizationJSON(org))
	}
}

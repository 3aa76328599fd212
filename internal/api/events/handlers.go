// Package events implements the public and organizer HTTP surface: organization
// self-service, event (ticket series) lifecycle, ticket minting and resale, and
// the public read endpoints.
//
// Handlers translate HTTP to service calls and map the service error taxonomy
// onto status codes. They never enforce identity rules themselves: every service
// operation takes the caller address and does its own authorization, so a bug in
// route wiring cannot widen anyone's authority.
package events

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/domain"
	"github.com/ticket-registry/ticket-registry/internal/services"
)

// Handlers bundles the three domain services behind the organizer surface.
type Handlers struct {
	registry *services.RegistryService
	orgs     *services.OrganizationService
	series   *services.SeriesService
}

// NewHandlers creates the organizer/public handler set.
func NewHandlers(registry *services.RegistryService, orgs *services.OrganizationService, series *services.SeriesService) *Handlers {
	return &Handlers{
		registry: registry,
		orgs:     orgs,
		series:   series,
	}
}

// actorAddress returns the authenticated caller's address set by AuthMiddleware.
func actorAddress(c *gin.Context) string {
	return c.GetString("actor_address")
}

// respondError maps a service error onto an HTTP status:
// validation 400, payment 402, authorization 403, state conflict 409,
// anything else 500 with the detail kept server-side.
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
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// pageParams parses limit/offset query parameters with the usual clamps
// (default 20, max 100).
func pageParams(c *gin.Context) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		limit = 20
	}
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

// organizationJSON shapes an organization for API responses. Addresses are the
// public identity; the internal row id stays internal.
func organizationJSON(o *models.Organization) gin.H {
	return gin.H{
		"address":          o.Address,
		"owner_address":    o.OwnerAddress,
		"platform_address": o.PlatformAddress,
		"banner_uri":       o.BannerURI,
		"paused":           o.Paused,
		"created_at":       o.CreatedAt,
		"updated_at":       o.UpdatedAt,
	}
}

// eventJSON shapes a ticket series for API responses.
func eventJSON(e *models.Event) gin.H {
	return gin.H{
		"address":              e.Address,
		"organization_address": e.OrganizationAddress,
		"base_uri":             e.BaseURI,
		"ticket_price":         e.TicketPrice,
		"deadline":             e.Deadline,
		"max_supply":           e.MaxSupply,
		"current_supply":       e.CurrentSupply,
		"state":                e.State,
		"created_at":           e.CreatedAt,
		"updated_at":           e.UpdatedAt,
	}
}

// ticketJSON shapes a ticket for API responses.
func ticketJSON(t *models.Ticket) gin.H {
	return gin.H{
		"event_address":  t.EventAddress,
		"ticket_id":      t.TicketID,
		"holder_address": t.HolderAddress,
		"minted_at":      t.MintedAt,
		"updated_at":     t.UpdatedAt,
	}
}

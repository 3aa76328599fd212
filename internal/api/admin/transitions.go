// transitions.go implements handlers for browsing the transition log and the
// aggregate platform statistics derived from it.
package admin

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ticket-registry/ticket-registry/internal/db/models"
	"github.com/ticket-registry/ticket-registry/internal/db/repositories"
	"github.com/ticket-registry/ticket-registry/internal/services"
)

// TransitionHandlers handles transition log API requests
type TransitionHandlers struct {
	transitions *repositories.TransitionRepository
	registry    *services.RegistryService
}

// NewTransitionHandlers creates a new TransitionHandlers instance
func NewTransitionHandlers(transitions *repositories.TransitionRepository, registry *services.RegistryService) *TransitionHandlers {
	return &TransitionHandlers{
		transitions: transitions,
		registry:    registry,
	}
}

func transitionJSON(t *models.Transition) gin.H {
	return gin.H{
		"id":                   t.ID,
		"record_type":          t.RecordType,
		"entity_address":       t.EntityAddress,
		"actor_address":        t.ActorAddress,
		"organization_address": t.OrganizationAddress,
		"event_address":        t.EventAddress,
		"ticket_id":            t.TicketID,
		"amount":               t.Amount,
		"fee_amount":           t.FeeAmount,
		"counterparty_address": t.CounterpartyAddress,
		"metadata":             t.Metadata,
		"created_at":           t.CreatedAt,
		"shipped_at":           t.ShippedAt,
		"archived_at":          t.ArchivedAt,
	}
}

// @Summary      List transitions
// @Description  Get a paginated, filterable view of the transition log, newest first. Every successful state change on the platform appears here exactly once.
// @Tags         Transitions
// @Security     Bearer
// @Produce      json
// @Param        record_type   query  string  false  "Exact record type, e.g. ticket.minted"
// @Param        actor         query  string  false  "Actor address"
// @Param        organization  query  string  false  "Organization address"
// @Param        event         query  string  false  "Event address"
// @Param        start_date    query  string  false  "RFC3339 lower bound (inclusive)"
// @Param        end_date      query  string  false  "RFC3339 upper bound (exclusive)"
// @Param        page          query  int     false  "Page number (default 1)"
// @Param        per_page      query  int     false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "transitions, pagination"
// @Failure      400  {object}  map[string]interface{}  "Malformed date filter"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/transitions [get]
// ListTransitionsHandler lists transition records with filters
// GET /api/v1/admin/transitions?record_type=ticket.minted&page=1
func (h *TransitionHandlers) ListTransitionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		var filters repositories.TransitionFilters
		if v := c.Query("record_type"); v != "" {
			filters.RecordType = &v
		}
		if v := c.Query("actor"); v != "" {
			filters.ActorAddress = &v
		}
		if v := c.Query("organization"); v != "" {
			filters.OrganizationAddress = &v
		}
		if v := c.Query("event"); v != "" {
			filters.EventAddress = &v
		}
		if v := c.Query("start_date"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid start_date: must be RFC3339",
				})
				return
			}
			filters.StartDate = &ts
		}
		if v := c.Query("end_date"); v != "" {
			ts, err := time.Parse(time.RFC3339, v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": "Invalid end_date: must be RFC3339",
				})
				return
			}
			filters.EndDate = &ts
		}

		offset := (page - 1) * perPage

		list, total, err := h.transitions.List(c.Request.Context(), filters, perPage, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to list transitions",
			})
			return
		}

		out := make([]gin.H, 0, len(list))
		for _, t := range list {
			out = append(out, transitionJSON(t))
		}

		c.JSON(http.StatusOK, gin.H{
			"transitions": out,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// @Summary      Get transition
// @Description  Get a single transition record by id.
// @Tags         Transitions
// @Security     Bearer
// @Produce      json
// @Param        id  path  string  true  "Transition id"
// @Success      200  {object}  map[string]interface{}  "Transition record"
// @Failure      404  {object}  map[string]interface{}  "Transition not found"
// @Router       /api/v1/admin/transitions/{id} [get]
// GetTransitionHandler returns one transition record
// GET /api/v1/admin/transitions/:id
func (h *TransitionHandlers) GetTransitionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := h.transitions.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get transition",
			})
			return
		}
		if t == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transition not found"})
			return
		}

		c.JSON(http.StatusOK, transitionJSON(t))
	}
}

// @Summary      Get platform statistics
// @Description  Returns aggregate counts for the admin dashboard: organizations, events by state and tickets minted.
// @Tags         Transitions
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  services.PlatformStats
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /api/v1/admin/stats [get]
// StatsHandler returns aggregate platform statistics
// GET /api/v1/admin/stats
func (h *TransitionHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.registry.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to compute stats",
			})
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

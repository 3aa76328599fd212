package events

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateEventRequest is the body for opening a new ticket series.
type CreateEventRequest struct {
	BaseURI     string    `json:"base_uri"`
	TicketPrice int64     `json:"ticket_price"`
	Deadline    time.Time `json:"deadline" binding:"required"`
	MaxSupply   int64     `json:"max_supply" binding:"required"`
}

// SetPriceRequest is the body for ticket price updates.
type SetPriceRequest struct {
	TicketPrice int64 `json:"ticket_price" binding:"required"`
}

// SetDeadlineRequest is the body for sale deadline updates.
type SetDeadlineRequest struct {
	Deadline time.Time `json:"deadline" binding:"required"`
}

// CreateEventHandler opens a new ticket series under the caller's organization
// @Summary Create event
// @Description Deploys and opens a new ticket series owned by the caller's organization. The deadline must be in the future and max supply positive.
// @Tags events
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body CreateEventRequest true "Event parameters"
// @Success 201 {object} map[string]interface{} "Created event"
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 403 {object} map[string]string "Caller owns no organization"
// @Failure 409 {object} map[string]string "Organization or platform is paused"
// @Router /events [post]
// POST /api/v1/events
func (h *Handlers) CreateEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		event, err := h.orgs.CreateEvent(c.Request.Context(), actorAddress(c), req.BaseURI, req.TicketPrice, req.Deadline, req.MaxSupply)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, eventJSON(event))
	}
}

// CloseEventHandler permanently closes a ticket series
// @Summary Close event
// @Description Closes a ticket series owned by the caller's organization. Closed series reject minting, resale and parameter changes for good.
// @Tags events
// @Security BearerAuth
// @Produce json
// @Param address path string true "Event address"
// @Success 200 {object} map[string]interface{} "Closed event"
// @Failure 403 {object} map[string]string "Event belongs to another organization"
// @Failure 409 {object} map[string]string "Event already closed"
// @Router /events/{address}/close [post]
// POST /api/v1/events/:address/close
func (h *Handlers) CloseEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := h.orgs.CloseEvent(c.Request.Context(), actorAddress(c), c.Param("address"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, eventJSON(event))
	}
}

// SetTicketPriceHandler updates the mint price of an open series
// @Summary Set ticket price
// @Description Updates the ticket price of an open series owned by the caller's organization. The price must be positive.
// @Tags events
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param address path string true "Event address"
// @Param request body SetPriceRequest true "New price"
// @Success 200 {object} map[string]interface{} "Updated event"
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 403 {object} map[string]string "Event belongs to another organization"
// @Failure 409 {object} map[string]string "Event is closed"
// @Router /events/{address}/price [put]
// PUT /api/v1/events/:address/price
func (h *Handlers) SetTicketPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetPriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		event, err := h.orgs.SetTicketPrice(c.Request.Context(), actorAddress(c), c.Param("address"), req.TicketPrice)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, eventJSON(event))
	}
}

// SetDeadlineHandler moves the sale deadline of an open series
// @Summary Set event deadline
// @Description Moves the sale deadline of an open series owned by the caller's organization. The new deadline must be in the future.
// @Tags events
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param address path string true "Event address"
// @Param request body SetDeadlineRequest true "New deadline"
// @Success 200 {object} map[string]interface{} "Updated event"
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 403 {object} map[string]string "Event belongs to another organization"
// @Failure 409 {object} map[string]string "Event is closed"
// @Router /events/{address}/deadline [put]
// PUT /api/v1/events/:address/deadline
func (h *Handlers) SetDeadlineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetDeadlineRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		event, err := h.orgs.SetDeadline(c.Request.Context(), actorAddress(c), c.Param("address"), req.Deadline)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, eventJSON(event))
	}
}

// GetEventHandler returns one ticket series by address
// @Summary Get event
// @Description Returns a single ticket series by its address.
// @Tags events
// @Produce json
// @Param address path string true "Event address"
// @Success 200 {object} map[string]interface{} "Event"
// @Failure 404 {object} map[string]string "Event not found"
// @Router /events/{address} [get]
// GET /api/v1/events/:address
func (h *Handlers) GetEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := h.series.GetEvent(c.Request.Context(), c.Param("address"))
		if err != nil {
			respondError(c, err)
			return
		}
		if event == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
			return
		}
		c.JSON(http.StatusOK, eventJSON(event))
	}
}

// ListEventsHandler lists ticket series
// @Summary List events
// @Description Lists ticket series, newest first. Pass organization to restrict the list to one organization's events.
// @Tags events
// @Produce json
// @Param organization query string false "Filter by organization address"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset into the result set"
// @Success 200 {object} map[string]interface{} "Event list"
// @Router /events [get]
// GET /api/v1/events
func (h *Handlers) ListEventsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if org := c.Query("organization"); org != "" {
			list, err := h.series.ListEventsByOrganization(ctx, org)
			if err != nil {
				respondError(c, err)
				return
			}
			events := make([]gin.H, 0, len(list))
			for _, e := range list {
				events = append(events, eventJSON(e))
			}
			c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
			return
		}

		limit, offset := pageParams(c)
		list, err := h.series.ListEvents(ctx, limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		events := make([]gin.H, 0, len(list))
		for _, e := range list {
			events = append(events, eventJSON(e))
		}
		c.JSON(http.StatusOK, gin.H{
			"events": events,
			"count":  len(events),
			"limit":  limit,
			"offset": offset,
		})
	}
}

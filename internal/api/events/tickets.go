package events

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ResellRequest is the body for ticket resales.
type ResellRequest struct {
	To    string `json:"to" binding:"required"`
	Price int64  `json:"price"`
}

// ticketIDParam parses the :id path segment. Returns false after writing the
// 400 response when the segment is not a number.
func ticketIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ticket id"})
		return 0, false
	}
	return id, true
}

// MintHandler purchases the next ticket of an open series for the caller
// @Summary Mint ticket
// @Description Purchases the next ticket of an open series. The ticket price is charged to the caller, split into the platform fee and the organization's share.
// @Tags tickets
// @Security BearerAuth
// @Produce json
// @Param address path string true "Event address"
// @Success 201 {object} map[string]interface{} "Minted ticket"
// @Failure 402 {object} map[string]string "Payment failed"
// @Failure 409 {object} map[string]string "Event closed, sold out or past its deadline"
// @Router /events/{address}/tickets [post]
// POST /api/v1/events/:address/tickets
func (h *Handlers) MintHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ticket, err := h.series.Mint(c.Request.Context(), actorAddress(c), c.Param("address"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ticketJSON(ticket))
	}
}

// ResellHandler transfers a ticket to a new holder against payment
// @Summary Resell ticket
// @Description Transfers one of the caller's tickets to a new holder. The buyer pays the asked price, split into the platform fee and the seller's share.
// @Tags tickets
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param address path string true "Event address"
// @Param id path int true "Ticket id"
// @Param request body ResellRequest true "Buyer and price"
// @Success 200 {object} map[string]interface{} "Transferred ticket"
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 402 {object} map[string]string "Payment failed"
// @Failure 403 {object} map[string]string "Caller does not hold the ticket"
// @Failure 409 {object} map[string]string "Event closed or past its deadline"
// @Router /events/{address}/tickets/{id}/resales [post]
// POST /api/v1/events/:address/tickets/:id/resales
func (h *Handlers) ResellHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ticketIDParam(c)
		if !ok {
			return
		}

		var req ResellRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
			return
		}

		ticket, err := h.series.Resell(c.Request.Context(), actorAddress(c), c.Param("address"), id, req.To, req.Price)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, ticketJSON(ticket))
	}
}

// ValidateTicketHandler checks whether a ticket admits entry
// @Summary Validate ticket
// @Description Reports whether the ticket exists on a series that is still open and before its deadline. Never errors on unknown events or tickets, it just reports invalid.
// @Tags tickets
// @Produce json
// @Param address path string true "Event address"
// @Param id path int true "Ticket id"
// @Success 200 {object} map[string]interface{} "Validation verdict"
// @Router /events/{address}/tickets/{id}/validation [get]
// GET /api/v1/events/:address/tickets/:id/validation
func (h *Handlers) ValidateTicketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ticketIDParam(c)
		if !ok {
			return
		}

		valid, err := h.series.ValidateTicket(c.Request.Context(), c.Param("address"), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"event_address": c.Param("address"),
			"ticket_id":     id,
			"valid":         valid,
		})
	}
}

// GetTicketHandler returns one ticket
// @Summary Get ticket
// @Description Returns a single ticket by series address and ticket id.
// @Tags tickets
// @Produce json
// @Param address path string true "Event address"
// @Param id path int true "Ticket id"
// @Success 200 {object} map[string]interface{} "Ticket"
// @Failure 404 {object} map[string]string "Ticket not found"
// @Router /events/{address}/tickets/{id} [get]
// GET /api/v1/events/:address/tickets/:id
func (h *Handlers) GetTicketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := ticketIDParam(c)
		if !ok {
			return
		}

		ticket, err := h.series.GetTicket(c.Request.Context(), c.Param("address"), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if ticket == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}
		c.JSON(http.StatusOK, ticketJSON(ticket))
	}
}

// ListTicketsHandler lists the tickets of a series
// @Summary List event tickets
// @Description Lists the minted tickets of a series in mint order.
// @Tags tickets
// @Produce json
// @Param address path string true "Event address"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset into the result set"
// @Success 200 {object} map[string]interface{} "Ticket list"
// @Router /events/{address}/tickets [get]
// GET /api/v1/events/:address/tickets
func (h *Handlers) ListTicketsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pageParams(c)
		list, err := h.series.ListTickets(c.Request.Context(), c.Param("address"), limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		tickets := make([]gin.H, 0, len(list))
		for _, t := range list {
			tickets = append(tickets, ticketJSON(t))
		}
		c.JSON(http.StatusOK, gin.H{
			"tickets": tickets,
			"count":   len(tickets),
			"limit":   limit,
			"offset":  offset,
		})
	}
}

// ListMyTicketsHandler lists the caller's tickets across all series
// @Summary List own tickets
// @Description Lists every ticket currently held by the authenticated caller, newest first.
// @Tags tickets
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{} "Ticket list"
// @Router /tickets/mine [get]
// GET /api/v1/tickets/mine
func (h *Handlers) ListMyTicketsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := h.series.ListTicketsByHolder(c.Request.Context(), actorAddress(c))
		if err != nil {
			respondError(c, err)
			return
		}
		tickets := make([]gin.H, 0, len(list))
		for _, t := range list {
			tickets = append(tickets, ticketJSON(t))
		}
		c.JSON(http.StatusOK, gin.H{"tickets": tickets, "count": len(tickets)})
	}
}

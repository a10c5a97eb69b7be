package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/services"
)

type TicketHandler struct {
	app           *pocketbase.PocketBase
	ticketService *services.TicketService
}

func NewTicketHandler(app *pocketbase.PocketBase, ticketService *services.TicketService) *TicketHandler {
	return &TicketHandler{
		app:           app,
		ticketService: ticketService,
	}
}

// Events - Browse non-cancelled events
func (h *TicketHandler) Events(e *core.RequestEvent) error {
	events, err := h.ticketService.Events(e.Request.Context())
	if err != nil {
		return apis.NewApiError(500, "Failed to load events", nil)
	}
	return e.JSON(http.StatusOK, map[string]any{"events": events})
}

// Event - One event's details
func (h *TicketHandler) Event(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	event, err := h.ticketService.Event(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewNotFoundError("Event not found", nil)
	}
	return e.JSON(http.StatusOK, event)
}

// Tiers - Pricing tiers for an event
func (h *TicketHandler) Tiers(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	tiers, err := h.ticketService.TiersByEvent(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewApiError(500, "Failed to load pricing tiers", nil)
	}
	return e.JSON(http.StatusOK, map[string]any{"tiers": tiers})
}

// MyTickets - The caller's live tickets
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	tickets, err := h.ticketService.OwnedBy(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewApiError(500, "Failed to load tickets", nil)
	}
	return e.JSON(http.StatusOK, map[string]any{"tickets": tickets})
}

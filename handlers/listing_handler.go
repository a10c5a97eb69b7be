package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-market/services"
)

type ListingHandler struct {
	app            *pocketbase.PocketBase
	listingService *services.ListingService
}

func NewListingHandler(app *pocketbase.PocketBase, listingService *services.ListingService) *ListingHandler {
	return &ListingHandler{
		app:            app,
		listingService: listingService,
	}
}

// Create - List an owned ticket for resale
func (h *ListingHandler) Create(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TicketID    string  `json:"ticket_id"`
		AskingPrice float64 `json:"asking_price"`
		Description string  `json:"description"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	listing, err := h.listingService.Create(
		e.Request.Context(),
		e.Auth.Id,
		req.TicketID,
		decimal.NewFromFloat(req.AskingPrice),
		req.Description,
	)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, listing)
}

// Cancel - Withdraw an active listing
func (h *ListingHandler) Cancel(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	listingID := e.Request.PathValue("listingId")
	if err := h.listingService.Cancel(e.Request.Context(), e.Auth.Id, listingID); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Listing cancelled"})
}

// ByEvent - Active listings for an event, cheapest first
func (h *ListingHandler) ByEvent(e *core.RequestEvent) error {
	eventID := e.Request.PathValue("eventId")

	listings, err := h.listingService.ByEvent(e.Request.Context(), eventID)
	if err != nil {
		return apis.NewApiError(500, "Failed to load listings", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"listings": listings})
}

// Mine - The caller's own listings
func (h *ListingHandler) Mine(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	listings, err := h.listingService.BySeller(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewApiError(500, "Failed to load listings", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"listings": listings})
}

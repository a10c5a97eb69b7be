package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/internal/services/payproc"
	"ticket-market/services"
)

type PurchaseHandler struct {
	app             *pocketbase.PocketBase
	purchaseService *services.PurchaseService
}

func NewPurchaseHandler(app *pocketbase.PocketBase, purchaseService *services.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{
		app:             app,
		purchaseService: purchaseService,
	}
}

// StartSession - Open a purchase session for a tier or listing
func (h *PurchaseHandler) StartSession(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		TierID     string `json:"tier_id"`
		ListingID  string `json:"listing_id"`
		Quantity   int    `json:"quantity"`
		MethodHint string `json:"method_hint"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	session, err := h.purchaseService.StartSession(e.Request.Context(), sessionContext(e), services.Selection{
		TierID:     req.TierID,
		ListingID:  req.ListingID,
		Quantity:   req.Quantity,
		MethodHint: req.MethodHint,
	})
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, session.Snapshot())
}

// GetSession - Current session state
func (h *PurchaseHandler) GetSession(e *core.RequestEvent) error {
	session, err := h.ownedSession(e)
	if err != nil {
		return err
	}
	return e.JSON(http.StatusOK, session.Snapshot())
}

// UpdateSelection - Correct the selection while still choosing
func (h *PurchaseHandler) UpdateSelection(e *core.RequestEvent) error {
	session, err := h.ownedSession(e)
	if err != nil {
		return err
	}

	var req struct {
		TierID     string `json:"tier_id"`
		ListingID  string `json:"listing_id"`
		Quantity   int    `json:"quantity"`
		MethodHint string `json:"method_hint"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	err = h.purchaseService.UpdateSelection(e.Request.Context(), session.ID, services.Selection{
		TierID:     req.TierID,
		ListingID:  req.ListingID,
		Quantity:   req.Quantity,
		MethodHint: req.MethodHint,
	})
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, session.Snapshot())
}

// Confirm - Validate the selection and provision pending transactions
func (h *PurchaseHandler) Confirm(e *core.RequestEvent) error {
	session, err := h.ownedSession(e)
	if err != nil {
		return err
	}

	if err := h.purchaseService.Confirm(e.Request.Context(), session.ID); err != nil {
		view := session.Snapshot()
		return e.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":   err.Error(),
			"session": view,
		})
	}

	return e.JSON(http.StatusOK, session.Snapshot())
}

// SubmitPayment - Settle the session's transactions
func (h *PurchaseHandler) SubmitPayment(e *core.RequestEvent) error {
	session, err := h.ownedSession(e)
	if err != nil {
		return err
	}

	var req struct {
		Method string `json:"method"`
		Card   *struct {
			Name     string `json:"name"`
			Number   string `json:"number"`
			ExpMonth string `json:"exp_month"`
			ExpYear  string `json:"exp_year"`
			CVC      string `json:"cvc"`
		} `json:"card"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	var card *payproc.CardDetails
	if req.Card != nil {
		card = &payproc.CardDetails{
			Name:     req.Card.Name,
			Number:   req.Card.Number,
			ExpMonth: req.Card.ExpMonth,
			ExpYear:  req.Card.ExpYear,
			CVC:      req.Card.CVC,
		}
	}

	if err := h.purchaseService.SubmitPayment(e.Request.Context(), session.ID, req.Method, card); err != nil {
		view := session.Snapshot()
		return e.JSON(http.StatusUnprocessableEntity, map[string]any{
			"error":   err.Error(),
			"session": view,
		})
	}

	return e.JSON(http.StatusOK, session.Snapshot())
}

// Cancel - Abandon the session before payment capture starts
func (h *PurchaseHandler) Cancel(e *core.RequestEvent) error {
	session, err := h.ownedSession(e)
	if err != nil {
		return err
	}

	if err := h.purchaseService.Cancel(e.Request.Context(), session.ID); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Session cancelled"})
}

// Receipt - The cached post-purchase receipt
func (h *PurchaseHandler) Receipt(e *core.RequestEvent) error {
	session, err := h.ownedSession(e)
	if err != nil {
		return err
	}

	receipt, err := h.purchaseService.Receipt(e.Request.Context(), session.ID)
	if err != nil {
		return apis.NewNotFoundError("Receipt not available", nil)
	}

	return e.JSON(http.StatusOK, receipt)
}

func (h *PurchaseHandler) ownedSession(e *core.RequestEvent) (*services.PurchaseSession, error) {
	if e.Auth == nil {
		return nil, apis.NewUnauthorizedError("Unauthorized", nil)
	}

	sessionID := e.Request.PathValue("sessionId")
	session, err := h.purchaseService.Session(sessionID)
	if err != nil {
		return nil, apis.NewNotFoundError("Session not found", nil)
	}
	if session.User.UserID != e.Auth.Id {
		return nil, apis.NewForbiddenError("Access denied", nil)
	}
	return session, nil
}

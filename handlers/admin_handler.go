package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/security"
	"ticket-market/services"
)

type AdminHandler struct {
	app            *pocketbase.PocketBase
	ticketService  *services.TicketService
	balanceService *services.BalanceService
	resolver       *services.Resolver
	store          *services.RecordStore
	adminKeyHash   string
}

func NewAdminHandler(app *pocketbase.PocketBase, ticketService *services.TicketService, balanceService *services.BalanceService, resolver *services.Resolver, store *services.RecordStore, adminKeyHash string) *AdminHandler {
	return &AdminHandler{
		app:            app,
		ticketService:  ticketService,
		balanceService: balanceService,
		resolver:       resolver,
		store:          store,
		adminKeyHash:   adminKeyHash,
	}
}

// GenerateTickets - Batch-mint unsold tickets under a tier
func (h *AdminHandler) GenerateTickets(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	var req struct {
		TierID string `json:"tier_id"`
		Count  int    `json:"count"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Count < 1 || req.Count > 1000 {
		return apis.NewBadRequestError("Count must be between 1 and 1000", nil)
	}

	tickets, err := h.ticketService.GenerateBatch(e.Request.Context(), req.TierID, req.Count)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, map[string]any{
		"generated": len(tickets),
		"tickets":   tickets,
	})
}

// RefundTransaction - Reverse a completed transaction
func (h *AdminHandler) RefundTransaction(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	txnID := e.Request.PathValue("transactionId")
	txn, err := h.store.LoadTransaction(e.Request.Context(), txnID)
	if err != nil {
		return apis.NewNotFoundError("Transaction not found", nil)
	}

	refunded, err := h.resolver.RefundTransaction(e.Request.Context(), txn)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, refunded)
}

// AuditBalance - Recompute a user's balance from the ledger
func (h *AdminHandler) AuditBalance(e *core.RequestEvent) error {
	if err := h.requireAdmin(e); err != nil {
		return err
	}

	userID := e.Request.PathValue("userId")
	ok, computed, err := h.balanceService.Audit(e.Request.Context(), userID)
	if err != nil {
		return apis.NewApiError(500, "Audit failed", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"consistent": ok,
		"computed":   computed.String(),
	})
}

// requireAdmin accepts either an authenticated admin user or the
// operator API key.
func (h *AdminHandler) requireAdmin(e *core.RequestEvent) error {
	if e.Auth != nil && e.Auth.GetBool("admin") {
		return nil
	}

	key := e.Request.Header.Get("X-Admin-Key")
	if key != "" && h.adminKeyHash != "" && security.VerifyAdminKey(h.adminKeyHash, key) {
		return nil
	}

	return apis.NewForbiddenError("Admin access required", nil)
}

package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/services"
)

type BalanceHandler struct {
	app            *pocketbase.PocketBase
	balanceService *services.BalanceService
}

func NewBalanceHandler(app *pocketbase.PocketBase, balanceService *services.BalanceService) *BalanceHandler {
	return &BalanceHandler{
		app:            app,
		balanceService: balanceService,
	}
}

// Current - The caller's current balance
func (h *BalanceHandler) Current(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	balance, err := h.balanceService.Current(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewApiError(500, "Failed to load balance", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"balance": balance.String()})
}

// History - The caller's ledger entries, newest first
func (h *BalanceHandler) History(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	entries, err := h.balanceService.History(e.Request.Context(), e.Auth.Id)
	if err != nil {
		return apis.NewApiError(500, "Failed to load history", nil)
	}

	return e.JSON(http.StatusOK, map[string]any{"entries": entries})
}

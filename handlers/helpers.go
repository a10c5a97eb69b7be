package handlers

import (
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/internal/status"
	"ticket-market/models"
)

// apiError maps a domain error onto the HTTP surface. Actionable errors
// are the caller's to fix; retryable ones report service trouble.
func apiError(err error) error {
	if status.Retryable(err) {
		return apis.NewApiError(503, err.Error(), nil)
	}
	return apis.NewBadRequestError(err.Error(), nil)
}

// sessionContext builds the immutable per-request identity from the
// authenticated record.
func sessionContext(e *core.RequestEvent) models.SessionContext {
	return models.SessionContext{
		UserID:   e.Auth.Id,
		Email:    e.Auth.GetString("email"),
		Name:     e.Auth.GetString("name"),
		Admin:    e.Auth.GetBool("admin"),
		IssuedAt: e.Auth.GetDateTime("updated").Time(),
	}
}

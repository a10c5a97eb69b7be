package payproc

import (
	"context"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment processor backend.
type Provider string

const (
	ProviderStripeish Provider = "stripeish"
	ProviderMock      Provider = "mock"
)

// SecretDelimiter is the marker every pre-capture client secret carries.
// A provisioning handle without it must never reach the processor.
const SecretDelimiter = "_secret_"

// Intent statuses reported by the processor.
const (
	IntentRequiresConfirmation = "requires_confirmation"
	IntentSucceeded            = "succeeded"
	IntentFailed               = "failed"
)

// Intent is a processor-side pending or captured charge. ClientSecret is
// the pre-capture provisioning handle; ID is the post-capture payment
// identifier. Callers must not conflate the two.
type Intent struct {
	ID           string          `json:"id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Status       string          `json:"status"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Description  string          `json:"description,omitempty"`
}

// CardDetails carries raw card input for a capture call. It is never
// persisted.
type CardDetails struct {
	Name     string `json:"name"`
	Number   string `json:"number"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	CVC      string `json:"cvc"`
}

// Notification is an asynchronous capture-result push from the processor.
type Notification struct {
	IntentID string          `json:"intent_id"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
}

// Processor is the common interface for card payment providers.
type Processor interface {
	// GetProvider returns the processor provider type
	GetProvider() Provider

	// CreateIntent opens a pending charge and returns its client secret
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency, description string) (*Intent, error)

	// Capture submits card details against a client secret
	Capture(ctx context.Context, clientSecret string, card *CardDetails) (*Intent, error)

	// RetrieveIntent reads the authoritative status of a captured charge
	// by its post-capture identifier. Safe to retry.
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)

	// Refund returns funds for a captured charge
	Refund(ctx context.Context, intentID string, amount decimal.Decimal) error

	// SetNotificationChannel sets the channel for async capture results
	SetNotificationChannel(ch chan *Notification)

	// Close gracefully closes any connections
	Close(ctx context.Context) error
}

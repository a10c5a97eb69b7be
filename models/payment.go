package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MethodBalance = "balance"
	MethodCard    = "card"
)

// PaymentOutcome is the normalized result of exactly one capture path.
type PaymentOutcome struct {
	Method            string          `json:"method"`
	AmountCharged     decimal.Decimal `json:"amount_charged"`
	ExternalReference string          `json:"external_reference"`
	// ResultingBalance is set on the balance path only.
	ResultingBalance *decimal.Decimal `json:"resulting_balance,omitempty"`
}

// PurchaseReceipt is a read-side projection of a completed purchase. It is
// assembled once when the session reaches its terminal success state and
// never mutated afterwards.
type PurchaseReceipt struct {
	TransactionNumbers []string        `json:"transaction_numbers"`
	EventName          string          `json:"event_name"`
	Venue              string          `json:"venue"`
	TierName           string          `json:"tier_name,omitempty"`
	Section            string          `json:"section,omitempty"`
	TicketNumbers      []string        `json:"ticket_numbers"`
	Method             string          `json:"method"`
	AmountCharged      decimal.Decimal `json:"amount_charged"`
	ResultingBalance   *decimal.Decimal `json:"resulting_balance,omitempty"`
	CompletedAt        time.Time       `json:"completed_at"`
}

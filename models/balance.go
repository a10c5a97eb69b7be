package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EntryCredit     = "CREDIT"
	EntryDebit      = "DEBIT"
	EntryRefund     = "REFUND"
	EntryWithdrawal = "WITHDRAWAL"
)

// UserBalance is mutated only through completed transactions and refunds;
// the signed sum of a user's BalanceEntry history equals the balance.
type UserBalance struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// BalanceEntry is an immutable record of one balance mutation.
type BalanceEntry struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ReferenceType string          `json:"reference_type,omitempty"` // Transaction, Listing, Refund
	ReferenceID   string          `json:"reference_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Signed returns the entry's contribution to the running balance.
func (e *BalanceEntry) Signed() decimal.Decimal {
	switch e.Type {
	case EntryDebit, EntryWithdrawal:
		return e.Amount.Neg()
	default:
		return e.Amount
	}
}

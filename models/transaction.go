package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxnPrimaryPurchase   = "PRIMARY_PURCHASE"
	TxnSecondaryPurchase = "SECONDARY_PURCHASE"
	TxnRefund            = "REFUND"

	TxnPending   = "PENDING"
	TxnCompleted = "COMPLETED"
	TxnFailed    = "FAILED"
	TxnRefunded  = "REFUNDED"
)

// Transaction records money movement for one ticket between a seller (or
// the platform, for primary sales) and a buyer. PaymentHandle carries the
// processor's pre-capture client secret while PENDING and is rewritten to
// the post-capture payment identifier on completion; the two are never
// interchangeable.
type Transaction struct {
	ID            string          `json:"id"`
	Number        string          `json:"number"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id,omitempty"`
	TicketID      string          `json:"ticket_id"`
	ListingID     string          `json:"listing_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentHandle string          `json:"payment_handle,omitempty"`
	Method        string          `json:"method,omitempty"` // balance, card
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// Primary reports whether the transaction sells platform inventory rather
// than a resale listing.
func (t *Transaction) Primary() bool {
	return t.Type == TxnPrimaryPurchase
}

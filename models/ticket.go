package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TicketAvailable = "AVAILABLE"
	TicketPurchased = "PURCHASED"
	TicketListed    = "LISTED"
	TicketResold    = "RESOLD"
	TicketCancelled = "CANCELLED"
)

type Ticket struct {
	ID            string          `json:"id"`
	EventID       string          `json:"event_id"`
	TierID        string          `json:"tier_id"`
	OwnerID       string          `json:"owner_id,omitempty"` // empty while AVAILABLE
	Number        string          `json:"number"`
	OriginalPrice decimal.Decimal `json:"original_price"` // first sale price, immutable
	CurrentPrice  decimal.Decimal `json:"current_price"`  // resale asking price, never above original
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	PurchasedAt   *time.Time      `json:"purchased_at,omitempty"`
}

const (
	ListingActive    = "ACTIVE"
	ListingSold      = "SOLD"
	ListingCancelled = "CANCELLED"
)

type Listing struct {
	ID          string          `json:"id"`
	TicketID    string          `json:"ticket_id"`
	SellerID    string          `json:"seller_id"`
	AskingPrice decimal.Decimal `json:"asking_price"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status"`
	ListedAt    time.Time       `json:"listed_at"`
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Venue            string    `json:"venue"`
	Category         string    `json:"category"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	Status           string    `json:"status"` // scheduled, ongoing, completed, cancelled, postponed
	TotalTickets     int       `json:"total_tickets"`
	AvailableTickets int       `json:"available_tickets"`
}

const (
	EventScheduled = "scheduled"
	EventOngoing   = "ongoing"
	EventCompleted = "completed"
	EventCancelled = "cancelled"
	EventPostponed = "postponed"
)

type PricingTier struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Name      string          `json:"name"`
	Section   string          `json:"section,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Available int             `json:"available"`
}

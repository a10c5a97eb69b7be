package services

import (
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-market/models"
)

// Record field access helpers. Money is stored as a plain number field and
// surfaces as decimal everywhere above the persistence boundary.

func recDecimal(r *core.Record, field string) decimal.Decimal {
	return decimal.NewFromFloat(r.GetFloat(field))
}

func eventFromRecord(r *core.Record) *models.Event {
	return &models.Event{
		ID:               r.Id,
		Name:             r.GetString("name"),
		Description:      r.GetString("description"),
		Venue:            r.GetString("venue"),
		Category:         r.GetString("category"),
		StartTime:        r.GetDateTime("start_time").Time(),
		EndTime:          r.GetDateTime("end_time").Time(),
		Status:           r.GetString("status"),
		TotalTickets:     r.GetInt("total_tickets"),
		AvailableTickets: r.GetInt("available_tickets"),
	}
}

func tierFromRecord(r *core.Record) *models.PricingTier {
	return &models.PricingTier{
		ID:        r.Id,
		EventID:   r.GetString("event"),
		Name:      r.GetString("name"),
		Section:   r.GetString("section"),
		Price:     recDecimal(r, "price"),
		Quantity:  r.GetInt("quantity"),
		Available: r.GetInt("available"),
	}
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	t := &models.Ticket{
		ID:            r.Id,
		EventID:       r.GetString("event"),
		TierID:        r.GetString("tier"),
		OwnerID:       r.GetString("owner"),
		Number:        r.GetString("number"),
		OriginalPrice: recDecimal(r, "original_price"),
		CurrentPrice:  recDecimal(r, "current_price"),
		Status:        r.GetString("status"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
	if dt := r.GetDateTime("purchased_at"); !dt.IsZero() {
		ts := dt.Time()
		t.PurchasedAt = &ts
	}
	return t
}

func listingFromRecord(r *core.Record) *models.Listing {
	return &models.Listing{
		ID:          r.Id,
		TicketID:    r.GetString("ticket"),
		SellerID:    r.GetString("seller"),
		AskingPrice: recDecimal(r, "asking_price"),
		Description: r.GetString("description"),
		Status:      r.GetString("status"),
		ListedAt:    r.GetDateTime("created").Time(),
	}
}

func txnFromRecord(r *core.Record) *models.Transaction {
	t := &models.Transaction{
		ID:            r.Id,
		Number:        r.GetString("number"),
		Type:          r.GetString("type"),
		Status:        r.GetString("status"),
		BuyerID:       r.GetString("buyer"),
		SellerID:      r.GetString("seller"),
		TicketID:      r.GetString("ticket"),
		ListingID:     r.GetString("listing"),
		Amount:        recDecimal(r, "amount"),
		PaymentHandle: r.GetString("payment_handle"),
		Method:        r.GetString("method"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
	if dt := r.GetDateTime("completed_at"); !dt.IsZero() {
		ts := dt.Time()
		t.CompletedAt = &ts
	}
	return t
}

func balanceFromRecord(r *core.Record) *models.UserBalance {
	return &models.UserBalance{
		UserID:    r.GetString("user"),
		Balance:   recDecimal(r, "balance"),
		UpdatedAt: r.GetDateTime("updated").Time(),
	}
}

func entryFromRecord(r *core.Record) *models.BalanceEntry {
	return &models.BalanceEntry{
		ID:            r.Id,
		UserID:        r.GetString("user"),
		Type:          r.GetString("type"),
		Amount:        recDecimal(r, "amount"),
		Description:   r.GetString("description"),
		ReferenceType: r.GetString("reference_type"),
		ReferenceID:   r.GetString("reference_id"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
}

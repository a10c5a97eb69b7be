package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/models"
)

// RecordStore is the persistence seam the purchase pipeline works
// through. The pipeline never touches records directly so tests can swap
// the store out.
type RecordStore struct {
	app core.App
}

func NewRecordStore(app core.App) *RecordStore {
	return &RecordStore{app: app}
}

func (s *RecordStore) LoadTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	rec, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, fmt.Errorf("store: ticket %s: %w", ticketID, err)
	}
	return ticketFromRecord(rec), nil
}

func (s *RecordStore) LoadListing(ctx context.Context, listingID string) (*models.Listing, error) {
	rec, err := s.app.FindRecordById("listings", listingID)
	if err != nil {
		return nil, fmt.Errorf("store: listing %s: %w", listingID, err)
	}
	return listingFromRecord(rec), nil
}

func (s *RecordStore) LoadTransaction(ctx context.Context, txnID string) (*models.Transaction, error) {
	rec, err := s.app.FindRecordById("transactions", txnID)
	if err != nil {
		return nil, fmt.Errorf("store: transaction %s: %w", txnID, err)
	}
	return txnFromRecord(rec), nil
}

// AvailableTickets returns up to limit unsold tickets under a tier.
func (s *RecordStore) AvailableTickets(ctx context.Context, tierID string, limit int) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"tier = {:tier} && status = {:available}",
		"+created",
		limit,
		0,
		dbx.Params{"tier": tierID, "available": models.TicketAvailable},
	)
	if err != nil {
		return nil, fmt.Errorf("store: available tickets for tier %s: %w", tierID, err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, ticketFromRecord(r))
	}
	return tickets, nil
}

// SaveTransaction inserts or updates a transaction record and returns
// the stored form.
func (s *RecordStore) SaveTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	var rec *core.Record
	if txn.ID != "" {
		existing, err := s.app.FindRecordById("transactions", txn.ID)
		if err != nil {
			return nil, fmt.Errorf("store: save transaction %s: %w", txn.ID, err)
		}
		rec = existing
	} else {
		collection, err := s.app.FindCollectionByNameOrId("transactions")
		if err != nil {
			return nil, fmt.Errorf("store: transactions collection: %w", err)
		}
		rec = core.NewRecord(collection)
	}

	rec.Set("number", txn.Number)
	rec.Set("type", txn.Type)
	rec.Set("status", txn.Status)
	rec.Set("buyer", txn.BuyerID)
	rec.Set("seller", txn.SellerID)
	rec.Set("ticket", txn.TicketID)
	rec.Set("listing", txn.ListingID)
	rec.Set("amount", txn.Amount.InexactFloat64())
	rec.Set("payment_handle", txn.PaymentHandle)
	rec.Set("method", txn.Method)
	if txn.CompletedAt != nil {
		rec.Set("completed_at", txn.CompletedAt.Format(time.RFC3339))
	}

	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return nil, fmt.Errorf("store: save transaction: %w", err)
	}
	return txnFromRecord(rec), nil
}

// MarkTicketSold moves a ticket to its new owner after a completed sale.
// Primary sales land in PURCHASED, secondary sales in RESOLD.
func (s *RecordStore) MarkTicketSold(ctx context.Context, ticketID, ownerID, newStatus string, soldAt time.Time) error {
	rec, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return fmt.Errorf("store: mark sold: ticket %s: %w", ticketID, err)
	}
	rec.Set("owner", ownerID)
	rec.Set("status", newStatus)
	rec.Set("purchased_at", soldAt.Format(time.RFC3339))
	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("store: mark sold: save: %w", err)
	}
	return nil
}

// MarkListingSold closes out an active listing after a completed resale.
func (s *RecordStore) MarkListingSold(ctx context.Context, listingID string) error {
	rec, err := s.app.FindRecordById("listings", listingID)
	if err != nil {
		return fmt.Errorf("store: mark listing sold: %s: %w", listingID, err)
	}
	rec.Set("status", models.ListingSold)
	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("store: mark listing sold: save: %w", err)
	}
	return nil
}

// DecrementAvailability reduces the tier and event availability counters
// after a primary sale.
func (s *RecordStore) DecrementAvailability(ctx context.Context, tierID string) error {
	tierRec, err := s.app.FindRecordById("pricing_tiers", tierID)
	if err != nil {
		return fmt.Errorf("store: decrement: tier %s: %w", tierID, err)
	}

	avail := tierRec.GetInt("available")
	if avail > 0 {
		tierRec.Set("available", avail-1)
	}
	if err := s.app.SaveWithContext(ctx, tierRec); err != nil {
		return fmt.Errorf("store: decrement: save tier: %w", err)
	}

	eventRec, err := s.app.FindRecordById("events", tierRec.GetString("event"))
	if err != nil {
		return fmt.Errorf("store: decrement: event: %w", err)
	}
	eventAvail := eventRec.GetInt("available_tickets")
	if eventAvail > 0 {
		eventRec.Set("available_tickets", eventAvail-1)
	}
	if err := s.app.SaveWithContext(ctx, eventRec); err != nil {
		return fmt.Errorf("store: decrement: save event: %w", err)
	}
	return nil
}

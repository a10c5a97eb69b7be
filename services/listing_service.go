package services

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticket-market/models"
)

// listingApp is the slice of core.App the listing service touches.
type listingApp interface {
	FindRecordById(collectionModelOrIdentifier any, recordId string, optFilters ...func(q *dbx.SelectQuery) error) (*core.Record, error)
	FindRecordsByFilter(collectionModelOrIdentifier any, filter string, sort string, limit int, offset int, params ...dbx.Params) ([]*core.Record, error)
	FindCollectionByNameOrId(nameOrId string) (*core.Collection, error)
	SaveWithContext(ctx context.Context, model core.Model) error
}

// ListingService manages the secondary market: putting owned tickets up
// for resale and taking them back down.
type ListingService struct {
	app listingApp
}

func NewListingService(app listingApp) *ListingService {
	return &ListingService{app: app}
}

func (s *ListingService) Listing(ctx context.Context, listingID string) (*models.Listing, error) {
	rec, err := s.app.FindRecordById("listings", listingID)
	if err != nil {
		return nil, fmt.Errorf("listing: %s: %w", listingID, err)
	}
	return listingFromRecord(rec), nil
}

// Create lists a ticket for resale. The seller must own the ticket, the
// ticket must be in a resellable state, at most one active listing may
// exist per ticket, and the asking price is capped at the original face
// value.
func (s *ListingService) Create(ctx context.Context, sellerID, ticketID string, askingPrice decimal.Decimal, description string) (*models.Listing, error) {
	ticketRec, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, fmt.Errorf("listing: create: ticket %s: %w", ticketID, err)
	}

	if ticketRec.GetString("owner") != sellerID {
		return nil, fmt.Errorf("listing: create: ticket %s not owned by seller", ticketID)
	}
	if ticketRec.GetString("status") != models.TicketPurchased {
		return nil, fmt.Errorf("listing: create: ticket %s not eligible for resale", ticketID)
	}

	originalPrice := recDecimal(ticketRec, "original_price")
	if err := ValidateResalePrice(askingPrice, originalPrice); err != nil {
		return nil, err
	}

	active, err := s.app.FindRecordsByFilter(
		"listings",
		"ticket = {:ticket} && status = {:active}",
		"",
		1,
		0,
		dbx.Params{"ticket": ticketID, "active": models.ListingActive},
	)
	if err != nil {
		return nil, fmt.Errorf("listing: create: active check: %w", err)
	}
	if len(active) > 0 {
		return nil, fmt.Errorf("listing: create: ticket %s already listed", ticketID)
	}

	// A cancelled listing for the same ticket and seller is reactivated in
	// place with the new terms instead of inserting a second record.
	cancelled, err := s.app.FindRecordsByFilter(
		"listings",
		"ticket = {:ticket} && seller = {:seller} && status = {:cancelled}",
		"-created",
		1,
		0,
		dbx.Params{"ticket": ticketID, "seller": sellerID, "cancelled": models.ListingCancelled},
	)
	if err != nil {
		return nil, fmt.Errorf("listing: create: cancelled check: %w", err)
	}

	var rec *core.Record
	if len(cancelled) > 0 {
		rec = cancelled[0]
	} else {
		collection, err := s.app.FindCollectionByNameOrId("listings")
		if err != nil {
			return nil, fmt.Errorf("listing: create: collection: %w", err)
		}
		rec = core.NewRecord(collection)
		rec.Set("ticket", ticketID)
		rec.Set("seller", sellerID)
	}

	rec.Set("asking_price", RoundToCents(askingPrice).InexactFloat64())
	rec.Set("description", description)
	rec.Set("status", models.ListingActive)
	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return nil, fmt.Errorf("listing: create: save: %w", err)
	}

	ticketRec.Set("status", models.TicketListed)
	ticketRec.Set("current_price", RoundToCents(askingPrice).InexactFloat64())
	if err := s.app.SaveWithContext(ctx, ticketRec); err != nil {
		return nil, fmt.Errorf("listing: create: mark ticket listed: %w", err)
	}

	return listingFromRecord(rec), nil
}

// Cancel withdraws an active listing and returns the ticket to the
// seller's hands at its original price. A cancelled listing leaves the
// ticket free to be listed again later.
func (s *ListingService) Cancel(ctx context.Context, sellerID, listingID string) error {
	rec, err := s.app.FindRecordById("listings", listingID)
	if err != nil {
		return fmt.Errorf("listing: cancel: %s: %w", listingID, err)
	}

	if rec.GetString("seller") != sellerID {
		return fmt.Errorf("listing: cancel: %s not owned by seller", listingID)
	}
	if rec.GetString("status") != models.ListingActive {
		return fmt.Errorf("listing: cancel: %s not active", listingID)
	}

	rec.Set("status", models.ListingCancelled)
	if err := s.app.SaveWithContext(ctx, rec); err != nil {
		return fmt.Errorf("listing: cancel: save: %w", err)
	}

	ticketRec, err := s.app.FindRecordById("tickets", rec.GetString("ticket"))
	if err != nil {
		return fmt.Errorf("listing: cancel: ticket: %w", err)
	}
	ticketRec.Set("status", models.TicketPurchased)
	ticketRec.Set("current_price", ticketRec.GetFloat("original_price"))
	if err := s.app.SaveWithContext(ctx, ticketRec); err != nil {
		return fmt.Errorf("listing: cancel: restore ticket: %w", err)
	}

	return nil
}

// ByEvent returns active listings for an event, cheapest first.
func (s *ListingService) ByEvent(ctx context.Context, eventID string) ([]*models.Listing, error) {
	records, err := s.app.FindRecordsByFilter(
		"listings",
		"ticket.event = {:event} && status = {:active}",
		"+asking_price",
		200,
		0,
		dbx.Params{"event": eventID, "active": models.ListingActive},
	)
	if err != nil {
		return nil, fmt.Errorf("listing: by event %s: %w", eventID, err)
	}

	listings := make([]*models.Listing, 0, len(records))
	for _, r := range records {
		listings = append(listings, listingFromRecord(r))
	}
	return listings, nil
}

// CheapestByEvent returns the lowest-priced active listing for an event,
// or nil when none exists.
func (s *ListingService) CheapestByEvent(ctx context.Context, eventID string) (*models.Listing, error) {
	listings, err := s.ByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, nil
	}
	return listings[0], nil
}

// BySeller returns all listings a user has created, newest first.
func (s *ListingService) BySeller(ctx context.Context, sellerID string) ([]*models.Listing, error) {
	records, err := s.app.FindRecordsByFilter(
		"listings",
		"seller = {:seller}",
		"-created",
		200,
		0,
		dbx.Params{"seller": sellerID},
	)
	if err != nil {
		return nil, fmt.Errorf("listing: by seller %s: %w", sellerID, err)
	}

	listings := make([]*models.Listing, 0, len(records))
	for _, r := range records {
		listings = append(listings, listingFromRecord(r))
	}
	return listings, nil
}

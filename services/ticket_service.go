package services

import (
	"context"
	"fmt"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"

	"ticket-market/models"
	"ticket-market/utils"
)

// TicketService covers the catalog side of the market: events, pricing
// tiers, and the tickets minted under them.
type TicketService struct {
	app core.App
}

func NewTicketService(app core.App) *TicketService {
	return &TicketService{app: app}
}

func (s *TicketService) Event(ctx context.Context, eventID string) (*models.Event, error) {
	rec, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		return nil, fmt.Errorf("ticket: event %s: %w", eventID, err)
	}
	return eventFromRecord(rec), nil
}

func (s *TicketService) Events(ctx context.Context) ([]*models.Event, error) {
	records, err := s.app.FindRecordsByFilter(
		"events",
		"status != {:cancelled}",
		"+start_time",
		200,
		0,
		dbx.Params{"cancelled": models.EventCancelled},
	)
	if err != nil {
		return nil, fmt.Errorf("ticket: list events: %w", err)
	}

	events := make([]*models.Event, 0, len(records))
	for _, r := range records {
		events = append(events, eventFromRecord(r))
	}
	return events, nil
}

func (s *TicketService) Tier(ctx context.Context, tierID string) (*models.PricingTier, error) {
	rec, err := s.app.FindRecordById("pricing_tiers", tierID)
	if err != nil {
		return nil, fmt.Errorf("ticket: tier %s: %w", tierID, err)
	}
	return tierFromRecord(rec), nil
}

func (s *TicketService) TiersByEvent(ctx context.Context, eventID string) ([]*models.PricingTier, error) {
	records, err := s.app.FindRecordsByFilter(
		"pricing_tiers",
		"event = {:event}",
		"+price",
		100,
		0,
		dbx.Params{"event": eventID},
	)
	if err != nil {
		return nil, fmt.Errorf("ticket: tiers for event %s: %w", eventID, err)
	}

	tiers := make([]*models.PricingTier, 0, len(records))
	for _, r := range records {
		tiers = append(tiers, tierFromRecord(r))
	}
	return tiers, nil
}

func (s *TicketService) Ticket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	rec, err := s.app.FindRecordById("tickets", ticketID)
	if err != nil {
		return nil, fmt.Errorf("ticket: %s: %w", ticketID, err)
	}
	return ticketFromRecord(rec), nil
}

// OwnedBy returns the live tickets held by a user.
func (s *TicketService) OwnedBy(ctx context.Context, userID string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		"owner = {:owner} && status != {:cancelled}",
		"-purchased_at",
		200,
		0,
		dbx.Params{"owner": userID, "cancelled": models.TicketCancelled},
	)
	if err != nil {
		return nil, fmt.Errorf("ticket: owned by %s: %w", userID, err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, r := range records {
		tickets = append(tickets, ticketFromRecord(r))
	}
	return tickets, nil
}

// GenerateBatch mints count unsold tickets under a tier and bumps the
// tier and event inventory counters. Admin only; callers gate access.
func (s *TicketService) GenerateBatch(ctx context.Context, tierID string, count int) ([]*models.Ticket, error) {
	if count < 1 {
		return nil, fmt.Errorf("ticket: generate batch: count must be positive")
	}

	tierRec, err := s.app.FindRecordById("pricing_tiers", tierID)
	if err != nil {
		return nil, fmt.Errorf("ticket: generate batch: tier %s: %w", tierID, err)
	}

	collection, err := s.app.FindCollectionByNameOrId("tickets")
	if err != nil {
		return nil, fmt.Errorf("ticket: generate batch: collection: %w", err)
	}

	price := tierRec.GetFloat("price")
	eventID := tierRec.GetString("event")

	tickets := make([]*models.Ticket, 0, count)
	for i := 0; i < count; i++ {
		number, err := utils.TicketNumber()
		if err != nil {
			return nil, fmt.Errorf("ticket: generate batch: number: %w", err)
		}

		rec := core.NewRecord(collection)
		rec.Set("event", eventID)
		rec.Set("tier", tierID)
		rec.Set("number", number)
		rec.Set("original_price", price)
		rec.Set("current_price", price)
		rec.Set("status", models.TicketAvailable)
		if err := s.app.SaveWithContext(ctx, rec); err != nil {
			return nil, fmt.Errorf("ticket: generate batch: save %d/%d: %w", i+1, count, err)
		}
		tickets = append(tickets, ticketFromRecord(rec))
	}

	tierRec.Set("quantity", tierRec.GetInt("quantity")+count)
	tierRec.Set("available", tierRec.GetInt("available")+count)
	if err := s.app.SaveWithContext(ctx, tierRec); err != nil {
		return nil, fmt.Errorf("ticket: generate batch: update tier: %w", err)
	}

	eventRec, err := s.app.FindRecordById("events", eventID)
	if err == nil {
		eventRec.Set("total_tickets", eventRec.GetInt("total_tickets")+count)
		eventRec.Set("available_tickets", eventRec.GetInt("available_tickets")+count)
		if err := s.app.SaveWithContext(ctx, eventRec); err != nil {
			return nil, fmt.Errorf("ticket: generate batch: update event: %w", err)
		}
	}

	return tickets, nil
}

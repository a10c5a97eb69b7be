package services

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-market/internal/status"
	"ticket-market/models"
)

type fakeListingApp struct {
	tickets   map[string]*core.Record
	active    []*core.Record
	cancelled []*core.Record
	saved     []*core.Record
}

func newFakeListingApp() *fakeListingApp {
	return &fakeListingApp{tickets: make(map[string]*core.Record)}
}

func (f *fakeListingApp) FindRecordById(_ any, recordId string, _ ...func(q *dbx.SelectQuery) error) (*core.Record, error) {
	rec, ok := f.tickets[recordId]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rec, nil
}

func (f *fakeListingApp) FindRecordsByFilter(_ any, filter string, _ string, _ int, _ int, _ ...dbx.Params) ([]*core.Record, error) {
	if strings.Contains(filter, ":cancelled") {
		return f.cancelled, nil
	}
	return f.active, nil
}

func (f *fakeListingApp) FindCollectionByNameOrId(nameOrId string) (*core.Collection, error) {
	return core.NewBaseCollection(nameOrId), nil
}

func (f *fakeListingApp) SaveWithContext(_ context.Context, model core.Model) error {
	if rec, ok := model.(*core.Record); ok {
		f.saved = append(f.saved, rec)
	}
	return nil
}

func listingRecord(id, ticketID, sellerID string, asking float64, listingStatus string) *core.Record {
	rec := core.NewRecord(core.NewBaseCollection("listings"))
	rec.Id = id
	rec.Set("ticket", ticketID)
	rec.Set("seller", sellerID)
	rec.Set("asking_price", asking)
	rec.Set("status", listingStatus)
	return rec
}

func ownedTicket(id, ownerID string, originalPrice float64) *core.Record {
	rec := core.NewRecord(core.NewBaseCollection("tickets"))
	rec.Id = id
	rec.Set("owner", ownerID)
	rec.Set("status", models.TicketPurchased)
	rec.Set("original_price", originalPrice)
	rec.Set("current_price", originalPrice)
	return rec
}

func TestListing_Create(t *testing.T) {
	app := newFakeListingApp()
	app.tickets["t1"] = ownedTicket("t1", "seller1", 80)
	svc := NewListingService(app)

	listing, err := svc.Create(context.Background(), "seller1", "t1", decimal.NewFromInt(60), "front row")
	require.NoError(t, err)

	assert.Equal(t, models.ListingActive, listing.Status)
	assert.True(t, listing.AskingPrice.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, models.TicketListed, app.tickets["t1"].GetString("status"))
}

func TestListing_Create_ReactivatesCancelled(t *testing.T) {
	app := newFakeListingApp()
	app.tickets["t1"] = ownedTicket("t1", "seller1", 80)
	app.cancelled = []*core.Record{listingRecord("l1", "t1", "seller1", 50, models.ListingCancelled)}
	svc := NewListingService(app)

	listing, err := svc.Create(context.Background(), "seller1", "t1", decimal.NewFromInt(70), "relisted")
	require.NoError(t, err)

	// the cancelled record comes back with the new terms; no second row
	assert.Equal(t, "l1", listing.ID)
	assert.Equal(t, models.ListingActive, listing.Status)
	assert.True(t, listing.AskingPrice.Equal(decimal.NewFromInt(70)))

	require.Len(t, app.saved, 2) // the reactivated listing plus the ticket
	assert.Equal(t, "l1", app.saved[0].Id)
}

func TestListing_Create_PriceCap(t *testing.T) {
	app := newFakeListingApp()
	app.tickets["t1"] = ownedTicket("t1", "seller1", 80)
	svc := NewListingService(app)

	_, err := svc.Create(context.Background(), "seller1", "t1", decimal.NewFromInt(90), "")
	assert.ErrorIs(t, err, status.ErrPriceCapExceeded)
	assert.Empty(t, app.saved)
}

func TestListing_Create_NotOwner(t *testing.T) {
	app := newFakeListingApp()
	app.tickets["t1"] = ownedTicket("t1", "seller1", 80)
	svc := NewListingService(app)

	_, err := svc.Create(context.Background(), "someone-else", "t1", decimal.NewFromInt(60), "")
	assert.Error(t, err)
}

func TestListing_Create_AlreadyListed(t *testing.T) {
	app := newFakeListingApp()
	app.tickets["t1"] = ownedTicket("t1", "seller1", 80)
	app.active = []*core.Record{listingRecord("l1", "t1", "seller1", 60, models.ListingActive)}
	svc := NewListingService(app)

	_, err := svc.Create(context.Background(), "seller1", "t1", decimal.NewFromInt(60), "")
	assert.Error(t, err)
}

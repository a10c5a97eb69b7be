package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-market/internal/services/payproc"
	"ticket-market/internal/status"
	"ticket-market/models"
)

type fakeProvisionStore struct {
	tickets  []*models.Ticket
	listings map[string]*models.Listing
	saved    []*models.Transaction
}

func (f *fakeProvisionStore) AvailableTickets(_ context.Context, _ string, _ int) ([]*models.Ticket, error) {
	return f.tickets, nil
}

func (f *fakeProvisionStore) LoadListing(_ context.Context, listingID string) (*models.Listing, error) {
	return f.listings[listingID], nil
}

func (f *fakeProvisionStore) SaveTransaction(_ context.Context, txn *models.Transaction) (*models.Transaction, error) {
	txn.ID = "saved1"
	f.saved = append(f.saved, txn)
	return txn, nil
}

func setupProvisioner(store *fakeProvisionStore) (*Provisioner, redismock.ClientMock, *payproc.MockProcessor) {
	db, mock := redismock.NewClientMock()
	processor := payproc.NewMockProcessor()
	p := NewProvisioner(store, db, processor, 5*time.Minute, decimal.NewFromFloat(0.029), "usd")
	return p, mock, processor
}

func gaTier() *models.PricingTier {
	return &models.PricingTier{ID: "tier1", EventID: "e1", Name: "GA", Price: decimal.NewFromInt(150), Quantity: 10, Available: 3}
}

func TestProvisioner_Primary_BalanceHint(t *testing.T) {
	store := &fakeProvisionStore{
		tickets: []*models.Ticket{{ID: "t1", TierID: "tier1"}},
	}
	p, mock, _ := setupProvisioner(store)

	mock.ExpectSetNX("reserve:ticket:t1", "buyer1", 5*time.Minute).SetVal(true)

	txn, err := p.ProvisionPrimary(context.Background(), "buyer1", gaTier(), models.MethodBalance)
	require.NoError(t, err)

	assert.Equal(t, models.TxnPending, txn.Status)
	assert.Equal(t, models.TxnPrimaryPurchase, txn.Type)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(150)))
	assert.True(t, strings.HasPrefix(txn.PaymentHandle, "BALANCE_PENDING_"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioner_Primary_CardHintOpensIntent(t *testing.T) {
	store := &fakeProvisionStore{
		tickets: []*models.Ticket{{ID: "t1", TierID: "tier1"}},
	}
	p, mock, _ := setupProvisioner(store)

	mock.ExpectSetNX("reserve:ticket:t1", "buyer1", 5*time.Minute).SetVal(true)

	txn, err := p.ProvisionPrimary(context.Background(), "buyer1", gaTier(), models.MethodCard)
	require.NoError(t, err)

	// the handle is a pre-capture client secret
	assert.Contains(t, txn.PaymentHandle, payproc.SecretDelimiter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioner_Primary_TriesNextCandidateOnRace(t *testing.T) {
	store := &fakeProvisionStore{
		tickets: []*models.Ticket{{ID: "t1", TierID: "tier1"}, {ID: "t2", TierID: "tier1"}},
	}
	p, mock, _ := setupProvisioner(store)

	mock.ExpectSetNX("reserve:ticket:t1", "buyer1", 5*time.Minute).SetVal(false)
	mock.ExpectSetNX("reserve:ticket:t2", "buyer1", 5*time.Minute).SetVal(true)

	txn, err := p.ProvisionPrimary(context.Background(), "buyer1", gaTier(), models.MethodBalance)
	require.NoError(t, err)
	assert.Equal(t, "t2", txn.TicketID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioner_Primary_AllCandidatesReserved(t *testing.T) {
	store := &fakeProvisionStore{
		tickets: []*models.Ticket{{ID: "t1", TierID: "tier1"}},
	}
	p, mock, _ := setupProvisioner(store)

	mock.ExpectSetNX("reserve:ticket:t1", "buyer1", 5*time.Minute).SetVal(false)

	_, err := p.ProvisionPrimary(context.Background(), "buyer1", gaTier(), models.MethodBalance)
	assert.ErrorIs(t, err, status.ErrNoInventoryAvailable)
}

func TestProvisioner_Primary_NoAvailability(t *testing.T) {
	p, _, _ := setupProvisioner(&fakeProvisionStore{})

	// a drained tier or an empty candidate list is a lost concurrent race,
	// not a caller mistake
	tier := gaTier()
	tier.Available = 0
	_, err := p.ProvisionPrimary(context.Background(), "buyer1", tier, models.MethodBalance)
	assert.ErrorIs(t, err, status.ErrNoInventoryAvailable)
	assert.True(t, status.Retryable(err))

	tier.Available = 3
	_, err = p.ProvisionPrimary(context.Background(), "buyer1", tier, models.MethodBalance)
	assert.ErrorIs(t, err, status.ErrNoInventoryAvailable)
	assert.True(t, status.Retryable(err))
}

func TestProvisioner_Secondary_OwnListingRejected(t *testing.T) {
	p, _, _ := setupProvisioner(&fakeProvisionStore{})

	listing := &models.Listing{ID: "l1", TicketID: "t1", SellerID: "buyer1", AskingPrice: decimal.NewFromInt(60), Status: models.ListingActive}
	_, err := p.ProvisionSecondary(context.Background(), "buyer1", listing, models.MethodBalance)
	assert.Error(t, err)
}

func TestProvisioner_Secondary_Reserves(t *testing.T) {
	store := &fakeProvisionStore{}
	p, mock, _ := setupProvisioner(store)

	mock.ExpectSetNX("reserve:listing:l1", "buyer1", 5*time.Minute).SetVal(true)

	listing := &models.Listing{ID: "l1", TicketID: "t1", SellerID: "seller1", AskingPrice: decimal.NewFromInt(60), Status: models.ListingActive}
	txn, err := p.ProvisionSecondary(context.Background(), "buyer1", listing, models.MethodBalance)
	require.NoError(t, err)

	assert.Equal(t, models.TxnSecondaryPurchase, txn.Type)
	assert.Equal(t, "seller1", txn.SellerID)
	assert.Equal(t, "l1", txn.ListingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisioner_Secondary_AlreadyReserved(t *testing.T) {
	p, mock, _ := setupProvisioner(&fakeProvisionStore{})

	mock.ExpectSetNX("reserve:listing:l1", "buyer2", 5*time.Minute).SetVal(false)

	listing := &models.Listing{ID: "l1", TicketID: "t1", SellerID: "seller1", AskingPrice: decimal.NewFromInt(60), Status: models.ListingActive}
	_, err := p.ProvisionSecondary(context.Background(), "buyer2", listing, models.MethodBalance)
	assert.ErrorIs(t, err, status.ErrNoInventoryAvailable)
}

func TestProvisioner_Release(t *testing.T) {
	p, mock, _ := setupProvisioner(&fakeProvisionStore{})

	mock.ExpectDel("reserve:ticket:t1").SetVal(1)
	err := p.Release(context.Background(), &models.Transaction{Type: models.TxnPrimaryPurchase, TicketID: "t1"})
	assert.NoError(t, err)

	mock.ExpectDel("reserve:listing:l1").SetVal(1)
	err = p.Release(context.Background(), &models.Transaction{Type: models.TxnSecondaryPurchase, TicketID: "t1", ListingID: "l1"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

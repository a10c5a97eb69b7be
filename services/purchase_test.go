package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-market/internal/services/payproc"
	"ticket-market/internal/status"
	"ticket-market/models"
)

type fakeProvisioner struct {
	mu       sync.Mutex
	seq      int
	released []string
	failWith error

	// when set, ProvisionPrimary parks on blockCh and signals enteredCh
	blockCh   chan struct{}
	enteredCh chan struct{}
}

func (f *fakeProvisioner) ProvisionPrimary(_ context.Context, buyerID string, tier *models.PricingTier, hint string) (*models.Transaction, error) {
	if f.blockCh != nil {
		f.enteredCh <- struct{}{}
		<-f.blockCh
	}
	if f.failWith != nil {
		return nil, f.failWith
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &models.Transaction{
		ID:       fmt.Sprintf("txn%d", f.seq),
		Number:   fmt.Sprintf("TXN-%04d", f.seq),
		Type:     models.TxnPrimaryPurchase,
		Status:   models.TxnPending,
		BuyerID:  buyerID,
		TicketID: fmt.Sprintf("t%d", f.seq),
		Amount:   tier.Price,
		Method:   hint,
	}, nil
}

func (f *fakeProvisioner) ProvisionSecondary(_ context.Context, buyerID string, listing *models.Listing, hint string) (*models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return &models.Transaction{
		ID:        fmt.Sprintf("txn%d", f.seq),
		Number:    fmt.Sprintf("TXN-%04d", f.seq),
		Type:      models.TxnSecondaryPurchase,
		Status:    models.TxnPending,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		TicketID:  listing.TicketID,
		ListingID: listing.ID,
		Amount:    listing.AskingPrice,
		Method:    hint,
	}, nil
}

func (f *fakeProvisioner) Release(_ context.Context, txn *models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, txn.ID)
	return nil
}

type fakePaymentResolver struct {
	failWith error
	resolved int

	// when set, Resolve parks on blockCh and signals enteredCh
	blockCh   chan struct{}
	enteredCh chan struct{}
}

func (f *fakePaymentResolver) Resolve(_ context.Context, txn *models.Transaction, method string, _ *payproc.CardDetails) (*models.Transaction, *models.PaymentOutcome, error) {
	if f.blockCh != nil {
		f.enteredCh <- struct{}{}
		<-f.blockCh
	}
	if f.failWith != nil {
		return txn, nil, f.failWith
	}
	f.resolved++
	now := time.Now()
	txn.Status = models.TxnCompleted
	txn.Method = method
	txn.CompletedAt = &now
	balance := decimal.NewFromInt(100)
	return txn, &models.PaymentOutcome{
		Method:           method,
		AmountCharged:    txn.Amount,
		ResultingBalance: &balance,
	}, nil
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) Finalize(_ context.Context, in ReceiptInput) (*models.PurchaseReceipt, error) {
	f.calls++
	receipt := &models.PurchaseReceipt{
		EventName:     in.EventName,
		Venue:         in.Venue,
		TierName:      in.TierName,
		Section:       in.Section,
		TicketNumbers: in.TicketNumbers,
		CompletedAt:   time.Unix(1756500000, 0),
	}
	for _, txn := range in.Transactions {
		receipt.TransactionNumbers = append(receipt.TransactionNumbers, txn.Number)
	}
	for _, outcome := range in.Outcomes {
		receipt.Method = outcome.Method
		receipt.AmountCharged = receipt.AmountCharged.Add(outcome.AmountCharged)
	}
	return receipt, nil
}

type fakeCatalog struct {
	tiers    map[string]*models.PricingTier
	listings map[string]*models.Listing
	balance  decimal.Decimal
}

func (f *fakeCatalog) LoadTier(_ context.Context, tierID string) (*models.PricingTier, error) {
	tier, ok := f.tiers[tierID]
	if !ok {
		return nil, errors.New("tier not found")
	}
	return tier, nil
}

func (f *fakeCatalog) LoadListing(_ context.Context, listingID string) (*models.Listing, error) {
	listing, ok := f.listings[listingID]
	if !ok {
		return nil, errors.New("listing not found")
	}
	return listing, nil
}

func (f *fakeCatalog) LoadTicket(_ context.Context, ticketID string) (*models.Ticket, error) {
	return &models.Ticket{
		ID:            ticketID,
		EventID:       "e1",
		TierID:        "tier1",
		Number:        "TKT-" + ticketID,
		OriginalPrice: decimal.NewFromInt(80),
		CurrentPrice:  decimal.NewFromInt(80),
	}, nil
}

func (f *fakeCatalog) LoadEvent(_ context.Context, eventID string) (*models.Event, error) {
	return &models.Event{ID: eventID, Name: "Summer Fest", Venue: "Riverside Arena"}, nil
}

func (f *fakeCatalog) Balance(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.balance, nil
}

func setupPurchaseService() (*PurchaseService, *fakeProvisioner, *fakePaymentResolver, *fakeNotifier, *fakeCatalog) {
	provisioner := &fakeProvisioner{}
	resolver := &fakePaymentResolver{}
	notifier := &fakeNotifier{}
	cat := &fakeCatalog{
		tiers: map[string]*models.PricingTier{
			"tier1": {ID: "tier1", EventID: "e1", Name: "GA", Price: decimal.NewFromInt(150), Quantity: 10, Available: 5},
		},
		listings: map[string]*models.Listing{
			"l1": {ID: "l1", TicketID: "t9", SellerID: "seller1", AskingPrice: decimal.NewFromInt(60), Status: models.ListingActive},
			"l2": {ID: "l2", TicketID: "t8", SellerID: "seller1", AskingPrice: decimal.NewFromInt(90), Status: models.ListingActive},
		},
		balance: decimal.NewFromInt(400),
	}
	return NewPurchaseService(provisioner, resolver, notifier, cat), provisioner, resolver, notifier, cat
}

func buyer() models.SessionContext {
	return models.SessionContext{UserID: "buyer1", Email: "buyer@example.com", Name: "Buyer"}
}

func TestPurchase_HappyPath(t *testing.T) {
	svc, _, resolver, notifier, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 2, MethodHint: models.MethodBalance})
	require.NoError(t, err)
	assert.Equal(t, StateSelecting, session.Snapshot().State)

	require.NoError(t, svc.Confirm(ctx, session.ID))
	assert.Equal(t, StateAwaitingPayment, session.Snapshot().State)
	assert.Len(t, session.Snapshot().Transactions, 2)

	require.NoError(t, svc.SubmitPayment(ctx, session.ID, models.MethodBalance, nil))
	assert.Equal(t, StateSucceeded, session.Snapshot().State)
	assert.Equal(t, 2, resolver.resolved)
	assert.Equal(t, 1, notifier.calls)

	receipt, err := svc.Receipt(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, receipt.TransactionNumbers, 2)
	assert.Len(t, receipt.TicketNumbers, 2)
	assert.Equal(t, "Summer Fest", receipt.EventName)
}

func TestPurchase_ValidationKeepsSelecting(t *testing.T) {
	svc, _, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	// 6 requested against 5 available
	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 6})
	require.NoError(t, err)

	err = svc.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, status.ErrInsufficientInventory)

	view := session.Snapshot()
	assert.Equal(t, StateSelecting, view.State)
	assert.NotEmpty(t, view.SelectError)

	// correct the quantity and retry without starting over
	require.NoError(t, svc.UpdateSelection(ctx, session.ID, Selection{TierID: "tier1", Quantity: 2}))
	require.NoError(t, svc.Confirm(ctx, session.ID))
	assert.Equal(t, StateAwaitingPayment, session.Snapshot().State)
}

func TestPurchase_OverpricedListingRejectedBeforeProvisioning(t *testing.T) {
	svc, provisioner, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	// l2 asks $90 against an $80 original price
	session, err := svc.StartSession(ctx, buyer(), Selection{ListingID: "l2", Quantity: 1})
	require.NoError(t, err)

	err = svc.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, status.ErrPriceCapExceeded)
	assert.Equal(t, StateSelecting, session.Snapshot().State)
	assert.Equal(t, 0, provisioner.seq)
}

func TestPurchase_InsufficientBalanceHint(t *testing.T) {
	svc, _, _, _, cat := setupPurchaseService()
	cat.balance = decimal.NewFromInt(100)
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 2, MethodHint: models.MethodBalance})
	require.NoError(t, err)

	err = svc.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, status.ErrInsufficientBalance)
	assert.Equal(t, StateSelecting, session.Snapshot().State)
}

func TestPurchase_SecondClickRejectedWhileProvisioning(t *testing.T) {
	svc, provisioner, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	provisioner.blockCh = make(chan struct{})
	provisioner.enteredCh = make(chan struct{}, 1)

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- svc.Confirm(ctx, session.ID)
	}()

	<-provisioner.enteredCh

	// second click while the first confirm is still provisioning
	err = svc.Confirm(ctx, session.ID)
	assert.ErrorIs(t, err, status.ErrOperationInProgress)

	close(provisioner.blockCh)
	require.NoError(t, <-firstDone)
	assert.Equal(t, StateAwaitingPayment, session.Snapshot().State)
}

func TestPurchase_SnapshotDuringPayment(t *testing.T) {
	svc, _, resolver, _, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, session.ID))

	resolver.blockCh = make(chan struct{})
	resolver.enteredCh = make(chan struct{}, 1)

	paymentDone := make(chan error, 1)
	go func() {
		paymentDone <- svc.SubmitPayment(ctx, session.ID, models.MethodBalance, nil)
	}()

	<-resolver.enteredCh

	// readers polling the session mid-settlement see a consistent view
	for i := 0; i < 100; i++ {
		view := session.Snapshot()
		assert.Equal(t, StateConfirming, view.State)
		assert.Len(t, view.Transactions, 1)
	}

	close(resolver.blockCh)
	require.NoError(t, <-paymentDone)
	assert.Equal(t, StateSucceeded, session.Snapshot().State)
}

type stepRecorder struct {
	steps []string
}

func (r *stepRecorder) TrackPurchaseStep(step, result string) {
	r.steps = append(r.steps, step+":"+result)
}

func TestPurchase_TracksSteps(t *testing.T) {
	svc, _, _, _, _ := setupPurchaseService()
	recorder := &stepRecorder{}
	svc.SetMetrics(recorder)
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, session.ID))
	require.NoError(t, svc.SubmitPayment(ctx, session.ID, models.MethodBalance, nil))

	assert.Equal(t, []string{
		"validate:success",
		"provision:success",
		"payment:success",
		"finalize:success",
	}, recorder.steps)
}

func TestPurchase_DuplicateUnitSessionRejected(t *testing.T) {
	svc, _, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	_, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)

	_, err = svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	assert.ErrorIs(t, err, status.ErrOperationInProgress)

	// a different buyer is free to open their own session
	other := models.SessionContext{UserID: "buyer2"}
	_, err = svc.StartSession(ctx, other, Selection{TierID: "tier1", Quantity: 1})
	assert.NoError(t, err)
}

func TestPurchase_ProvisionFailureFailsAttempt(t *testing.T) {
	svc, provisioner, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 2})
	require.NoError(t, err)

	provisioner.failWith = status.ErrNoInventoryAvailable

	err = svc.Confirm(ctx, session.ID)
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepProvision, stepErr.Step)
	assert.ErrorIs(t, err, status.ErrNoInventoryAvailable)

	view := session.Snapshot()
	assert.Equal(t, StateFailed, view.State)
	assert.Equal(t, StepProvision, view.FailedStep)
}

func TestPurchase_PaymentFailureCarriesStep(t *testing.T) {
	svc, _, resolver, _, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, session.ID))

	resolver.failWith = status.ErrTransportFailure

	err = svc.SubmitPayment(ctx, session.ID, models.MethodCard, &payproc.CardDetails{})
	require.Error(t, err)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepPayment, stepErr.Step)
	assert.Equal(t, StateFailed, session.Snapshot().State)
}

func TestPurchase_TerminalStatesAbsorb(t *testing.T) {
	svc, provisioner, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)

	provisioner.failWith = status.ErrNoInventoryAvailable
	require.Error(t, svc.Confirm(ctx, session.ID))
	require.Equal(t, StateFailed, session.Snapshot().State)

	// no transition leaves a terminal state
	assert.Error(t, svc.Confirm(ctx, session.ID))
	assert.Error(t, svc.SubmitPayment(ctx, session.ID, models.MethodBalance, nil))
	assert.Error(t, svc.Cancel(ctx, session.ID))
	assert.Equal(t, StateFailed, session.Snapshot().State)
}

func TestPurchase_CancelBeforePayment(t *testing.T) {
	svc, provisioner, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, session.ID))

	require.NoError(t, svc.Cancel(ctx, session.ID))
	assert.Equal(t, StateCancelled, session.Snapshot().State)
	assert.Len(t, provisioner.released, 2)
}

func TestPurchase_CancelAfterSuccessRejected(t *testing.T) {
	svc, _, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, session.ID))
	require.NoError(t, svc.SubmitPayment(ctx, session.ID, models.MethodBalance, nil))

	assert.Error(t, svc.Cancel(ctx, session.ID))
	assert.Equal(t, StateSucceeded, session.Snapshot().State)
}

func TestPurchase_ReceiptIsIdempotent(t *testing.T) {
	svc, _, _, notifier, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{TierID: "tier1", Quantity: 1})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, session.ID))
	require.NoError(t, svc.SubmitPayment(ctx, session.ID, models.MethodBalance, nil))

	first, err := svc.Receipt(ctx, session.ID)
	require.NoError(t, err)
	second, err := svc.Receipt(ctx, session.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, notifier.calls)
}

func TestPurchase_SecondaryListingFlow(t *testing.T) {
	svc, _, _, _, _ := setupPurchaseService()
	ctx := context.Background()

	session, err := svc.StartSession(ctx, buyer(), Selection{ListingID: "l1", Quantity: 5})
	require.NoError(t, err)
	// a listing wraps exactly one ticket
	assert.Equal(t, 1, session.Selection.Quantity)

	require.NoError(t, svc.Confirm(ctx, session.ID))
	require.NoError(t, svc.SubmitPayment(ctx, session.ID, models.MethodBalance, nil))
	assert.Equal(t, StateSucceeded, session.Snapshot().State)
}

package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ticket-market/internal/services/payproc"
	"ticket-market/internal/status"
	"ticket-market/models"
)

// Purchase session states.
const (
	StateSelecting       = "SELECTING"
	StateProvisioning    = "PROVISIONING"
	StateAwaitingPayment = "AWAITING_PAYMENT"
	StateConfirming      = "CONFIRMING"
	StateSucceeded       = "SUCCEEDED"
	StateFailed          = "FAILED"
	StateCancelled       = "CANCELLED"
)

// Step names carried on failures so callers can say which stage broke.
const (
	StepValidate  = "validate"
	StepProvision = "provision"
	StepPayment   = "payment"
	StepFinalize  = "finalize"
)

// StepError tags a failure with the stage it came from. The original
// error stays reachable through Unwrap.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s step failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Selection is what the buyer picked before confirming. Exactly one of
// TierID or ListingID is set; a listing always carries quantity 1.
type Selection struct {
	TierID     string
	ListingID  string
	Quantity   int
	MethodHint string
}

func (s Selection) unitKey() string {
	if s.ListingID != "" {
		return "listing:" + s.ListingID
	}
	return "tier:" + s.TierID
}

// PurchaseSession is one purchase attempt. The mutex serializes step
// entry; a second action while a step is in flight is rejected, never
// queued.
type PurchaseSession struct {
	ID        string
	User      models.SessionContext
	Selection Selection
	CreatedAt time.Time

	mu       sync.Mutex
	inFlight bool

	State        string
	SelectErr    error
	Failure      *StepError
	Transactions []*models.Transaction
	Outcomes     []*models.PaymentOutcome
	receipt      *models.PurchaseReceipt
}

func (s *PurchaseSession) terminal() bool {
	switch s.State {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// begin takes the step slot for a transition out of the expected state.
func (s *PurchaseSession) begin(expect string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return status.ErrOperationInProgress
	}
	if s.terminal() {
		return fmt.Errorf("purchase: session %s already %s", s.ID, s.State)
	}
	if s.State != expect {
		return fmt.Errorf("purchase: session %s is %s, expected %s", s.ID, s.State, expect)
	}
	s.inFlight = true
	return nil
}

func (s *PurchaseSession) end() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

func (s *PurchaseSession) setState(state string) {
	s.mu.Lock()
	s.State = state
	s.mu.Unlock()
}

func (s *PurchaseSession) fail(step string, err error) {
	s.mu.Lock()
	s.State = StateFailed
	s.Failure = &StepError{Step: step, Err: err}
	s.mu.Unlock()
}

// SessionView is a point-in-time copy of session state for display.
type SessionView struct {
	ID           string                   `json:"id"`
	State        string                   `json:"state"`
	SelectError  string                   `json:"select_error,omitempty"`
	FailedStep   string                   `json:"failed_step,omitempty"`
	FailureCause string                   `json:"failure_cause,omitempty"`
	Transactions []string                 `json:"transactions,omitempty"`
	Outcomes     []*models.PaymentOutcome `json:"outcomes,omitempty"`
}

func (s *PurchaseSession) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := SessionView{
		ID:       s.ID,
		State:    s.State,
		Outcomes: s.Outcomes,
	}
	if s.SelectErr != nil {
		view.SelectError = s.SelectErr.Error()
	}
	if s.Failure != nil {
		view.FailedStep = s.Failure.Step
		view.FailureCause = s.Failure.Err.Error()
	}
	for _, txn := range s.Transactions {
		view.Transactions = append(view.Transactions, txn.Number)
	}
	return view
}

type transactionProvisioner interface {
	ProvisionPrimary(ctx context.Context, buyerID string, tier *models.PricingTier, methodHint string) (*models.Transaction, error)
	ProvisionSecondary(ctx context.Context, buyerID string, listing *models.Listing, methodHint string) (*models.Transaction, error)
	Release(ctx context.Context, txn *models.Transaction) error
}

type paymentResolver interface {
	Resolve(ctx context.Context, txn *models.Transaction, method string, card *payproc.CardDetails) (*models.Transaction, *models.PaymentOutcome, error)
}

type receiptNotifier interface {
	Finalize(ctx context.Context, in ReceiptInput) (*models.PurchaseReceipt, error)
}

type catalog interface {
	LoadTier(ctx context.Context, tierID string) (*models.PricingTier, error)
	LoadListing(ctx context.Context, listingID string) (*models.Listing, error)
	LoadTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	LoadEvent(ctx context.Context, eventID string) (*models.Event, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
}

type purchaseMetrics interface {
	TrackPurchaseStep(step, status string)
}

// PurchaseService drives purchase sessions from selection through
// receipt. One session per buyer per inventory unit at a time.
type PurchaseService struct {
	provisioner transactionProvisioner
	resolver    paymentResolver
	notifier    receiptNotifier
	catalog     catalog
	metrics     purchaseMetrics

	mu       sync.Mutex
	sessions map[string]*PurchaseSession
	units    map[string]string
}

func NewPurchaseService(provisioner transactionProvisioner, resolver paymentResolver, notifier receiptNotifier, cat catalog) *PurchaseService {
	return &PurchaseService{
		provisioner: provisioner,
		resolver:    resolver,
		notifier:    notifier,
		catalog:     cat,
		sessions:    make(map[string]*PurchaseSession),
		units:       make(map[string]string),
	}
}

func (s *PurchaseService) SetMetrics(m purchaseMetrics) {
	s.metrics = m
}

func (s *PurchaseService) trackStep(step, result string) {
	if s.metrics != nil {
		s.metrics.TrackPurchaseStep(step, result)
	}
}

// StartSession opens a new session in SELECTING. A second session for
// the same buyer and inventory unit is rejected while the first is
// still live.
func (s *PurchaseService) StartSession(ctx context.Context, user models.SessionContext, sel Selection) (*PurchaseSession, error) {
	if sel.TierID == "" && sel.ListingID == "" {
		return nil, fmt.Errorf("purchase: start: no tier or listing selected")
	}
	if sel.ListingID != "" {
		sel.Quantity = 1
	}
	if sel.Quantity < 1 {
		sel.Quantity = 1
	}

	unit := user.UserID + "|" + sel.unitKey()

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.units[unit]; ok {
		if existing, live := s.sessions[existingID]; live && !existing.terminal() {
			return nil, status.ErrOperationInProgress
		}
	}

	session := &PurchaseSession{
		ID:        uuid.NewString(),
		User:      user,
		Selection: sel,
		CreatedAt: time.Now(),
		State:     StateSelecting,
	}
	s.sessions[session.ID] = session
	s.units[unit] = session.ID
	return session, nil
}

// UpdateSelection replaces the selection of a session still in
// SELECTING, so a buyer can correct a rejected choice without starting
// over.
func (s *PurchaseService) UpdateSelection(ctx context.Context, sessionID string, sel Selection) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	if sel.TierID == "" && sel.ListingID == "" {
		return fmt.Errorf("purchase: update: no tier or listing selected")
	}
	if sel.ListingID != "" {
		sel.Quantity = 1
	}
	if sel.Quantity < 1 {
		sel.Quantity = 1
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.inFlight {
		return status.ErrOperationInProgress
	}
	if session.State != StateSelecting {
		return fmt.Errorf("purchase: session %s is %s, expected %s", session.ID, session.State, StateSelecting)
	}

	oldUnit := session.User.UserID + "|" + session.Selection.unitKey()
	newUnit := session.User.UserID + "|" + sel.unitKey()

	s.mu.Lock()
	if oldUnit != newUnit {
		if existingID, ok := s.units[newUnit]; ok && existingID != session.ID {
			if existing, live := s.sessions[existingID]; live && !existing.terminal() {
				s.mu.Unlock()
				return status.ErrOperationInProgress
			}
		}
		delete(s.units, oldUnit)
		s.units[newUnit] = session.ID
	}
	s.mu.Unlock()

	session.Selection = sel
	session.SelectErr = nil
	return nil
}

func (s *PurchaseService) Session(sessionID string) (*PurchaseSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("purchase: session %s not found", sessionID)
	}
	return session, nil
}

// Confirm validates the selection and provisions pending transactions,
// one per unit. Validation failures keep the session in SELECTING with
// the error attached so the buyer can correct and retry; provisioning
// failures end the attempt.
func (s *PurchaseService) Confirm(ctx context.Context, sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	if err := session.begin(StateSelecting); err != nil {
		return err
	}
	defer session.end()

	sel := session.Selection

	var tier *models.PricingTier
	var listing *models.Listing
	if sel.ListingID != "" {
		listing, err = s.catalog.LoadListing(ctx, sel.ListingID)
		if err == nil && listing.Status != models.ListingActive {
			err = status.ErrNoInventoryAvailable
		}
		if err == nil {
			// The cap held at listing creation; re-check in case the
			// listing record was edited since.
			var ticket *models.Ticket
			ticket, err = s.catalog.LoadTicket(ctx, listing.TicketID)
			if err == nil {
				err = ValidateResalePrice(listing.AskingPrice, ticket.OriginalPrice)
			}
		}
	} else {
		tier, err = s.catalog.LoadTier(ctx, sel.TierID)
		if err == nil {
			err = ValidateQuantity(sel.Quantity, tier.Available)
		}
	}
	if err == nil && sel.MethodHint == models.MethodBalance {
		total := s.selectionTotal(tier, listing, sel.Quantity)
		balance, berr := s.catalog.Balance(ctx, session.User.UserID)
		if berr == nil && !CanPayWithBalance(total, balance) {
			err = status.ErrInsufficientBalance
		}
	}
	if err != nil {
		s.trackStep(StepValidate, "failed")
		session.mu.Lock()
		session.SelectErr = err
		session.mu.Unlock()
		return err
	}
	s.trackStep(StepValidate, "success")
	session.mu.Lock()
	session.SelectErr = nil
	session.mu.Unlock()

	session.setState(StateProvisioning)

	txns := make([]*models.Transaction, 0, sel.Quantity)
	for i := 0; i < sel.Quantity; i++ {
		var txn *models.Transaction
		if listing != nil {
			txn, err = s.provisioner.ProvisionSecondary(ctx, session.User.UserID, listing, sel.MethodHint)
		} else {
			txn, err = s.provisioner.ProvisionPrimary(ctx, session.User.UserID, tier, sel.MethodHint)
		}
		if err != nil {
			for _, provisioned := range txns {
				s.provisioner.Release(ctx, provisioned)
			}
			s.trackStep(StepProvision, "failed")
			session.fail(StepProvision, err)
			return &StepError{Step: StepProvision, Err: err}
		}
		txns = append(txns, txn)
	}
	s.trackStep(StepProvision, "success")

	session.mu.Lock()
	session.Transactions = txns
	session.State = StateAwaitingPayment
	session.mu.Unlock()
	return nil
}

// SubmitPayment settles every pending transaction through the chosen
// method. Once this step starts the session can no longer be cancelled.
func (s *PurchaseService) SubmitPayment(ctx context.Context, sessionID, method string, card *payproc.CardDetails) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	if err := session.begin(StateAwaitingPayment); err != nil {
		return err
	}
	defer session.end()

	session.setState(StateConfirming)

	// Resolve against a private copy of the slice; Snapshot reads the
	// session's slice concurrently and only sees it swapped whole.
	session.mu.Lock()
	txns := make([]*models.Transaction, len(session.Transactions))
	copy(txns, session.Transactions)
	session.mu.Unlock()

	outcomes := make([]*models.PaymentOutcome, 0, len(txns))
	for i, txn := range txns {
		resolved, outcome, err := s.resolver.Resolve(ctx, txn, method, card)
		if err != nil {
			s.trackStep(StepPayment, "failed")
			session.fail(StepPayment, err)
			return &StepError{Step: StepPayment, Err: err}
		}
		txns[i] = resolved
		outcomes = append(outcomes, outcome)
	}
	s.trackStep(StepPayment, "success")
	session.mu.Lock()
	session.Transactions = txns
	session.Outcomes = outcomes
	session.mu.Unlock()

	receipt, err := s.buildReceipt(ctx, session)
	if err != nil {
		s.trackStep(StepFinalize, "failed")
		session.fail(StepFinalize, err)
		return &StepError{Step: StepFinalize, Err: err}
	}
	s.trackStep(StepFinalize, "success")
	session.mu.Lock()
	session.receipt = receipt
	session.State = StateSucceeded
	session.mu.Unlock()
	return nil
}

// Cancel abandons the session and releases any reservations. Allowed in
// any state before payment capture begins.
func (s *PurchaseService) Cancel(ctx context.Context, sessionID string) error {
	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.inFlight {
		return status.ErrOperationInProgress
	}
	if session.terminal() {
		return fmt.Errorf("purchase: session %s already %s", session.ID, session.State)
	}
	if session.State == StateConfirming {
		return fmt.Errorf("purchase: session %s cannot cancel during payment", session.ID)
	}

	for _, txn := range session.Transactions {
		if err := s.provisioner.Release(ctx, txn); err != nil {
			return err
		}
	}
	session.State = StateCancelled
	return nil
}

// Receipt returns the session's cached receipt. Repeated calls after
// SUCCEEDED return the identical projection; no effects are re-applied.
func (s *PurchaseService) Receipt(ctx context.Context, sessionID string) (*models.PurchaseReceipt, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.State != StateSucceeded || session.receipt == nil {
		return nil, fmt.Errorf("purchase: session %s has no receipt", session.ID)
	}
	return session.receipt, nil
}

func (s *PurchaseService) selectionTotal(tier *models.PricingTier, listing *models.Listing, quantity int) decimal.Decimal {
	if listing != nil {
		return RoundToCents(listing.AskingPrice)
	}
	if tier == nil {
		return decimal.Zero
	}
	return RoundToCents(tier.Price.Mul(decimal.NewFromInt(int64(quantity))))
}

func (s *PurchaseService) buildReceipt(ctx context.Context, session *PurchaseSession) (*models.PurchaseReceipt, error) {
	in := ReceiptInput{
		UserID:       session.User.UserID,
		Transactions: session.Transactions,
		Outcomes:     session.Outcomes,
	}

	for _, txn := range session.Transactions {
		ticket, err := s.catalog.LoadTicket(ctx, txn.TicketID)
		if err != nil {
			return nil, err
		}
		in.TicketNumbers = append(in.TicketNumbers, ticket.Number)

		if in.EventName == "" {
			event, err := s.catalog.LoadEvent(ctx, ticket.EventID)
			if err != nil {
				return nil, err
			}
			in.EventName = event.Name
			in.Venue = event.Venue

			if ticket.TierID != "" {
				tier, err := s.catalog.LoadTier(ctx, ticket.TierID)
				if err != nil {
					return nil, err
				}
				in.TierID = tier.ID
				in.TierName = tier.Name
				in.Section = tier.Section
			}
		}
	}

	return s.notifier.Finalize(ctx, in)
}

// ServiceCatalog adapts the concrete services to the read surface the
// purchase flow needs.
type ServiceCatalog struct {
	Tickets  *TicketService
	Listings *ListingService
	Balances *BalanceService
}

func (c *ServiceCatalog) LoadTier(ctx context.Context, tierID string) (*models.PricingTier, error) {
	return c.Tickets.Tier(ctx, tierID)
}

func (c *ServiceCatalog) LoadListing(ctx context.Context, listingID string) (*models.Listing, error) {
	return c.Listings.Listing(ctx, listingID)
}

func (c *ServiceCatalog) LoadTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	return c.Tickets.Ticket(ctx, ticketID)
}

func (c *ServiceCatalog) LoadEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return c.Tickets.Event(ctx, eventID)
}

func (c *ServiceCatalog) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	return c.Balances.Current(ctx, userID)
}

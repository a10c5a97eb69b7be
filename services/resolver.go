package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ticket-market/internal/services/payproc"
	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/utils"
)

type resolverStore interface {
	LoadTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	SaveTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	MarkTicketSold(ctx context.Context, ticketID, ownerID, newStatus string, soldAt time.Time) error
	MarkListingSold(ctx context.Context, listingID string) error
	DecrementAvailability(ctx context.Context, tierID string) error
}

type balanceLedger interface {
	Debit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.UserBalance, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.UserBalance, error)
	Refund(ctx context.Context, userID string, amount decimal.Decimal, description, refType, refID string) (*models.UserBalance, error)
}

// Resolver settles a pending transaction through the buyer's chosen
// payment method. Balance payments are exact and fee-free; card payments
// carry the processing fee and round-trip the external processor behind
// a circuit breaker.
type paymentMetrics interface {
	TrackPayment(method, status string)
	TrackProcessorCall(operation string, duration time.Duration)
}

type Resolver struct {
	store          resolverStore
	balances       balanceLedger
	processor      payproc.Processor
	breaker        *utils.CircuitBreaker
	balanceFeeRate decimal.Decimal
	cardFeeRate    decimal.Decimal
	paymentTimeout time.Duration
	metrics        paymentMetrics
}

func NewResolver(store resolverStore, balances balanceLedger, processor payproc.Processor, breaker *utils.CircuitBreaker, balanceFeeRate, cardFeeRate decimal.Decimal, paymentTimeout time.Duration) *Resolver {
	return &Resolver{
		store:          store,
		balances:       balances,
		processor:      processor,
		breaker:        breaker,
		balanceFeeRate: balanceFeeRate,
		cardFeeRate:    cardFeeRate,
		paymentTimeout: paymentTimeout,
	}
}

func (r *Resolver) SetMetrics(m paymentMetrics) {
	r.metrics = m
}

func (r *Resolver) trackPayment(method, result string) {
	if r.metrics != nil {
		r.metrics.TrackPayment(method, result)
	}
}

func (r *Resolver) trackProcessorCall(operation string, started time.Time) {
	if r.metrics != nil {
		r.metrics.TrackProcessorCall(operation, time.Since(started))
	}
}

// Resolve charges the buyer and, on success, applies the completion
// effects: ticket ownership moves, listings close, availability shrinks,
// and secondary sellers get credited.
func (r *Resolver) Resolve(ctx context.Context, txn *models.Transaction, method string, card *payproc.CardDetails) (*models.Transaction, *models.PaymentOutcome, error) {
	if txn.Status != models.TxnPending {
		return txn, nil, fmt.Errorf("resolve: transaction %s not pending", txn.Number)
	}

	var outcome *models.PaymentOutcome
	var err error
	switch method {
	case models.MethodBalance:
		outcome, err = r.resolveBalance(ctx, txn)
	case models.MethodCard:
		outcome, err = r.resolveCard(ctx, txn, card)
	default:
		return txn, nil, fmt.Errorf("resolve: unknown payment method %q", method)
	}
	if err != nil {
		// An unknown confirmation outcome leaves the transaction PENDING:
		// the charge may have landed, and a FAILED record would invite a
		// second attempt that double-charges. Only definitive failures are
		// persisted as FAILED.
		if !errors.Is(err, status.ErrPaymentConfirmationUnknown) {
			r.markFailed(ctx, txn)
		}
		r.trackPayment(method, "failed")
		return txn, nil, err
	}

	txn.Status = models.TxnCompleted
	txn.Method = method
	now := time.Now()
	txn.CompletedAt = &now

	saved, err := r.store.SaveTransaction(ctx, txn)
	if err != nil {
		return txn, nil, fmt.Errorf("resolve: save completed: %v", err)
	}

	if err := r.applyCompletion(ctx, saved); err != nil {
		return saved, nil, err
	}
	r.trackPayment(method, "success")
	return saved, outcome, nil
}

// resolveBalance debits the buyer's balance for the exact transaction
// amount. The debit itself is the sufficiency check; callers may have
// given an optimistic preview but only the ledger decides.
func (r *Resolver) resolveBalance(ctx context.Context, txn *models.Transaction) (*models.PaymentOutcome, error) {
	total := RoundToCents(TotalWithFee(txn.Amount, r.balanceFeeRate))

	bal, err := r.balances.Debit(ctx, txn.BuyerID, total,
		fmt.Sprintf("Ticket purchase %s", txn.Number), "transaction", txn.ID)
	if err != nil {
		return nil, err
	}

	if txn.Type == models.TxnSecondaryPurchase && txn.SellerID != "" {
		if _, err := r.balances.Credit(ctx, txn.SellerID, txn.Amount,
			fmt.Sprintf("Ticket sale %s", txn.Number), "transaction", txn.ID); err != nil {
			return nil, fmt.Errorf("resolve: credit seller: %v", err)
		}
	}

	txn.PaymentHandle = fmt.Sprintf("BALANCE_PAYMENT_%d", time.Now().Unix())

	resulting := bal.Balance
	return &models.PaymentOutcome{
		Method:            models.MethodBalance,
		AmountCharged:     total,
		ExternalReference: txn.PaymentHandle,
		ResultingBalance:  &resulting,
	}, nil
}

// resolveCard captures the stored intent and confirms the result with
// the processor. A handle that is not a client secret never reaches the
// wire. A transport failure during capture fails the payment cleanly; a
// transport failure during confirmation leaves the true outcome unknown
// and is reported as such.
func (r *Resolver) resolveCard(ctx context.Context, txn *models.Transaction, card *payproc.CardDetails) (*models.PaymentOutcome, error) {
	if !strings.Contains(txn.PaymentHandle, payproc.SecretDelimiter) {
		return nil, status.ErrMalformedPaymentHandle
	}
	if card == nil {
		return nil, fmt.Errorf("resolve: card details required: %w", status.ErrInvalidAmount)
	}

	callCtx := ctx
	if r.paymentTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.paymentTimeout)
		defer cancel()
	}

	captureStart := time.Now()
	captured, err := r.breaker.Execute(callCtx, func() (any, error) {
		return r.processor.Capture(callCtx, txn.PaymentHandle, card)
	})
	r.trackProcessorCall("capture", captureStart)
	if err != nil {
		return nil, fmt.Errorf("resolve: capture: %w", status.ErrTransportFailure)
	}
	intent := captured.(*payproc.Intent)

	confirmStart := time.Now()
	confirmed, err := r.processor.RetrieveIntent(callCtx, intent.ID)
	r.trackProcessorCall("retrieve", confirmStart)
	if err != nil {
		// The charge may or may not have landed. Do not retry the
		// capture; surface the uncertainty instead.
		return nil, fmt.Errorf("resolve: confirm %s: %w", intent.ID, status.ErrPaymentConfirmationUnknown)
	}
	if confirmed.Status != payproc.IntentSucceeded {
		return nil, fmt.Errorf("resolve: %s: %w", intent.ID, status.ErrPaymentDeclined)
	}

	if txn.Type == models.TxnSecondaryPurchase && txn.SellerID != "" {
		if _, err := r.balances.Credit(ctx, txn.SellerID, txn.Amount,
			fmt.Sprintf("Ticket sale %s", txn.Number), "transaction", txn.ID); err != nil {
			return nil, fmt.Errorf("resolve: credit seller: %v", err)
		}
	}

	// The client secret served its purpose; from here on the handle is
	// the processor's payment identifier.
	txn.PaymentHandle = intent.ID

	total := RoundToCents(TotalWithFee(txn.Amount, r.cardFeeRate))
	return &models.PaymentOutcome{
		Method:            models.MethodCard,
		AmountCharged:     total,
		ExternalReference: intent.ID,
	}, nil
}

func (r *Resolver) applyCompletion(ctx context.Context, txn *models.Transaction) error {
	ticket, err := r.store.LoadTicket(ctx, txn.TicketID)
	if err != nil {
		return fmt.Errorf("resolve: completion: %v", err)
	}

	soldAt := time.Now()
	if txn.CompletedAt != nil {
		soldAt = *txn.CompletedAt
	}

	newStatus := models.TicketPurchased
	if txn.Type == models.TxnSecondaryPurchase {
		newStatus = models.TicketResold
	}
	if err := r.store.MarkTicketSold(ctx, txn.TicketID, txn.BuyerID, newStatus, soldAt); err != nil {
		return fmt.Errorf("resolve: completion: %v", err)
	}

	switch txn.Type {
	case models.TxnSecondaryPurchase:
		if txn.ListingID != "" {
			if err := r.store.MarkListingSold(ctx, txn.ListingID); err != nil {
				return fmt.Errorf("resolve: completion: %v", err)
			}
		}
	default:
		if err := r.store.DecrementAvailability(ctx, ticket.TierID); err != nil {
			return fmt.Errorf("resolve: completion: %v", err)
		}
	}
	return nil
}

// RefundTransaction reverses a completed transaction. Card payments go
// back through the processor; balance payments are re-credited on the
// ledger. Secondary sellers give back their proceeds.
func (r *Resolver) RefundTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if txn.Status != models.TxnCompleted {
		return txn, fmt.Errorf("refund: transaction %s not completed", txn.Number)
	}

	if strings.HasPrefix(txn.PaymentHandle, "BALANCE_PAYMENT_") {
		total := RoundToCents(TotalWithFee(txn.Amount, r.balanceFeeRate))
		if _, err := r.balances.Refund(ctx, txn.BuyerID, total,
			fmt.Sprintf("Refund %s", txn.Number), "transaction", txn.ID); err != nil {
			return txn, fmt.Errorf("refund: credit buyer: %v", err)
		}
	} else {
		total := RoundToCents(TotalWithFee(txn.Amount, r.cardFeeRate))
		if err := r.processor.Refund(ctx, txn.PaymentHandle, total); err != nil {
			return txn, fmt.Errorf("refund: processor: %w", status.ErrTransportFailure)
		}
	}

	if txn.Type == models.TxnSecondaryPurchase && txn.SellerID != "" {
		if _, err := r.balances.Debit(ctx, txn.SellerID, txn.Amount,
			fmt.Sprintf("Refund reversal %s", txn.Number), "transaction", txn.ID); err != nil {
			return txn, fmt.Errorf("refund: reverse seller credit: %v", err)
		}
	}

	txn.Status = models.TxnRefunded
	saved, err := r.store.SaveTransaction(ctx, txn)
	if err != nil {
		return txn, fmt.Errorf("refund: save: %v", err)
	}
	return saved, nil
}

func (r *Resolver) markFailed(ctx context.Context, txn *models.Transaction) {
	txn.Status = models.TxnFailed
	if _, err := r.store.SaveTransaction(ctx, txn); err != nil {
		log.Printf("resolve: mark failed %s: %v", txn.Number, err)
	}
}

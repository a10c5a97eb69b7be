package services

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-market/internal/services/payproc"
	"ticket-market/internal/status"
	"ticket-market/models"
	"ticket-market/utils"
)

type provisionStore interface {
	AvailableTickets(ctx context.Context, tierID string, limit int) ([]*models.Ticket, error)
	LoadListing(ctx context.Context, listingID string) (*models.Listing, error)
	SaveTransaction(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
}

// Provisioner turns a confirmed selection into a pending transaction: it
// soft-reserves inventory in redis, opens a payment intent when the buyer
// hinted at card payment, and writes the transaction record. Reservations
// expire on their own so abandoned sessions release inventory without a
// cleanup job.
type Provisioner struct {
	store       provisionStore
	redis       *redis.Client
	processor   payproc.Processor
	ttl         time.Duration
	cardFeeRate decimal.Decimal
	currency    string
}

func NewProvisioner(store provisionStore, redisClient *redis.Client, processor payproc.Processor, ttl time.Duration, cardFeeRate decimal.Decimal, currency string) *Provisioner {
	return &Provisioner{
		store:       store,
		redis:       redisClient,
		processor:   processor,
		ttl:         ttl,
		cardFeeRate: cardFeeRate,
		currency:    currency,
	}
}

// ProvisionPrimary reserves one unsold ticket under the tier and opens a
// pending transaction for it. Candidates are tried in order; losing every
// reservation race reports as no inventory.
func (p *Provisioner) ProvisionPrimary(ctx context.Context, buyerID string, tier *models.PricingTier, methodHint string) (*models.Transaction, error) {
	// The selection was validated against availability already; running
	// dry here means a concurrent buyer won the race.
	if tier.Available < 1 {
		return nil, status.ErrNoInventoryAvailable
	}

	candidates, err := p.store.AvailableTickets(ctx, tier.ID, 10)
	if err != nil {
		return nil, fmt.Errorf("provision: %v", err)
	}
	if len(candidates) == 0 {
		return nil, status.ErrNoInventoryAvailable
	}

	var reserved *models.Ticket
	for _, candidate := range candidates {
		ok, err := p.redis.SetNX(ctx, reservationKey("ticket", candidate.ID), buyerID, p.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("provision: reserve ticket: %v", err)
		}
		if ok {
			reserved = candidate
			break
		}
	}
	if reserved == nil {
		return nil, status.ErrNoInventoryAvailable
	}

	number, err := utils.TransactionNumber()
	if err != nil {
		p.redis.Del(ctx, reservationKey("ticket", reserved.ID))
		return nil, fmt.Errorf("provision: number: %v", err)
	}

	txn := &models.Transaction{
		Number:   number,
		Type:     models.TxnPrimaryPurchase,
		Status:   models.TxnPending,
		BuyerID:  buyerID,
		TicketID: reserved.ID,
		Amount:   RoundToCents(tier.Price),
		Method:   methodHint,
	}

	if err := p.attachPaymentHandle(ctx, txn, methodHint); err != nil {
		p.redis.Del(ctx, reservationKey("ticket", reserved.ID))
		return nil, err
	}

	saved, err := p.store.SaveTransaction(ctx, txn)
	if err != nil {
		p.redis.Del(ctx, reservationKey("ticket", reserved.ID))
		return nil, fmt.Errorf("provision: %v", err)
	}
	return saved, nil
}

// ProvisionSecondary reserves an active listing for the buyer. Buying
// your own listing is rejected outright.
func (p *Provisioner) ProvisionSecondary(ctx context.Context, buyerID string, listing *models.Listing, methodHint string) (*models.Transaction, error) {
	if listing.Status != models.ListingActive {
		return nil, status.ErrNoInventoryAvailable
	}
	if listing.SellerID == buyerID {
		return nil, fmt.Errorf("provision: cannot buy own listing: %w", status.ErrInvalidAmount)
	}

	ok, err := p.redis.SetNX(ctx, reservationKey("listing", listing.ID), buyerID, p.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("provision: reserve listing: %v", err)
	}
	if !ok {
		return nil, status.ErrNoInventoryAvailable
	}

	number, err := utils.TransactionNumber()
	if err != nil {
		p.redis.Del(ctx, reservationKey("listing", listing.ID))
		return nil, fmt.Errorf("provision: number: %v", err)
	}

	txn := &models.Transaction{
		Number:    number,
		Type:      models.TxnSecondaryPurchase,
		Status:    models.TxnPending,
		BuyerID:   buyerID,
		SellerID:  listing.SellerID,
		TicketID:  listing.TicketID,
		ListingID: listing.ID,
		Amount:    RoundToCents(listing.AskingPrice),
		Method:    methodHint,
	}

	if err := p.attachPaymentHandle(ctx, txn, methodHint); err != nil {
		p.redis.Del(ctx, reservationKey("listing", listing.ID))
		return nil, err
	}

	saved, err := p.store.SaveTransaction(ctx, txn)
	if err != nil {
		p.redis.Del(ctx, reservationKey("listing", listing.ID))
		return nil, fmt.Errorf("provision: %v", err)
	}
	return saved, nil
}

// Release drops the reservation behind a transaction that will not
// proceed. Safe to call on expired reservations.
func (p *Provisioner) Release(ctx context.Context, txn *models.Transaction) error {
	key := reservationKey("ticket", txn.TicketID)
	if txn.Type == models.TxnSecondaryPurchase {
		key = reservationKey("listing", txn.ListingID)
	}
	if err := p.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("provision: release: %v", err)
	}
	return nil
}

// attachPaymentHandle stamps the transaction with the handle matching the
// buyer's method hint. Card opens a processor intent up front; the stored
// handle is the intent's client secret until capture replaces it. Balance
// gets a placeholder that the resolver rewrites on completion.
func (p *Provisioner) attachPaymentHandle(ctx context.Context, txn *models.Transaction, methodHint string) error {
	switch methodHint {
	case models.MethodCard:
		total := RoundToCents(TotalWithFee(txn.Amount, p.cardFeeRate))
		intent, err := p.processor.CreateIntent(ctx, total, p.currency, txn.Number)
		if err != nil {
			return fmt.Errorf("provision: create intent: %w", status.ErrTransportFailure)
		}
		txn.PaymentHandle = intent.ClientSecret
	default:
		txn.PaymentHandle = fmt.Sprintf("BALANCE_PENDING_%d", time.Now().Unix())
	}
	return nil
}

func reservationKey(kind, id string) string {
	return fmt.Sprintf("reserve:%s:%s", kind, id)
}

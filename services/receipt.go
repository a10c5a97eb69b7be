package services

import (
	"context"
	"fmt"
	"log"
	"time"

	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"ticket-market/models"
)

// ReceiptInput is the pre-assembled display material for one finalized
// purchase. The caller loads names and numbers; the notifier only
// projects and announces.
type ReceiptInput struct {
	UserID        string
	EventName     string
	Venue         string
	TierID        string
	TierName      string
	Section       string
	TicketNumbers []string
	Transactions  []*models.Transaction
	Outcomes      []*models.PaymentOutcome
}

type publisher interface {
	Publish(channel string, message any) error
}

// PubNubPublisher pushes realtime notifications to per-user channels.
type PubNubPublisher struct {
	PN *pubnub.PubNub
}

func (p *PubNubPublisher) Publish(channel string, message any) error {
	_, _, err := p.PN.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// Notifier builds the purchase receipt and applies the optimistic cache
// projection. All authoritative mutation already happened during payment
// resolution; everything here is best-effort display state, superseded
// by the next full read.
type Notifier struct {
	redis *redis.Client
	pub   publisher
}

func NewNotifier(redisClient *redis.Client, pub publisher) *Notifier {
	return &Notifier{redis: redisClient, pub: pub}
}

// Finalize merges transactions and payment outcomes into a receipt,
// nudges the cached availability and balance counters, and announces the
// purchase on the buyer's channel.
func (n *Notifier) Finalize(ctx context.Context, in ReceiptInput) (*models.PurchaseReceipt, error) {
	if len(in.Transactions) == 0 || len(in.Outcomes) == 0 {
		return nil, fmt.Errorf("notifier: finalize: nothing to finalize")
	}

	receipt := &models.PurchaseReceipt{
		EventName:     in.EventName,
		Venue:         in.Venue,
		TierName:      in.TierName,
		Section:       in.Section,
		TicketNumbers: in.TicketNumbers,
		Method:        in.Outcomes[0].Method,
		AmountCharged: decimal.Zero,
		CompletedAt:   time.Now(),
	}

	primaryCount := 0
	for _, txn := range in.Transactions {
		receipt.TransactionNumbers = append(receipt.TransactionNumbers, txn.Number)
		if txn.Primary() {
			primaryCount++
		}
		if txn.CompletedAt != nil {
			receipt.CompletedAt = *txn.CompletedAt
		}
	}
	for _, outcome := range in.Outcomes {
		receipt.AmountCharged = receipt.AmountCharged.Add(outcome.AmountCharged)
		if outcome.ResultingBalance != nil {
			receipt.ResultingBalance = outcome.ResultingBalance
		}
	}
	receipt.AmountCharged = RoundToCents(receipt.AmountCharged)

	n.project(ctx, in, primaryCount, receipt)

	if n.pub != nil {
		payload := map[string]any{
			"type":    "purchase_success",
			"event":   receipt.EventName,
			"tickets": receipt.TicketNumbers,
			"amount":  receipt.AmountCharged.String(),
			"method":  receipt.Method,
		}
		if err := n.pub.Publish(fmt.Sprintf("user-%s", in.UserID), payload); err != nil {
			log.Printf("notifier: publish to user-%s: %v", in.UserID, err)
		}
	}

	return receipt, nil
}

// project nudges the cached counters by the known delta. Best-effort:
// errors are logged, never surfaced, and the next authoritative read
// overwrites whatever this wrote.
func (n *Notifier) project(ctx context.Context, in ReceiptInput, primaryCount int, receipt *models.PurchaseReceipt) {
	if primaryCount > 0 && in.TierID != "" {
		key := fmt.Sprintf("avail:tier:%s", in.TierID)
		if err := n.redis.DecrBy(ctx, key, int64(primaryCount)).Err(); err != nil {
			log.Printf("notifier: decrement %s: %v", key, err)
		}
	}

	if receipt.ResultingBalance != nil {
		balanceKey := fmt.Sprintf("balance:%s", in.UserID)
		if err := n.redis.Set(ctx, balanceKey, receipt.ResultingBalance.String(), balanceCacheTTL).Err(); err != nil {
			log.Printf("notifier: cache balance: %v", err)
		}
	}
}

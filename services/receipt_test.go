package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticket-market/models"
)

type capturePublisher struct {
	channel string
	message any
}

func (c *capturePublisher) Publish(channel string, message any) error {
	c.channel = channel
	c.message = message
	return nil
}

func TestNotifier_Finalize_BuildsReceipt(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := &capturePublisher{}
	notifier := NewNotifier(db, pub)

	completedAt := time.Unix(1756500000, 0)
	balance := decimal.NewFromInt(100)

	in := ReceiptInput{
		UserID:        "buyer1",
		EventName:     "Summer Fest",
		Venue:         "Riverside Arena",
		TierID:        "tier1",
		TierName:      "GA",
		Section:       "Floor",
		TicketNumbers: []string{"TKT-AAA111", "TKT-BBB222"},
		Transactions: []*models.Transaction{
			{Number: "TXN-0001", Type: models.TxnPrimaryPurchase, CompletedAt: &completedAt},
			{Number: "TXN-0002", Type: models.TxnPrimaryPurchase, CompletedAt: &completedAt},
		},
		Outcomes: []*models.PaymentOutcome{
			{Method: models.MethodBalance, AmountCharged: decimal.NewFromInt(150), ResultingBalance: &balance},
			{Method: models.MethodBalance, AmountCharged: decimal.NewFromInt(150), ResultingBalance: &balance},
		},
	}

	mock.ExpectDecrBy("avail:tier:tier1", 2).SetVal(3)
	mock.ExpectSet("balance:buyer1", "100", balanceCacheTTL).SetVal("OK")

	receipt, err := notifier.Finalize(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []string{"TXN-0001", "TXN-0002"}, receipt.TransactionNumbers)
	assert.Equal(t, "Summer Fest", receipt.EventName)
	assert.True(t, receipt.AmountCharged.Equal(decimal.NewFromInt(300)))
	require.NotNil(t, receipt.ResultingBalance)
	assert.True(t, receipt.ResultingBalance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, completedAt, receipt.CompletedAt)

	assert.Equal(t, "user-buyer1", pub.channel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifier_Finalize_SecondaryNoDecrement(t *testing.T) {
	db, mock := redismock.NewClientMock()
	notifier := NewNotifier(db, nil)

	in := ReceiptInput{
		UserID:        "buyer1",
		EventName:     "Summer Fest",
		TierID:        "tier1",
		TicketNumbers: []string{"TKT-AAA111"},
		Transactions: []*models.Transaction{
			{Number: "TXN-0001", Type: models.TxnSecondaryPurchase},
		},
		Outcomes: []*models.PaymentOutcome{
			{Method: models.MethodCard, AmountCharged: decimal.NewFromFloat(61.74)},
		},
	}

	receipt, err := notifier.Finalize(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, receipt.AmountCharged.Equal(decimal.NewFromFloat(61.74)))
	assert.Nil(t, receipt.ResultingBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotifier_Finalize_Empty(t *testing.T) {
	db, _ := redismock.NewClientMock()
	notifier := NewNotifier(db, nil)

	_, err := notifier.Finalize(context.Background(), ReceiptInput{})
	assert.Error(t, err)
}

package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestBalanceEntry_Signed(t *testing.T) {
	amount := decimal.NewFromInt(25)

	cases := []struct {
		entryType string
		want      decimal.Decimal
	}{
		{EntryCredit, amount},
		{EntryRefund, amount},
		{EntryDebit, amount.Neg()},
		{EntryWithdrawal, amount.Neg()},
	}

	for _, c := range cases {
		entry := &BalanceEntry{Type: c.entryType, Amount: amount}
		assert.True(t, entry.Signed().Equal(c.want), "type %s", c.entryType)
	}
}

func TestTransaction_Primary(t *testing.T) {
	assert.True(t, (&Transaction{Type: TxnPrimaryPurchase}).Primary())
	assert.False(t, (&Transaction{Type: TxnSecondaryPurchase}).Primary())
	assert.False(t, (&Transaction{Type: TxnRefund}).Primary())
}

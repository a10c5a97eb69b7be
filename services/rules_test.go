package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ticket-market/internal/status"
)

func TestValidateResalePrice_WithinCap(t *testing.T) {
	err := ValidateResalePrice(decimal.NewFromInt(70), decimal.NewFromInt(75))
	assert.NoError(t, err)

	// Asking exactly the original price is allowed
	err = ValidateResalePrice(decimal.NewFromInt(75), decimal.NewFromInt(75))
	assert.NoError(t, err)
}

func TestValidateResalePrice_AboveCap(t *testing.T) {
	// $90 asked on a $75 face value ticket
	err := ValidateResalePrice(decimal.NewFromInt(90), decimal.NewFromInt(75))
	assert.ErrorIs(t, err, status.ErrPriceCapExceeded)
}

func TestValidateResalePrice_NonPositive(t *testing.T) {
	assert.ErrorIs(t, ValidateResalePrice(decimal.Zero, decimal.NewFromInt(75)), status.ErrInvalidAmount)
	assert.ErrorIs(t, ValidateResalePrice(decimal.NewFromInt(-5), decimal.NewFromInt(75)), status.ErrInvalidAmount)
}

func TestValidateQuantity(t *testing.T) {
	assert.NoError(t, ValidateQuantity(1, 5))
	assert.NoError(t, ValidateQuantity(5, 5))
	assert.ErrorIs(t, ValidateQuantity(6, 5), status.ErrInsufficientInventory)
	assert.ErrorIs(t, ValidateQuantity(0, 5), status.ErrInsufficientInventory)
	assert.ErrorIs(t, ValidateQuantity(-1, 5), status.ErrInsufficientInventory)
}

func TestCanPayWithBalance(t *testing.T) {
	// $150 tier, quantity 2, against a $400 balance
	total := decimal.NewFromInt(150).Mul(decimal.NewFromInt(2))
	assert.True(t, CanPayWithBalance(total, decimal.NewFromInt(400)))

	assert.True(t, CanPayWithBalance(decimal.NewFromInt(400), decimal.NewFromInt(400)))
	assert.False(t, CanPayWithBalance(decimal.NewFromFloat(400.01), decimal.NewFromInt(400)))
}

func TestTotalWithFee_CardRate(t *testing.T) {
	cardRate := decimal.NewFromFloat(0.029)

	// $50 card purchase charges $51.45
	total := RoundToCents(TotalWithFee(decimal.NewFromInt(50), cardRate))
	assert.True(t, total.Equal(decimal.NewFromFloat(51.45)), "got %s", total)

	// $150 card purchase charges $154.35
	total = RoundToCents(TotalWithFee(decimal.NewFromInt(150), cardRate))
	assert.True(t, total.Equal(decimal.NewFromFloat(154.35)), "got %s", total)
}

func TestTotalWithFee_BalanceRateIsExact(t *testing.T) {
	total := RoundToCents(TotalWithFee(decimal.NewFromInt(300), decimal.Zero))
	assert.True(t, total.Equal(decimal.NewFromInt(300)))
}

func TestRoundToCents(t *testing.T) {
	rounded := RoundToCents(decimal.NewFromFloat(51.444))
	assert.Equal(t, "51.44", rounded.StringFixed(2))

	rounded = RoundToCents(decimal.NewFromFloat(51.445))
	assert.Equal(t, "51.45", rounded.StringFixed(2))
}

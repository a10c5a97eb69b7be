package services

import (
	"github.com/shopspring/decimal"

	"ticket-market/internal/status"
)

// Pricing and eligibility rules. Pure predicates evaluated before any
// mutating call; the server-side checks at capture time stay authoritative.

// ValidateResalePrice enforces the fair-price cap: a resale asking price
// may never exceed the ticket's original primary-sale price.
func ValidateResalePrice(askingPrice, originalPrice decimal.Decimal) error {
	if askingPrice.LessThanOrEqual(decimal.Zero) {
		return status.ErrInvalidAmount
	}
	if askingPrice.GreaterThan(originalPrice) {
		return status.ErrPriceCapExceeded
	}
	return nil
}

// ValidateQuantity checks a requested unit count against availability.
func ValidateQuantity(requested, available int) error {
	if requested < 1 || requested > available {
		return status.ErrInsufficientInventory
	}
	return nil
}

// CanPayWithBalance reports whether the cached balance covers amount. The
// result is advisory: a later server rejection wins over a true here
// (stale balance).
func CanPayWithBalance(amount, currentBalance decimal.Decimal) bool {
	return currentBalance.GreaterThanOrEqual(amount)
}

// RoundToCents rounds half-up to two decimal places.
func RoundToCents(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(2)
}

// TotalWithFee applies a processing fee rate and rounds to cents.
func TotalWithFee(price, feeRate decimal.Decimal) decimal.Decimal {
	rate := decimal.NewFromFloat(1).Add(feeRate)
	return RoundToCents(price.Mul(rate))
}

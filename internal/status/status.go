package status

import "errors"

// Class buckets an error for the HTTP edge. Actionable errors are the
// caller's to fix and map to 4xx; retryable errors mean the system could
// not complete the request and map to 5xx.
type Class int

const (
	ClassActionable Class = iota
	ClassRetryable
)

var (
	ErrInvalidAmount              = errors.New("pricing: amount must be a positive value")
	ErrPriceCapExceeded           = errors.New("listing: asking price exceeds original ticket price")
	ErrInsufficientInventory      = errors.New("inventory: requested quantity exceeds availability")
	ErrInsufficientBalance        = errors.New("balance: insufficient balance for this payment")
	ErrNoInventoryAvailable       = errors.New("inventory: no units available at provisioning time")
	ErrMalformedPaymentHandle     = errors.New("payment: provisioning handle is missing the secret delimiter")
	ErrPaymentDeclined            = errors.New("payment: the processor declined the charge")
	ErrPaymentConfirmationUnknown = errors.New("payment: capture may have succeeded but confirmation did not complete; check transaction status before retrying")
	ErrOperationInProgress        = errors.New("purchase: another step is already in flight for this session")
	ErrTransportFailure           = errors.New("transport: request could not be completed")
)

// Classify maps a domain error to its edge class. Unknown errors are
// treated as retryable so transport faults never masquerade as caller
// mistakes.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrPriceCapExceeded),
		errors.Is(err, ErrInsufficientInventory),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrMalformedPaymentHandle),
		errors.Is(err, ErrPaymentDeclined),
		errors.Is(err, ErrOperationInProgress):
		return ClassActionable
	case errors.Is(err, ErrNoInventoryAvailable):
		// lost race with a concurrent buyer: retryable, not a caller mistake
		return ClassRetryable
	default:
		return ClassRetryable
	}
}

func Retryable(err error) bool {
	return Classify(err) == ClassRetryable
}

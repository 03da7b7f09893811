package wallet

import "errors"

var (
	// ErrInsufficientFunds means a debit would exceed the owner's balance.
	// Consultations ending on this error are closed with a zero charge,
	// never a partial or negative-balance one.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount rejects non-positive or malformed amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrNotReversible means the referenced transaction is not a completed,
	// un-reversed entry.
	ErrNotReversible = errors.New("transaction cannot be reversed")
)

// Package wallet is the only writer of wallet balances. Every balance
// change, including reconciliation repairs, flows through the Ledger so
// balance and transaction history stay provably consistent.
package wallet

import (
	"context"

	"consultly/models"
)

// Settlement is the monetary outcome of one consultation, applied exactly
// once.
type Settlement struct {
	ClientTxn   *models.WalletTransaction
	ProviderTxn *models.WalletTransaction

	// AlreadySettled is true when a prior settlement existed and was returned
	// unchanged instead of being re-applied.
	AlreadySettled bool
}

// Ledger applies consultation settlements and wallet adjustments.
type Ledger interface {
	// Settle debits the client by amount, credits the provider by
	// round2(amount * (1 - commissionRate)) and records both transactions,
	// atomically and at most once per consultation. A second call for the
	// same consultation returns the existing settlement with AlreadySettled
	// set. A zero amount settles to an empty result with no transactions.
	// Fails with ErrInsufficientFunds when the client cannot cover amount.
	Settle(ctx context.Context, consultationID string, client, provider models.AccountRef, amount, commissionRate float64) (*Settlement, error)

	// Reverse voids a completed transaction by appending a compensating
	// entry and marking the original reversed. History is never deleted.
	Reverse(ctx context.Context, transactionID, reason string) (*models.WalletTransaction, error)

	// Credit adds funds to a wallet (top-up, refund, platform compensation).
	Credit(ctx context.Context, owner models.AccountRef, amount float64, txnType, note string) (*models.WalletTransaction, error)

	// Debit removes funds from a wallet (withdrawal). Fails with
	// ErrInsufficientFunds when the balance cannot cover it.
	Debit(ctx context.Context, owner models.AccountRef, amount float64, txnType, note string) (*models.WalletTransaction, error)

	Balance(owner models.AccountRef) (float64, error)
	Transactions(owner models.AccountRef, limit int64) ([]models.WalletTransaction, error)
}

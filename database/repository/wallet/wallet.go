package walletRepo

import (
	"context"
	"errors"

	"consultly/models"
)

// ErrInsufficientBalance is returned when a debit would take a wallet below
// zero. Balances are never allowed to go negative.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// WalletRepository persists wallet transactions and is the only code allowed
// to touch wallet_balance fields. Everything above it goes through the
// wallet ledger service.
type WalletRepository interface {
	// FindCompletedByConsultation returns the completed transaction of the
	// given type for a consultation, or nil when none exists. This backs the
	// settlement idempotency guard.
	FindCompletedByConsultation(consultationID, txnType string) (*models.WalletTransaction, error)

	GetTransaction(id string) (*models.WalletTransaction, error)
	ListByOwner(owner models.AccountRef, limit int64) ([]models.WalletTransaction, error)

	// GetBalance reads the owner's current wallet balance.
	GetBalance(owner models.AccountRef) (float64, error)

	// SumAppliedDeltas recomputes the balance from transaction history
	// (completed entries plus reversed originals, which did apply before
	// being compensated). The reconciliation sweep compares it against
	// GetBalance to detect drift.
	SumAppliedDeltas(owner models.AccountRef) (float64, error)

	// ApplySettlement atomically debits the client, credits the provider and
	// inserts both transactions in one multi-document transaction. The
	// transactions' BalanceAfter fields are filled in from the post-update
	// balances. Returns ErrInsufficientBalance without side effects when the
	// client cannot cover the debit.
	ApplySettlement(ctx context.Context, clientTxn, providerTxn *models.WalletTransaction) error

	// ApplyAdjustment applies a single signed transaction (top-up, refund,
	// withdrawal, reversal) to its owner's balance and records it.
	ApplyAdjustment(ctx context.Context, txn *models.WalletTransaction) error

	// MarkReversed flips a transaction to cancelled and flags it reversed.
	// Used only by the reversal path; rows are never deleted or edited
	// otherwise.
	MarkReversed(id string) error
}

package models

import "time"

// Wallet transaction types. Amount is signed by type: payments, debits and
// withdrawals reduce the owner's balance; earnings, credits and refunds
// increase it.
const (
	TxnTypePayment    = "payment"
	TxnTypeEarning    = "earning"
	TxnTypeRefund     = "refund"
	TxnTypeCredit     = "credit"
	TxnTypeDebit      = "debit"
	TxnTypeWithdrawal = "withdrawal"
)

// Wallet transaction statuses.
const (
	TxnStatusPending   = "pending"
	TxnStatusCompleted = "completed"
	TxnStatusCancelled = "cancelled"
)

// AccountRef identifies a wallet owner.
type AccountRef struct {
	OwnerID   string `bson:"owner_id" json:"owner_id"`
	OwnerKind string `bson:"owner_kind" json:"owner_kind"` // user | guest | provider | platform
}

// WalletTransaction is an immutable ledger entry. Transactions are append
// only; corrections happen via reversal transactions, never by editing or
// deleting existing entries.
type WalletTransaction struct {
	ID        string  `bson:"id" json:"id"`
	OwnerID   string  `bson:"owner_id" json:"owner_id"`
	OwnerKind string  `bson:"owner_kind" json:"owner_kind"`
	Amount    float64 `bson:"amount" json:"amount"` // Signed delta applied to the owner's balance

	// BalanceAfter snapshots the owner's balance immediately after this
	// transaction was applied.
	BalanceAfter float64 `bson:"balance_after" json:"balance_after"`

	Type   string `bson:"type" json:"type"`
	Status string `bson:"status" json:"status"`

	ConsultationID string `bson:"consultation_id,omitempty" json:"consultation_id,omitempty"`
	ReversalOf     string `bson:"reversal_of,omitempty" json:"reversal_of,omitempty"`
	Note           string `bson:"note,omitempty" json:"note,omitempty"`

	// Reversed marks a completed transaction that was later voided by a
	// reversal. Its balance effect happened and was compensated by the
	// reversal entry, so it still counts toward the history sum.
	Reversed bool `bson:"reversed,omitempty" json:"reversed,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Delta returns the signed effect this transaction had on the owner's
// balance: completed transactions and reversed originals both applied;
// anything else never touched the balance.
func (t *WalletTransaction) Delta() float64 {
	if t.Status == TxnStatusCompleted || t.Reversed {
		return t.Amount
	}
	return 0
}

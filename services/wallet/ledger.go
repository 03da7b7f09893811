package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	walletRepo "consultly/database/repository/wallet"
	"consultly/models"
	"consultly/services/billing"
	"consultly/services/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// settleAttempts bounds retries of the settlement transaction on transient
// persistence errors. Safe to retry because the idempotency guard is checked
// on every attempt.
const settleAttempts = 3

// DefaultLedger implements Ledger on top of the wallet repository.
type DefaultLedger struct {
	Repo      walletRepo.WalletRepository
	Publisher events.Publisher
	Logger    *zap.Logger
}

func NewDefaultLedger(repo walletRepo.WalletRepository, pub events.Publisher, logger *zap.Logger) *DefaultLedger {
	return &DefaultLedger{Repo: repo, Publisher: pub, Logger: logger}
}

// Settle applies a consultation's charge and earning exactly once.
func (l *DefaultLedger) Settle(ctx context.Context, consultationID string, client, provider models.AccountRef, amount, commissionRate float64) (*Settlement, error) {
	if amount < 0 {
		return nil, ErrInvalidAmount
	}
	if commissionRate < 0 || commissionRate > 1 {
		return nil, fmt.Errorf("commission rate %.4f out of range", commissionRate)
	}
	if amount == 0 {
		// Free consultation: nothing to move, nothing to record.
		return &Settlement{}, nil
	}

	var lastErr error
	for attempt := 1; attempt <= settleAttempts; attempt++ {
		// Idempotency guard: a completed client payment for this consultation
		// means settlement already happened. Return it unchanged.
		existing, err := l.Repo.FindCompletedByConsultation(consultationID, models.TxnTypePayment)
		if err != nil {
			lastErr = err
			continue
		}
		if existing != nil {
			earning, err := l.Repo.FindCompletedByConsultation(consultationID, models.TxnTypeEarning)
			if err != nil {
				return nil, err
			}
			l.Logger.Info("settlement already applied, returning existing result",
				zap.String("consultationId", consultationID))
			return &Settlement{ClientTxn: existing, ProviderTxn: earning, AlreadySettled: true}, nil
		}

		now := time.Now()
		clientTxn := &models.WalletTransaction{
			ID:             uuid.New().String(),
			OwnerID:        client.OwnerID,
			OwnerKind:      client.OwnerKind,
			Amount:         -amount,
			Type:           models.TxnTypePayment,
			Status:         models.TxnStatusCompleted,
			ConsultationID: consultationID,
			CreatedAt:      now,
		}
		providerTxn := &models.WalletTransaction{
			ID:             uuid.New().String(),
			OwnerID:        provider.OwnerID,
			OwnerKind:      provider.OwnerKind,
			Amount:         billing.ProviderShare(amount, commissionRate),
			Type:           models.TxnTypeEarning,
			Status:         models.TxnStatusCompleted,
			ConsultationID: consultationID,
			CreatedAt:      now,
		}

		if err := l.Repo.ApplySettlement(ctx, clientTxn, providerTxn); err != nil {
			if errors.Is(err, walletRepo.ErrInsufficientBalance) {
				return nil, ErrInsufficientFunds
			}
			lastErr = err
			l.Logger.Warn("settlement attempt failed, retrying",
				zap.String("consultationId", consultationID),
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		l.publish(ctx, models.EventWalletDebited, map[string]interface{}{
			"ownerId":        client.OwnerID,
			"ownerKind":      client.OwnerKind,
			"amount":         amount,
			"consultationId": consultationID,
			"balanceAfter":   clientTxn.BalanceAfter,
		})
		l.publish(ctx, models.EventWalletCredited, map[string]interface{}{
			"ownerId":        provider.OwnerID,
			"ownerKind":      provider.OwnerKind,
			"amount":         providerTxn.Amount,
			"consultationId": consultationID,
			"balanceAfter":   providerTxn.BalanceAfter,
		})
		return &Settlement{ClientTxn: clientTxn, ProviderTxn: providerTxn}, nil
	}

	return nil, fmt.Errorf("settlement failed for consultation %s after %d attempts: %w", consultationID, settleAttempts, lastErr)
}

// Reverse voids a completed transaction by appending the inverse entry.
func (l *DefaultLedger) Reverse(ctx context.Context, transactionID, reason string) (*models.WalletTransaction, error) {
	original, err := l.Repo.GetTransaction(transactionID)
	if err != nil {
		return nil, err
	}
	if original.Status != models.TxnStatusCompleted || original.Reversed {
		return nil, ErrNotReversible
	}

	reversalType := models.TxnTypeRefund
	if original.Amount > 0 {
		reversalType = models.TxnTypeDebit
	}

	reversal := &models.WalletTransaction{
		ID:             uuid.New().String(),
		OwnerID:        original.OwnerID,
		OwnerKind:      original.OwnerKind,
		Amount:         -original.Amount,
		Type:           reversalType,
		Status:         models.TxnStatusCompleted,
		ConsultationID: original.ConsultationID,
		ReversalOf:     original.ID,
		Note:           reason,
		CreatedAt:      time.Now(),
	}

	if err := l.Repo.ApplyAdjustment(ctx, reversal); err != nil {
		if errors.Is(err, walletRepo.ErrInsufficientBalance) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}
	if err := l.Repo.MarkReversed(original.ID); err != nil {
		// The reversal already applied; losing the flag is a bookkeeping
		// wart, not a money error. Surface it loudly.
		l.Logger.Error("reversal applied but original not marked",
			zap.String("transactionId", original.ID), zap.Error(err))
	}

	l.Logger.Info("transaction reversed",
		zap.String("transactionId", original.ID),
		zap.String("reversalId", reversal.ID),
		zap.String("reason", reason))
	return reversal, nil
}

// Credit adds funds to a wallet.
func (l *DefaultLedger) Credit(ctx context.Context, owner models.AccountRef, amount float64, txnType, note string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	txn := &models.WalletTransaction{
		ID:        uuid.New().String(),
		OwnerID:   owner.OwnerID,
		OwnerKind: owner.OwnerKind,
		Amount:    billing.Round2(amount),
		Type:      txnType,
		Status:    models.TxnStatusCompleted,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if err := l.Repo.ApplyAdjustment(ctx, txn); err != nil {
		return nil, err
	}

	l.publish(ctx, models.EventWalletCredited, map[string]interface{}{
		"ownerId":      owner.OwnerID,
		"ownerKind":    owner.OwnerKind,
		"amount":       txn.Amount,
		"balanceAfter": txn.BalanceAfter,
	})
	return txn, nil
}

// Debit removes funds from a wallet.
func (l *DefaultLedger) Debit(ctx context.Context, owner models.AccountRef, amount float64, txnType, note string) (*models.WalletTransaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	txn := &models.WalletTransaction{
		ID:        uuid.New().String(),
		OwnerID:   owner.OwnerID,
		OwnerKind: owner.OwnerKind,
		Amount:    -billing.Round2(amount),
		Type:      txnType,
		Status:    models.TxnStatusCompleted,
		Note:      note,
		CreatedAt: time.Now(),
	}
	if err := l.Repo.ApplyAdjustment(ctx, txn); err != nil {
		if errors.Is(err, walletRepo.ErrInsufficientBalance) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	l.publish(ctx, models.EventWalletDebited, map[string]interface{}{
		"ownerId":      owner.OwnerID,
		"ownerKind":    owner.OwnerKind,
		"amount":       amount,
		"balanceAfter": txn.BalanceAfter,
	})
	return txn, nil
}

func (l *DefaultLedger) Balance(owner models.AccountRef) (float64, error) {
	return l.Repo.GetBalance(owner)
}

func (l *DefaultLedger) Transactions(owner models.AccountRef, limit int64) ([]models.WalletTransaction, error) {
	return l.Repo.ListByOwner(owner, limit)
}

func (l *DefaultLedger) publish(ctx context.Context, name string, data map[string]interface{}) {
	if l.Publisher == nil {
		return
	}
	if err := l.Publisher.Publish(ctx, name, data); err != nil {
		l.Logger.Warn("event publish failed", zap.String("event", name), zap.Error(err))
	}
}

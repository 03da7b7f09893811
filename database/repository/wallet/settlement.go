package walletRepo

import (
	"context"
	"fmt"

	"consultly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// applyDelta applies a signed balance change to one owner document and
// returns the post-update balance. Debits are conditioned on the balance
// covering the amount, so a wallet can never go negative.
func (r *MongoWalletRepo) applyDelta(ctx context.Context, owner models.AccountRef, delta float64) (float64, error) {
	coll, err := r.collForKind(owner.OwnerKind)
	if err != nil {
		return 0, err
	}

	filter := bson.M{"id": owner.OwnerID}
	if delta < 0 {
		filter["wallet_balance"] = bson.M{"$gte": -delta}
	}
	update := bson.M{"$inc": bson.M{"wallet_balance": delta}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"wallet_balance": 1})

	var doc struct {
		WalletBalance float64 `bson:"wallet_balance"`
	}
	if err := coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments && delta < 0 {
			return 0, ErrInsufficientBalance
		}
		return 0, fmt.Errorf("failed to apply balance delta for %s %s: %w", owner.OwnerKind, owner.OwnerID, err)
	}
	return doc.WalletBalance, nil
}

// runInTransaction executes fn inside a MongoDB session transaction.
func (r *MongoWalletRepo) runInTransaction(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	client := r.txnColl.Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("could not start mongo session: %w", err)
	}
	defer sess.EndSession(ctx)

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return err
		}
		if err := fn(sc); err != nil {
			_ = sc.AbortTransaction(sc)
			return err
		}
		return sc.CommitTransaction(sc)
	})
}

// ApplySettlement debits the client, credits the provider and records both
// transactions atomically. On ErrInsufficientBalance nothing is persisted.
func (r *MongoWalletRepo) ApplySettlement(ctx context.Context, clientTxn, providerTxn *models.WalletTransaction) error {
	txnFn := func(sc mongo.SessionContext) error {
		clientBalance, err := r.applyDelta(sc, models.AccountRef{OwnerID: clientTxn.OwnerID, OwnerKind: clientTxn.OwnerKind}, clientTxn.Amount)
		if err != nil {
			return err
		}
		clientTxn.BalanceAfter = clientBalance

		if _, err := r.txnColl.InsertOne(sc, clientTxn); err != nil {
			return fmt.Errorf("insert client payment failed: %w", err)
		}

		if providerTxn != nil {
			providerBalance, err := r.applyDelta(sc, models.AccountRef{OwnerID: providerTxn.OwnerID, OwnerKind: providerTxn.OwnerKind}, providerTxn.Amount)
			if err != nil {
				return err
			}
			providerTxn.BalanceAfter = providerBalance

			if _, err := r.txnColl.InsertOne(sc, providerTxn); err != nil {
				return fmt.Errorf("insert provider earning failed: %w", err)
			}
		}
		return nil
	}

	if err := r.runInTransaction(ctx, txnFn); err != nil {
		if err == ErrInsufficientBalance {
			return err
		}
		return fmt.Errorf("settlement transaction failed: %w", err)
	}
	return nil
}

// ApplyAdjustment applies a single signed transaction to its owner's balance
// and records it, atomically.
func (r *MongoWalletRepo) ApplyAdjustment(ctx context.Context, txn *models.WalletTransaction) error {
	txnFn := func(sc mongo.SessionContext) error {
		balance, err := r.applyDelta(sc, models.AccountRef{OwnerID: txn.OwnerID, OwnerKind: txn.OwnerKind}, txn.Amount)
		if err != nil {
			return err
		}
		txn.BalanceAfter = balance

		if _, err := r.txnColl.InsertOne(sc, txn); err != nil {
			return fmt.Errorf("insert transaction failed: %w", err)
		}
		return nil
	}

	if err := r.runInTransaction(ctx, txnFn); err != nil {
		if err == ErrInsufficientBalance {
			return err
		}
		return fmt.Errorf("adjustment transaction failed: %w", err)
	}
	return nil
}

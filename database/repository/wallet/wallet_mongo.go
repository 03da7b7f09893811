package walletRepo

import (
	"context"
	"fmt"
	"time"

	"consultly/database"
	"consultly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWalletRepo implements WalletRepository using MongoDB. Transactions
// live in their own collection; balances live on the owner documents.
type MongoWalletRepo struct {
	txnColl   *mongo.Collection
	userColl  *mongo.Collection
	guestColl *mongo.Collection
	provColl  *mongo.Collection
	platColl  *mongo.Collection
}

// NewMongoWalletRepo creates a new WalletRepository backed by MongoDB.
func NewMongoWalletRepo() WalletRepository {
	db := database.MongoClient.Database(database.DatabaseName)
	repo := &MongoWalletRepo{
		txnColl:   db.Collection("transactions"),
		userColl:  db.Collection("users"),
		guestColl: db.Collection("guests"),
		provColl:  db.Collection("providers"),
		platColl:  db.Collection("platform_accounts"),
	}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create transaction indexes: %v\n", err)
	}
	return repo
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// ensureIndexes creates lookup indexes plus the partial unique index that
// backs the settlement idempotency guard at the storage layer: at most one
// completed transaction per (consultation, owner, type).
func (r *MongoWalletRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "consultation_id", Value: 1}, {Key: "type", Value: 1}}},
		{
			Keys: bson.D{{Key: "consultation_id", Value: 1}, {Key: "owner_id", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status":          models.TxnStatusCompleted,
					"consultation_id": bson.M{"$exists": true, "$gt": ""},
				}),
		},
	}

	if _, err := r.txnColl.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// collForKind maps an owner kind to the collection carrying its balance.
func (r *MongoWalletRepo) collForKind(kind string) (*mongo.Collection, error) {
	switch kind {
	case models.OwnerKindUser:
		return r.userColl, nil
	case models.OwnerKindGuest:
		return r.guestColl, nil
	case models.OwnerKindProvider:
		return r.provColl, nil
	case models.OwnerKindPlatform:
		return r.platColl, nil
	}
	return nil, fmt.Errorf("unknown owner kind %q", kind)
}

// FindCompletedByConsultation returns the completed transaction of the given
// type for a consultation, or nil when none exists.
func (r *MongoWalletRepo) FindCompletedByConsultation(consultationID, txnType string) (*models.WalletTransaction, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{
		"consultation_id": consultationID,
		"type":            txnType,
		"status":          models.TxnStatusCompleted,
	}

	var txn models.WalletTransaction
	if err := r.txnColl.FindOne(ctx, filter).Decode(&txn); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch transaction for consultation %s: %w", consultationID, err)
	}
	return &txn, nil
}

// GetTransaction retrieves a transaction by its unique ID.
func (r *MongoWalletRepo) GetTransaction(id string) (*models.WalletTransaction, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var txn models.WalletTransaction
	if err := r.txnColl.FindOne(ctx, bson.M{"id": id}).Decode(&txn); err != nil {
		return nil, fmt.Errorf("failed to fetch transaction %s: %w", id, err)
	}
	return &txn, nil
}

// ListByOwner returns an owner's transactions, newest first.
func (r *MongoWalletRepo) ListByOwner(owner models.AccountRef, limit int64) ([]models.WalletTransaction, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	filter := bson.M{"owner_id": owner.OwnerID, "owner_kind": owner.OwnerKind}
	cursor, err := r.txnColl.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions for %s: %w", owner.OwnerID, err)
	}
	defer cursor.Close(ctx)

	var out []models.WalletTransaction
	for cursor.Next(ctx) {
		var txn models.WalletTransaction
		if err := cursor.Decode(&txn); err != nil {
			return nil, fmt.Errorf("failed to decode transaction: %w", err)
		}
		out = append(out, txn)
	}
	return out, cursor.Err()
}

// GetBalance reads the owner's current wallet balance.
func (r *MongoWalletRepo) GetBalance(owner models.AccountRef) (float64, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	coll, err := r.collForKind(owner.OwnerKind)
	if err != nil {
		return 0, err
	}

	var doc struct {
		WalletBalance float64 `bson:"wallet_balance"`
	}
	opts := options.FindOne().SetProjection(bson.M{"wallet_balance": 1})
	if err := coll.FindOne(ctx, bson.M{"id": owner.OwnerID}, opts).Decode(&doc); err != nil {
		return 0, fmt.Errorf("failed to fetch balance for %s %s: %w", owner.OwnerKind, owner.OwnerID, err)
	}
	return doc.WalletBalance, nil
}

// SumAppliedDeltas recomputes an owner's balance from transaction history.
// Completed entries applied; so did reversed originals, whose effect the
// reversal entry compensates.
func (r *MongoWalletRepo) SumAppliedDeltas(owner models.AccountRef) (float64, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"owner_id":   owner.OwnerID,
			"owner_kind": owner.OwnerKind,
			"$or": bson.A{
				bson.M{"status": models.TxnStatusCompleted},
				bson.M{"reversed": true},
			},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$amount"},
		}}},
	}

	cursor, err := r.txnColl.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions for %s: %w", owner.OwnerID, err)
	}
	defer cursor.Close(ctx)

	var result struct {
		Total float64 `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("failed to decode transaction sum: %w", err)
		}
	}
	return result.Total, cursor.Err()
}

// MarkReversed flips a transaction to cancelled and flags it reversed.
func (r *MongoWalletRepo) MarkReversed(id string) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	res, err := r.txnColl.UpdateOne(ctx,
		bson.M{"id": id},
		bson.M{"$set": bson.M{"status": models.TxnStatusCancelled, "reversed": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to cancel transaction %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

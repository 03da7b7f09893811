package userRepo

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

// MongoUserRepo implements UserRepository using MongoDB.
type MongoUserRepo struct {
	userColl  *mongo.Collection
	guestColl *mongo.Collection
}

// NewMongoUserRepo creates a new instance of UserRepository using MongoDB.
func NewMongoUserRepo() UserRepository {
	db := database.MongoClient.Database(database.DatabaseName)
	repo := &MongoUserRepo{
		userColl:  db.Collection("users"),
		guestColl: db.Collection("guests"),
	}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create user indexes: %v\n", err)
	}
	return repo
}

func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func (r *MongoUserRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := r.userColl.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	guestIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := r.guestColl.Indexes().CreateMany(ctx, guestIndexes); err != nil {
		return fmt.Errorf("failed to create guest indexes: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by its unique ID.
func (r *MongoUserRepo) GetUserByID(id string) (*models.User, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var user models.User
	if err := r.userColl.FindOne(ctx, bson.M{"id": id}).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to fetch user with id %s: %w", id, err)
	}
	return &user, nil
}

// GetGuestByID retrieves a guest by its unique ID.
func (r *MongoUserRepo) GetGuestByID(id string) (*models.Guest, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var guest models.Guest
	if err := r.guestColl.FindOne(ctx, bson.M{"id": id}).Decode(&guest); err != nil {
		return nil, fmt.Errorf("failed to fetch guest with id %s: %w", id, err)
	}
	return &guest, nil
}

// CreateUser inserts a new user document.
func (r *MongoUserRepo) CreateUser(u *models.User) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := r.userColl.InsertOne(ctx, u); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// CreateGuest inserts a new guest document.
func (r *MongoUserRepo) CreateGuest(g *models.Guest) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	now := time.Now()
	g.CreatedAt = now
	g.UpdatedAt = now

	if _, err := r.guestColl.InsertOne(ctx, g); err != nil {
		return fmt.Errorf("failed to create guest: %w", err)
	}
	return nil
}

// ClaimFreeTrial atomically consumes a user's one-time free trial. The
// conditional filter makes concurrent claims race-safe: only one caller can
// flip the flag.
func (r *MongoUserRepo) ClaimFreeTrial(userID string) (bool, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": userID, "free_trial_used": false}
	update := bson.M{"$set": bson.M{"free_trial_used": true, "updated_at": time.Now()}}

	res, err := r.userColl.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to claim free trial for user %s: %w", userID, err)
	}
	return res.ModifiedCount > 0, nil
}

// ReleaseFreeTrial reverts a claimed trial that was never applied.
func (r *MongoUserRepo) ReleaseFreeTrial(userID string) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": userID, "free_trial_used": true}
	update := bson.M{"$set": bson.M{"free_trial_used": false, "updated_at": time.Now()}}

	if _, err := r.userColl.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to release free trial for user %s: %w", userID, err)
	}
	return nil
}

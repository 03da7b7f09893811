package consultationRepo

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

// MongoConsultationRepo implements ConsultationRepository using MongoDB.
type MongoConsultationRepo struct {
	coll *mongo.Collection
}

// NewMongoConsultationRepo creates a new ConsultationRepository backed by MongoDB.
func NewMongoConsultationRepo() ConsultationRepository {
	coll := database.MongoClient.Database(database.DatabaseName).Collection("consultations")
	repo := &MongoConsultationRepo{coll: coll}

	if err := repo.ensureIndexes(); err != nil {
		fmt.Printf("failed to create consultation indexes: %v\n", err)
	}
	return repo
}

// newContext creates a context with the given timeout.
func newContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// ensureIndexes creates indexes for the sweep scans and owner lookups.
func (r *MongoConsultationRepo) ensureIndexes() error {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "billing_start_time", Value: 1}}},
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "provider_id", Value: 1}, {Key: "status", Value: 1}}},
	}

	if _, err := r.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Create inserts a new consultation document.
func (r *MongoConsultationRepo) Create(c *models.Consultation) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to create consultation: %w", err)
	}
	return nil
}

// GetByID retrieves a consultation by its unique ID.
func (r *MongoConsultationRepo) GetByID(id string) (*models.Consultation, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var c models.Consultation
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to fetch consultation with id %s: %w", id, err)
	}
	return &c, nil
}

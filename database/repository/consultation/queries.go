package consultationRepo

import (
	"context"
	"fmt"
	"time"

	"consultly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *MongoConsultationRepo) findConsultations(ctx context.Context, filter bson.M, limit int64) ([]models.Consultation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query consultations: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Consultation
	for cursor.Next(ctx) {
		var c models.Consultation
		if err := cursor.Decode(&c); err != nil {
			return nil, fmt.Errorf("failed to decode consultation: %w", err)
		}
		out = append(out, c)
	}
	return out, cursor.Err()
}

// ListByStatusOlderThan returns consultations in status whose timeField is
// before cutoff. Used by the reconciliation sweep for pending timeouts and
// stuck-call detection.
func (r *MongoConsultationRepo) ListByStatusOlderThan(status, timeField string, cutoff time.Time, limit int64) ([]models.Consultation, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"status":  status,
		timeField: bson.M{"$lt": cutoff, "$ne": nil},
	}
	return r.findConsultations(ctx, filter, limit)
}

// ListTerminalBillable returns completed consultations with a positive total
// ended since the given time.
func (r *MongoConsultationRepo) ListTerminalBillable(since time.Time, limit int64) ([]models.Consultation, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{
		"status":       models.StatusCompleted,
		"total_amount": bson.M{"$gt": 0},
		"ended_at":     bson.M{"$gte": since},
	}
	return r.findConsultations(ctx, filter, limit)
}

// ListByClient returns a client's consultations, optionally filtered by status.
func (r *MongoConsultationRepo) ListByClient(clientID, status string, limit int64) ([]models.Consultation, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{"client_id": clientID}
	if status != "" {
		filter["status"] = status
	}
	return r.findConsultations(ctx, filter, limit)
}

// ListByProvider returns a provider's consultations, optionally filtered by status.
func (r *MongoConsultationRepo) ListByProvider(providerID, status string, limit int64) ([]models.Consultation, error) {
	ctx, cancel := newContext(10 * time.Second)
	defer cancel()

	filter := bson.M{"provider_id": providerID}
	if status != "" {
		filter["status"] = status
	}
	return r.findConsultations(ctx, filter, limit)
}

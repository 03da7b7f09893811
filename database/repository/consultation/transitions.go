package consultationRepo

import (
	"fmt"
	"time"

	"consultly/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RecordAcceptance stores the accept time for one party while the record is
// still pending and returns the updated document.
func (r *MongoConsultationRepo) RecordAcceptance(id, party string, at time.Time) (*models.Consultation, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	var field string
	switch party {
	case PartyClient:
		field = "client_accepted_at"
	case PartyProvider:
		field = "provider_accepted_at"
	default:
		return nil, fmt.Errorf("unknown accepting party %q", party)
	}

	filter := bson.M{"id": id, "status": models.StatusPending}
	update := bson.M{"$set": bson.M{field: at, "updated_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var c models.Consultation
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to record %s acceptance for consultation %s: %w", party, id, err)
	}
	return &c, nil
}

// BeginBilling performs the pending -> ongoing transition, conditioned on both
// acceptances being present. The rate snapshot taken here is final for the
// life of the consultation.
func (r *MongoConsultationRepo) BeginBilling(id string, rate float64, freeTrial bool, at time.Time) (bool, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{
		"id":                   id,
		"status":               models.StatusPending,
		"client_accepted_at":   bson.M{"$ne": nil},
		"provider_accepted_at": bson.M{"$ne": nil},
	}
	update := bson.M{"$set": bson.M{
		"status":             models.StatusOngoing,
		"rate":               rate,
		"free_trial":         freeTrial,
		"billing_start_time": at,
		"updated_at":         at,
	}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to begin billing for consultation %s: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}

// ClaimTermination performs the fromStatus -> toStatus transition in one
// atomic conditional update. Under concurrent termination attempts exactly
// one caller sees true.
func (r *MongoConsultationRepo) ClaimTermination(id, fromStatus, toStatus, reason string, at time.Time) (bool, error) {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": id, "status": fromStatus}
	update := bson.M{"$set": bson.M{
		"status":     toStatus,
		"end_reason": reason,
		"ended_at":   at,
		"updated_at": at,
	}}

	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to terminate consultation %s: %w", id, err)
	}
	return res.ModifiedCount > 0, nil
}

// FinalizeBilling writes the billing outcome exactly once. The settled flag
// guards the record against a second write; total_amount is never mutated
// after this.
func (r *MongoConsultationRepo) FinalizeBilling(id string, durationMinutes, totalAmount float64) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": id, "settled": false}
	update := bson.M{"$set": bson.M{
		"duration_minutes": durationMinutes,
		"total_amount":     totalAmount,
		"settled":          true,
		"updated_at":       time.Now(),
	}}

	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to finalize billing for consultation %s: %w", id, err)
	}
	return nil
}

// UpdateEndReason rewrites the end reason on an already-terminal record.
func (r *MongoConsultationRepo) UpdateEndReason(id, reason string) error {
	ctx, cancel := newContext(5 * time.Second)
	defer cancel()

	filter := bson.M{"id": id, "status": bson.M{"$ne": models.StatusOngoing}}
	update := bson.M{"$set": bson.M{"end_reason": reason, "updated_at": time.Now()}}

	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to update end reason for consultation %s: %w", id, err)
	}
	return nil
}

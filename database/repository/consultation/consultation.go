package consultationRepo

import (
	"time"

	"consultly/models"
)

// Accepting parties for RecordAcceptance.
const (
	PartyClient   = "client"
	PartyProvider = "provider"
)

// ConsultationRepository defines persistence for consultation records.
//
// Transition methods are conditional single-document updates: they only apply
// when the record is still in the expected state, which is what makes the
// state machine safe against concurrent termination attempts.
type ConsultationRepository interface {
	Create(c *models.Consultation) error
	GetByID(id string) (*models.Consultation, error)

	// RecordAcceptance stores the accept timestamp for one party while the
	// consultation is still pending, and returns the updated record.
	RecordAcceptance(id, party string, at time.Time) (*models.Consultation, error)

	// BeginBilling transitions pending -> ongoing, snapshotting the rate and
	// billing start time. It only succeeds while the record is pending with
	// both acceptances present; the bool reports whether this call won.
	BeginBilling(id string, rate float64, freeTrial bool, at time.Time) (bool, error)

	// ClaimTermination transitions fromStatus -> toStatus with the given end
	// reason. Exactly one concurrent caller observes true; everyone else
	// finds the record already out of fromStatus and gets false.
	ClaimTermination(id, fromStatus, toStatus, reason string, at time.Time) (bool, error)

	// FinalizeBilling writes duration and total amount exactly once. A second
	// call is a no-op because the record is already marked settled.
	FinalizeBilling(id string, durationMinutes, totalAmount float64) error

	// UpdateEndReason rewrites the end reason on an already-terminal record,
	// e.g. to distinguish a billing failure from a free call.
	UpdateEndReason(id, reason string) error

	// ListByStatusOlderThan returns consultations in the given status whose
	// timeField (e.g. "created_at", "billing_start_time") is before cutoff.
	ListByStatusOlderThan(status, timeField string, cutoff time.Time, limit int64) ([]models.Consultation, error)

	// ListTerminalBillable returns completed consultations with a positive
	// total amount ended since the given time, for the integrity scan.
	ListTerminalBillable(since time.Time, limit int64) ([]models.Consultation, error)

	ListByClient(clientID, status string, limit int64) ([]models.Consultation, error)
	ListByProvider(providerID, status string, limit int64) ([]models.Consultation, error)
}

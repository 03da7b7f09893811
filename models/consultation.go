package models

import "time"

// Consultation types.
const (
	TypeChat  = "chat"
	TypeAudio = "audio"
	TypeVideo = "video"
)

// Consultation lifecycle states. Terminal states are absorbing.
const (
	StatusPending   = "pending"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoAnswer  = "no_answer"
	StatusMissed    = "missed"
)

// End reasons recorded on termination. BillingFailed is distinct from a free
// call so operational tooling can tell them apart.
const (
	EndReasonUserEnded         = "user_ended"
	EndReasonProviderEnded     = "provider_ended"
	EndReasonInsufficientFunds = "insufficient_funds"
	EndReasonConnectionLost    = "connection_lost"
	EndReasonTimeout           = "timeout"
	EndReasonStuckCall         = "stuck_call"
	EndReasonBillingFailed     = "billing_failed"
	EndReasonAdmin             = "admin"
)

// Party kinds for the client side of a consultation.
const (
	OwnerKindUser     = "user"
	OwnerKindGuest    = "guest"
	OwnerKindProvider = "provider"
	OwnerKindPlatform = "platform"
)

// Consultation represents one interactive session between a client and a
// provider, billed per minute from billing start to end.
type Consultation struct {
	ID         string `bson:"id" json:"id"`                   // Unique consultation identifier (UUID)
	Type       string `bson:"type" json:"type"`               // chat | audio | video
	ClientID   string `bson:"client_id" json:"client_id"`     // Paying party
	ClientKind string `bson:"client_kind" json:"client_kind"` // user | guest
	ProviderID string `bson:"provider_id" json:"provider_id"` // Earning party

	Status    string    `bson:"status" json:"status"`
	EndReason string    `bson:"end_reason,omitempty" json:"end_reason,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`

	ClientAcceptedAt   *time.Time `bson:"client_accepted_at,omitempty" json:"client_accepted_at,omitempty"`
	ProviderAcceptedAt *time.Time `bson:"provider_accepted_at,omitempty" json:"provider_accepted_at,omitempty"`
	BillingStartTime   *time.Time `bson:"billing_start_time,omitempty" json:"billing_start_time,omitempty"`
	EndedAt            *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`

	// Rate is snapshotted when billing starts and never changes afterwards;
	// later edits to the provider's rates must not affect this consultation.
	Rate      float64 `bson:"rate" json:"rate"`
	FreeTrial bool    `bson:"free_trial,omitempty" json:"free_trial,omitempty"`

	// DurationMinutes is for display only; TotalAmount is derived from raw
	// elapsed seconds, not from this rounded value.
	DurationMinutes float64 `bson:"duration_minutes" json:"duration_minutes"`
	TotalAmount     float64 `bson:"total_amount" json:"total_amount"`
	Settled         bool    `bson:"settled" json:"settled"` // True once billing has been finalized exactly once
}

// IsTerminal reports whether the consultation has reached an absorbing state.
func (c *Consultation) IsTerminal() bool {
	switch c.Status {
	case StatusCompleted, StatusCancelled, StatusNoAnswer, StatusMissed:
		return true
	}
	return false
}

// BothAccepted reports whether both parties have accepted the consultation.
func (c *Consultation) BothAccepted() bool {
	return c.ClientAcceptedAt != nil && c.ProviderAcceptedAt != nil
}

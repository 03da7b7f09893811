package models

import "time"

// Domain event names emitted by the billing core. The notification layer
// subscribes to these; the core never calls delivery APIs directly.
const (
	EventConsultationStarted     = "consultation.started"
	EventConsultationEnded       = "consultation.ended"
	EventWalletDebited           = "wallet.debited"
	EventWalletCredited          = "wallet.credited"
	EventWalletLowBalanceWarning = "wallet.lowBalanceWarning"
	EventReconciliationViolation = "reconciliation.violation"
)

// Event is the envelope published on the domain-event channel.
type Event struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

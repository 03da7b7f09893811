package models

// CreateConsultationRequest starts a new pending consultation.
type CreateConsultationRequest struct {
	Type       string `json:"type" binding:"required"`
	ClientID   string `json:"client_id" binding:"required"`
	ClientKind string `json:"client_kind" binding:"required"`
	ProviderID string `json:"provider_id" binding:"required"`
}

// UpdateRatesRequest writes the canonical per-minute rates for a provider.
type UpdateRatesRequest struct {
	Chat  float64 `json:"chat"`
	Audio float64 `json:"audio"`
	Video float64 `json:"video"`
}

// TopUpRequest initiates a wallet top-up through Stripe.
type TopUpRequest struct {
	Amount   float64 `json:"amount" binding:"required,gt=0"`
	Currency string  `json:"currency"`
}

// ConfirmTopUpRequest credits the wallet after a payment intent succeeded.
type ConfirmTopUpRequest struct {
	PaymentIntentID string  `json:"payment_intent_id" binding:"required"`
	Amount          float64 `json:"amount" binding:"required,gt=0"`
}

// WithdrawRequest debits a provider's wallet for payout.
type WithdrawRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// ReverseTransactionRequest is the administrative reversal path.
type ReverseTransactionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

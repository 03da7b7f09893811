package models

import "time"

// PerMinuteRates are the canonical per-minute prices. New writes land here;
// the flat legacy fields are kept read-only for records migrated from the
// old schema.
type PerMinuteRates struct {
	Audio      float64 `bson:"audio,omitempty" json:"audio,omitempty"`
	Video      float64 `bson:"video,omitempty" json:"video,omitempty"`
	AudioVideo float64 `bson:"audio_video,omitempty" json:"audio_video,omitempty"`
}

// ProviderRates carries both the canonical per-minute schema and the legacy
// flat fields. Up to six overlapping fields can describe the same price; the
// rate resolver owns the precedence between them.
type ProviderRates struct {
	Chat       float64        `bson:"chat,omitempty" json:"chat,omitempty"`
	Audio      float64        `bson:"audio,omitempty" json:"audio,omitempty"`             // Legacy flat audio rate
	Video      float64        `bson:"video,omitempty" json:"video,omitempty"`             // Legacy flat video rate
	AudioVideo float64        `bson:"audio_video,omitempty" json:"audio_video,omitempty"` // Legacy combined rate
	PerMinute  PerMinuteRates `bson:"per_minute,omitempty" json:"per_minute,omitempty"`
}

// Provider is the earning party of a consultation.
type Provider struct {
	ID     string  `bson:"id" json:"id"`
	Name   string  `bson:"name,omitempty" json:"name,omitempty"`
	Email  string  `bson:"email,omitempty" json:"email,omitempty"`
	Status string  `bson:"status,omitempty" json:"status,omitempty"`
	Rating float64 `bson:"rating,omitempty" json:"rating,omitempty"`

	Rates ProviderRates `bson:"rates" json:"rates"`

	// WalletBalance is mutated only by the wallet ledger.
	WalletBalance float64 `bson:"wallet_balance" json:"wallet_balance"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

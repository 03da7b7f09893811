package models

import "time"

// User is a registered client. Registration and auth flows live outside this
// service; only the wallet-bearing fields matter here.
type User struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name,omitempty" json:"name,omitempty"`
	Email    string `bson:"email,omitempty" json:"email,omitempty"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
	FCMToken string `bson:"fcm_token,omitempty" json:"-"`

	// WalletBalance is mutated only by the wallet ledger. It must always
	// equal the sum of completed transaction deltas for this user.
	WalletBalance float64 `bson:"wallet_balance" json:"wallet_balance"`

	// FreeTrialUsed marks consumption of the one-time global free trial.
	FreeTrialUsed bool `bson:"free_trial_used" json:"free_trial_used"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Guest is an unregistered client identified by device. Guests hold a wallet
// like users but never a free trial.
type Guest struct {
	ID            string    `bson:"id" json:"id"`
	DeviceID      string    `bson:"device_id,omitempty" json:"device_id,omitempty"`
	WalletBalance float64   `bson:"wallet_balance" json:"wallet_balance"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

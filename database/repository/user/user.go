package userRepo

import "consultly/models"

// UserRepository reads and maintains client accounts (users and guests).
// Wallet balances are deliberately absent here: only the wallet repository
// writes them.
type UserRepository interface {
	GetUserByID(id string) (*models.User, error)
	GetGuestByID(id string) (*models.Guest, error)

	CreateUser(u *models.User) error
	CreateGuest(g *models.Guest) error

	// ClaimFreeTrial atomically flips free_trial_used from false to true.
	// Returns true when this call consumed the trial; false when it was
	// already used (or the user does not exist).
	ClaimFreeTrial(userID string) (bool, error)

	// ReleaseFreeTrial gives a claimed trial back. Used when the claim was
	// made for a billing start that ultimately lost its transition race, so
	// the user never received the benefit.
	ReleaseFreeTrial(userID string) error
}

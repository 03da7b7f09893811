package providerRepo

import "consultly/models"

// ProviderRepository reads and maintains provider accounts. Like the user
// repository it never writes wallet balances; the wallet repository owns
// those.
type ProviderRepository interface {
	GetByID(id string) (*models.Provider, error)
	Create(p *models.Provider) error

	// UpdateCanonicalRates writes the unified per-minute rate fields. Legacy
	// flat fields stay untouched (read-only during the schema transition).
	UpdateCanonicalRates(id string, chat, audio, video float64) error
}

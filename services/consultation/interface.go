// Package consultation owns the consultation lifecycle: pending through
// acceptance, active billing, and termination. It is the only caller of the
// billing calculator and the wallet ledger.
package consultation

import (
	"context"
	"sync"
	"time"

	"consultly/config"
	consultationRepo "consultly/database/repository/consultation"
	providerRepo "consultly/database/repository/provider"
	userRepo "consultly/database/repository/user"
	"consultly/models"
	"consultly/services/events"
	"consultly/services/wallet"

	"go.uber.org/zap"
)

// ConsultationService drives lifecycle transitions in response to the
// semantic events delivered by the real-time transport.
type ConsultationService interface {
	Create(ctx context.Context, req models.CreateConsultationRequest) (*models.Consultation, error)
	GetByID(ctx context.Context, id string) (*models.Consultation, error)
	ListByClient(ctx context.Context, clientID, status string) ([]models.Consultation, error)
	ListByProvider(ctx context.Context, providerID, status string) ([]models.Consultation, error)

	ClientAccepted(ctx context.Context, id string) (*models.Consultation, error)
	ProviderAccepted(ctx context.Context, id string) (*models.Consultation, error)

	// End is the single termination path. It is idempotent: under concurrent
	// invocation exactly one caller performs the settlement and the rest
	// observe the already-completed record.
	End(ctx context.Context, id, reason string) (*models.Consultation, error)
	ConnectionLost(ctx context.Context, id string) (*models.Consultation, error)

	// ExpirePending moves a never-accepted consultation to no_answer with a
	// zero amount and zero transactions.
	ExpirePending(ctx context.Context, id string) (*models.Consultation, error)
}

// Policy carries the billing knobs frozen at service construction. Config is
// not reloaded mid-consultation.
type Policy struct {
	CommissionRate       float64
	FreeTrialEnabled     bool
	BalanceCheckInterval time.Duration
	PendingAcceptTimeout time.Duration
	StuckCallThreshold   time.Duration

	// CompensateProviderOnShortfall decides who bears the loss when funds
	// run out before settlement: false (default) the provider, true the
	// platform, which then credits the provider's share from platform funds.
	CompensateProviderOnShortfall bool
}

// PolicyFromConfig builds the policy from the loaded application config.
func PolicyFromConfig() Policy {
	cfg := config.AppConfig
	return Policy{
		CommissionRate:                cfg.PlatformCommissionRate,
		FreeTrialEnabled:              cfg.FreeTrialEnabled,
		BalanceCheckInterval:          time.Duration(cfg.BalanceCheckIntervalSeconds) * time.Second,
		PendingAcceptTimeout:          time.Duration(cfg.PendingAcceptTimeoutMinutes) * time.Minute,
		StuckCallThreshold:            time.Duration(cfg.StuckCallThresholdMinutes) * time.Minute,
		CompensateProviderOnShortfall: cfg.CompensateProviderOnShortfall,
	}
}

// DefaultConsultationService implements ConsultationService.
type DefaultConsultationService struct {
	Repo      consultationRepo.ConsultationRepository
	Providers providerRepo.ProviderRepository
	Users     userRepo.UserRepository
	Ledger    wallet.Ledger
	Publisher events.Publisher
	Policy    Policy
	Logger    *zap.Logger

	watchersMu sync.Mutex
	watchers   map[string]context.CancelFunc
}

func NewDefaultConsultationService(
	repo consultationRepo.ConsultationRepository,
	providers providerRepo.ProviderRepository,
	users userRepo.UserRepository,
	ledger wallet.Ledger,
	publisher events.Publisher,
	policy Policy,
	logger *zap.Logger,
) *DefaultConsultationService {
	return &DefaultConsultationService{
		Repo:      repo,
		Providers: providers,
		Users:     users,
		Ledger:    ledger,
		Publisher: publisher,
		Policy:    policy,
		Logger:    logger,
		watchers:  make(map[string]context.CancelFunc),
	}
}

func (s *DefaultConsultationService) publish(ctx context.Context, name string, data map[string]interface{}) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, name, data); err != nil {
		s.Logger.Warn("event publish failed", zap.String("event", name), zap.Error(err))
	}
}

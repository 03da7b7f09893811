package consultation

import (
	"context"
	"errors"
	"time"

	consultationRepo "consultly/database/repository/consultation"
	"consultly/models"
	"consultly/services/rate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Create opens a new pending consultation between a client and a provider.
func (s *DefaultConsultationService) Create(ctx context.Context, req models.CreateConsultationRequest) (*models.Consultation, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	c := &models.Consultation{
		ID:         uuid.New().String(),
		Type:       req.Type,
		ClientID:   req.ClientID,
		ClientKind: req.ClientKind,
		ProviderID: req.ProviderID,
		Status:     models.StatusPending,
	}
	if err := s.Repo.Create(c); err != nil {
		return nil, err
	}

	s.Logger.Info("consultation created",
		zap.String("consultationId", c.ID),
		zap.String("type", c.Type),
		zap.String("providerId", c.ProviderID))
	return c, nil
}

func validateCreate(req models.CreateConsultationRequest) error {
	switch req.Type {
	case models.TypeChat, models.TypeAudio, models.TypeVideo:
	default:
		return &ValidationError{Field: "type", Message: "must be chat, audio or video"}
	}
	switch req.ClientKind {
	case models.OwnerKindUser, models.OwnerKindGuest:
	default:
		return &ValidationError{Field: "client_kind", Message: "must be user or guest"}
	}
	if req.ClientID == "" {
		return &ValidationError{Field: "client_id", Message: "is required"}
	}
	if req.ProviderID == "" {
		return &ValidationError{Field: "provider_id", Message: "is required"}
	}
	return nil
}

func (s *DefaultConsultationService) GetByID(ctx context.Context, id string) (*models.Consultation, error) {
	return s.Repo.GetByID(id)
}

func (s *DefaultConsultationService) ListByClient(ctx context.Context, clientID, status string) ([]models.Consultation, error) {
	return s.Repo.ListByClient(clientID, status, 100)
}

func (s *DefaultConsultationService) ListByProvider(ctx context.Context, providerID, status string) ([]models.Consultation, error) {
	return s.Repo.ListByProvider(providerID, status, 100)
}

// ClientAccepted records the client's acceptance; when the provider already
// accepted, billing begins.
func (s *DefaultConsultationService) ClientAccepted(ctx context.Context, id string) (*models.Consultation, error) {
	return s.accepted(ctx, id, consultationRepo.PartyClient)
}

// ProviderAccepted records the provider's acceptance; when the client already
// accepted, billing begins.
func (s *DefaultConsultationService) ProviderAccepted(ctx context.Context, id string) (*models.Consultation, error) {
	return s.accepted(ctx, id, consultationRepo.PartyProvider)
}

func (s *DefaultConsultationService) accepted(ctx context.Context, id, party string) (*models.Consultation, error) {
	c, err := s.Repo.RecordAcceptance(id, party, time.Now())
	if err != nil {
		// Not pending anymore: a late accept races with billing start or
		// termination. No-op, return whatever the record says now.
		existing, getErr := s.Repo.GetByID(id)
		if getErr != nil {
			return nil, err
		}
		s.Logger.Info("acceptance ignored, consultation no longer pending",
			zap.String("consultationId", id),
			zap.String("party", party),
			zap.String("status", existing.Status))
		return existing, nil
	}

	if !c.BothAccepted() {
		return c, nil
	}
	return s.beginBilling(ctx, c)
}

// beginBilling snapshots the rate and performs the pending -> ongoing
// transition. Free-trial consumption is a precondition checked here, gating
// the rate snapshot, never a post-hoc amount override.
func (s *DefaultConsultationService) beginBilling(ctx context.Context, c *models.Consultation) (*models.Consultation, error) {
	freeTrial := false
	if s.Policy.FreeTrialEnabled && c.ClientKind == models.OwnerKindUser {
		claimed, err := s.Users.ClaimFreeTrial(c.ClientID)
		if err != nil {
			s.Logger.Warn("free trial claim failed, billing normally",
				zap.String("consultationId", c.ID), zap.Error(err))
		}
		freeTrial = claimed
	}

	resolved := 0.0
	if !freeTrial {
		provider, err := s.Providers.GetByID(c.ProviderID)
		if err != nil {
			return nil, err
		}
		resolved, err = rate.Resolve(provider, c.Type)
		if err != nil {
			if !errors.Is(err, rate.ErrRateNotConfigured) {
				return nil, err
			}
			// No usable rate means a free consultation, not a failed call.
			s.Logger.Info("provider has no rate, consultation is free",
				zap.String("consultationId", c.ID),
				zap.String("providerId", c.ProviderID))
		}
	}

	now := time.Now()
	claimed, err := s.Repo.BeginBilling(c.ID, resolved, freeTrial, now)
	if err != nil {
		if freeTrial {
			s.releaseFreeTrial(c.ID, c.ClientID)
		}
		return nil, err
	}

	updated, err := s.Repo.GetByID(c.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Another acceptance won the transition, possibly at the full rate.
		// A trial claimed for this losing attempt was never applied, so give
		// it back rather than burn it without benefit.
		if freeTrial {
			s.releaseFreeTrial(c.ID, c.ClientID)
		}
		return updated, nil
	}

	if updated.Rate > 0 {
		s.startWatcher(updated)
	}
	s.publish(ctx, models.EventConsultationStarted, map[string]interface{}{
		"consultationId": updated.ID,
		"type":           updated.Type,
		"clientId":       updated.ClientID,
		"providerId":     updated.ProviderID,
		"rate":           updated.Rate,
		"freeTrial":      updated.FreeTrial,
	})
	s.Logger.Info("billing started",
		zap.String("consultationId", updated.ID),
		zap.Float64("rate", updated.Rate),
		zap.Bool("freeTrial", updated.FreeTrial))
	return updated, nil
}

func (s *DefaultConsultationService) releaseFreeTrial(consultationID, userID string) {
	if err := s.Users.ReleaseFreeTrial(userID); err != nil {
		s.Logger.Error("free trial release failed",
			zap.String("consultationId", consultationID),
			zap.String("userId", userID),
			zap.Error(err))
	}
}

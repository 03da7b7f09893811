package consultation

import (
	"context"
	"errors"
	"time"

	"consultly/models"
	"consultly/services/billing"
	"consultly/services/wallet"

	"go.uber.org/zap"
)

// End terminates a consultation and settles it exactly once.
//
// The ongoing -> completed claim is a conditional atomic update, so of any
// number of concurrent End calls (user hangup, balance watcher, sweep)
// exactly one proceeds to settlement; the rest observe the already-terminal
// record and return it unchanged.
func (s *DefaultConsultationService) End(ctx context.Context, id, reason string) (*models.Consultation, error) {
	now := time.Now()

	claimed, err := s.Repo.ClaimTermination(id, models.StatusOngoing, models.StatusCompleted, reason, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return s.endNotOngoing(ctx, id, reason, now)
	}

	s.stopWatcher(id)

	c, err := s.Repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	return s.settle(ctx, c, now)
}

// endNotOngoing handles End against a record that is not ongoing: a hangup
// before acceptance cancels the pending consultation; anything terminal is a
// logged no-op returning the existing result.
func (s *DefaultConsultationService) endNotOngoing(ctx context.Context, id, reason string, now time.Time) (*models.Consultation, error) {
	cancelled, err := s.Repo.ClaimTermination(id, models.StatusPending, models.StatusCancelled, reason, now)
	if err != nil {
		return nil, err
	}

	c, err := s.Repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if cancelled {
		if err := s.Repo.FinalizeBilling(id, 0, 0); err != nil {
			return nil, err
		}
		s.publish(ctx, models.EventConsultationEnded, map[string]interface{}{
			"consultationId": id,
			"reason":         reason,
			"amount":         0.0,
			"duration":       0.0,
		})
		return s.Repo.GetByID(id)
	}

	s.Logger.Info("end ignored, consultation already terminal",
		zap.String("consultationId", id),
		zap.String("status", c.Status),
		zap.String("requestedReason", reason))
	return c, nil
}

// settle computes the charge and applies it through the ledger. Only the
// termination winner ever gets here.
func (s *DefaultConsultationService) settle(ctx context.Context, c *models.Consultation, endedAt time.Time) (*models.Consultation, error) {
	var start time.Time
	if c.BillingStartTime != nil {
		start = *c.BillingStartTime
	}
	result := billing.Compute(start, endedAt, c.Rate)

	if result.Amount == 0 {
		if err := s.Repo.FinalizeBilling(c.ID, result.DurationMinutes, 0); err != nil {
			return nil, err
		}
		return s.finishEnded(ctx, c.ID, c.EndReason, 0, result.DurationMinutes)
	}

	client := models.AccountRef{OwnerID: c.ClientID, OwnerKind: c.ClientKind}
	provider := models.AccountRef{OwnerID: c.ProviderID, OwnerKind: models.OwnerKindProvider}

	settlement, err := s.Ledger.Settle(ctx, c.ID, client, provider, result.Amount, s.Policy.CommissionRate)
	switch {
	case errors.Is(err, wallet.ErrInsufficientFunds):
		// The call still ends; no partial debt is recorded. Whether the
		// provider is compensated from platform funds is explicit policy.
		if err := s.Repo.FinalizeBilling(c.ID, result.DurationMinutes, 0); err != nil {
			return nil, err
		}
		if err := s.Repo.UpdateEndReason(c.ID, models.EndReasonInsufficientFunds); err != nil {
			return nil, err
		}
		s.Logger.Warn("settlement found insufficient funds, consultation closed unbilled",
			zap.String("consultationId", c.ID),
			zap.Float64("uncollectable", result.Amount))
		if s.Policy.CompensateProviderOnShortfall {
			share := billing.ProviderShare(result.Amount, s.Policy.CommissionRate)
			if _, cerr := s.Ledger.Credit(ctx, provider, share, models.TxnTypeCredit, "platform compensation for uncollectable consultation "+c.ID); cerr != nil {
				s.Logger.Error("provider compensation failed",
					zap.String("consultationId", c.ID), zap.Error(cerr))
			}
		}
		return s.finishEnded(ctx, c.ID, models.EndReasonInsufficientFunds, 0, result.DurationMinutes)

	case err != nil:
		// Permanent billing failure: the consultation still closes promptly,
		// flagged distinctly from a free call so operators can find it.
		if ferr := s.Repo.FinalizeBilling(c.ID, result.DurationMinutes, 0); ferr != nil {
			return nil, ferr
		}
		if rerr := s.Repo.UpdateEndReason(c.ID, models.EndReasonBillingFailed); rerr != nil {
			return nil, rerr
		}
		s.Logger.Error("settlement failed permanently",
			zap.String("consultationId", c.ID),
			zap.Float64("amount", result.Amount),
			zap.Error(err))
		return s.finishEnded(ctx, c.ID, models.EndReasonBillingFailed, 0, result.DurationMinutes)
	}

	if err := s.Repo.FinalizeBilling(c.ID, result.DurationMinutes, result.Amount); err != nil {
		return nil, err
	}
	if settlement.AlreadySettled {
		s.Logger.Warn("settlement pre-existed for freshly terminated consultation",
			zap.String("consultationId", c.ID))
	}
	return s.finishEnded(ctx, c.ID, c.EndReason, result.Amount, result.DurationMinutes)
}

func (s *DefaultConsultationService) finishEnded(ctx context.Context, id, reason string, amount, duration float64) (*models.Consultation, error) {
	s.publish(ctx, models.EventConsultationEnded, map[string]interface{}{
		"consultationId": id,
		"reason":         reason,
		"amount":         amount,
		"duration":       duration,
	})
	s.Logger.Info("consultation ended",
		zap.String("consultationId", id),
		zap.String("reason", reason),
		zap.Float64("amount", amount),
		zap.Float64("durationMinutes", duration))
	return s.Repo.GetByID(id)
}

// ConnectionLost ends the consultation on transport failure. Elapsed time is
// still billed, same as a normal completion.
func (s *DefaultConsultationService) ConnectionLost(ctx context.Context, id string) (*models.Consultation, error) {
	return s.End(ctx, id, models.EndReasonConnectionLost)
}

// ExpirePending moves a never-accepted consultation to no_answer. No billing
// ever started, so the amount is zero and no transactions exist.
func (s *DefaultConsultationService) ExpirePending(ctx context.Context, id string) (*models.Consultation, error) {
	now := time.Now()
	claimed, err := s.Repo.ClaimTermination(id, models.StatusPending, models.StatusNoAnswer, models.EndReasonTimeout, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		c, err := s.Repo.GetByID(id)
		if err != nil {
			return nil, err
		}
		s.Logger.Info("pending expiry ignored",
			zap.String("consultationId", id), zap.String("status", c.Status))
		return c, nil
	}

	if err := s.Repo.FinalizeBilling(id, 0, 0); err != nil {
		return nil, err
	}
	return s.finishEnded(ctx, id, models.EndReasonTimeout, 0, 0)
}

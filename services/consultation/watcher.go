package consultation

import (
	"context"
	"time"

	"consultly/models"
	"consultly/services/billing"

	"go.uber.org/zap"
)

// startWatcher begins the real-time balance protection loop for an ongoing
// billable consultation. Settlement debits the wallet only once at
// termination, so the stored balance never moves mid-call; every tick must
// subtract the charge accrued so far before asking whether one more billing
// increment is covered. If it is not, the call is force-ended rather than
// let to continue unbilled.
func (s *DefaultConsultationService) startWatcher(c *models.Consultation) {
	interval := s.Policy.BalanceCheckInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	s.watchersMu.Lock()
	if _, exists := s.watchers[c.ID]; exists {
		s.watchersMu.Unlock()
		cancel()
		return
	}
	s.watchers[c.ID] = cancel
	s.watchersMu.Unlock()

	go s.watch(ctx, c, interval)
}

// stopWatcher cancels the balance watcher for a consultation, if any.
func (s *DefaultConsultationService) stopWatcher(id string) {
	s.watchersMu.Lock()
	cancel, ok := s.watchers[id]
	if ok {
		delete(s.watchers, id)
	}
	s.watchersMu.Unlock()
	if ok {
		cancel()
	}
}

func (s *DefaultConsultationService) watch(ctx context.Context, c *models.Consultation, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := models.AccountRef{OwnerID: c.ClientID, OwnerKind: c.ClientKind}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur, err := s.Repo.GetByID(c.ID)
			if err != nil {
				s.Logger.Warn("watcher reload failed",
					zap.String("consultationId", c.ID), zap.Error(err))
				continue
			}
			if cur.Status != models.StatusOngoing {
				s.stopWatcher(c.ID)
				return
			}

			balance, err := s.Ledger.Balance(client)
			if err != nil {
				s.Logger.Warn("balance check failed",
					zap.String("consultationId", c.ID), zap.Error(err))
				continue
			}

			var start time.Time
			if cur.BillingStartTime != nil {
				start = *cur.BillingStartTime
			}
			accrued := billing.Compute(start, time.Now(), cur.Rate).Amount
			remaining := balance - accrued

			if remaining < cur.Rate {
				s.Logger.Info("remaining balance exhausted, force-ending consultation",
					zap.String("consultationId", c.ID),
					zap.Float64("balance", balance),
					zap.Float64("accrued", accrued),
					zap.Float64("rate", cur.Rate))
				// Fresh context: End cancels this watcher's ctx before it
				// settles, and settlement must not be aborted by that.
				if _, err := s.End(context.Background(), c.ID, models.EndReasonInsufficientFunds); err != nil {
					s.Logger.Error("forced end failed",
						zap.String("consultationId", c.ID), zap.Error(err))
				}
				return
			}

			if remaining < 2*cur.Rate {
				s.publish(ctx, models.EventWalletLowBalanceWarning, map[string]interface{}{
					"consultationId": c.ID,
					"clientId":       c.ClientID,
					"balance":        balance,
					"remaining":      remaining,
					"rate":           cur.Rate,
				})
			}
		}
	}
}

// ResumeWatchers restarts balance protection for consultations that were
// ongoing when the process last stopped. Watchers live only in process
// memory, so without this a restart leaves active calls unmetered until the
// sweep's stuck-call threshold catches them.
func (s *DefaultConsultationService) ResumeWatchers() error {
	ongoing, err := s.Repo.ListByStatusOlderThan(models.StatusOngoing, "billing_start_time", time.Now(), 0)
	if err != nil {
		return err
	}

	resumed := 0
	for i := range ongoing {
		if ongoing[i].Rate <= 0 {
			continue
		}
		s.startWatcher(&ongoing[i])
		resumed++
	}
	if resumed > 0 {
		s.Logger.Info("resumed balance watchers after restart", zap.Int("count", resumed))
	}
	return nil
}

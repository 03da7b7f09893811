// Package reconciliation periodically detects consultations and wallets left
// in inconsistent states and repairs them in a controlled, audited way. Every
// repair flows through the ordinary lifecycle and ledger paths; the sweep
// never edits balances or records directly.
package reconciliation

import (
	"context"
	"time"

	consultationRepo "consultly/database/repository/consultation"
	walletRepo "consultly/database/repository/wallet"
	"consultly/models"
	"consultly/services/consultation"
	"consultly/services/events"
	"consultly/services/wallet"

	"go.uber.org/zap"
)

// integrityWindow bounds the terminal-consultation integrity scan. Anything
// older has been scanned many times already.
const integrityWindow = 24 * time.Hour

// sweepBatchSize caps how many records one sweep run touches per category.
const sweepBatchSize = 200

// Report summarizes one sweep run.
type Report struct {
	Expired     int // pending consultations moved to no_answer
	ForceEnded  int // stuck ongoing consultations terminated
	Violations  int // integrity violations detected (alerted, not auto-fixed)
	DriftOwners int // wallet owners whose balance disagrees with history
}

// Sweeper is the background reconciliation process.
type Sweeper struct {
	Consultations consultationRepo.ConsultationRepository
	Wallets       walletRepo.WalletRepository
	Lifecycle     consultation.ConsultationService
	Ledger        wallet.Ledger
	Publisher     events.Publisher
	Policy        consultation.Policy
	Logger        *zap.Logger
}

func NewSweeper(
	consultations consultationRepo.ConsultationRepository,
	wallets walletRepo.WalletRepository,
	lifecycle consultation.ConsultationService,
	ledger wallet.Ledger,
	publisher events.Publisher,
	policy consultation.Policy,
	logger *zap.Logger,
) *Sweeper {
	return &Sweeper{
		Consultations: consultations,
		Wallets:       wallets,
		Lifecycle:     lifecycle,
		Ledger:        ledger,
		Publisher:     publisher,
		Policy:        policy,
		Logger:        logger,
	}
}

// Run executes one reconciliation pass.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var report Report
	now := time.Now()

	s.expirePending(ctx, now, &report)
	s.endStuckCalls(ctx, now, &report)
	s.scanIntegrity(ctx, now, &report)

	if report.Expired > 0 || report.ForceEnded > 0 || report.Violations > 0 || report.DriftOwners > 0 {
		s.Logger.Info("reconciliation sweep finished",
			zap.Int("expired", report.Expired),
			zap.Int("forceEnded", report.ForceEnded),
			zap.Int("violations", report.Violations),
			zap.Int("driftOwners", report.DriftOwners))
	}
	return report, nil
}

// expirePending times out consultations nobody answered.
func (s *Sweeper) expirePending(ctx context.Context, now time.Time, report *Report) {
	cutoff := now.Add(-s.Policy.PendingAcceptTimeout)
	stale, err := s.Consultations.ListByStatusOlderThan(models.StatusPending, "created_at", cutoff, sweepBatchSize)
	if err != nil {
		s.Logger.Error("pending scan failed", zap.Error(err))
		return
	}

	for _, c := range stale {
		if _, err := s.Lifecycle.ExpirePending(ctx, c.ID); err != nil {
			s.Logger.Error("pending expiry failed",
				zap.String("consultationId", c.ID), zap.Error(err))
			continue
		}
		report.Expired++
	}
}

// endStuckCalls terminates ongoing consultations whose billing window exceeds
// the stuck-call threshold. The normal End path bills elapsed time and
// settles, so a crash-orphaned call still produces a correct charge.
func (s *Sweeper) endStuckCalls(ctx context.Context, now time.Time, report *Report) {
	cutoff := now.Add(-s.Policy.StuckCallThreshold)
	stuck, err := s.Consultations.ListByStatusOlderThan(models.StatusOngoing, "billing_start_time", cutoff, sweepBatchSize)
	if err != nil {
		s.Logger.Error("stuck-call scan failed", zap.Error(err))
		return
	}

	for _, c := range stuck {
		s.Logger.Warn("force-ending stuck consultation",
			zap.String("consultationId", c.ID),
			zap.Timep("billingStart", c.BillingStartTime))
		if _, err := s.Lifecycle.End(ctx, c.ID, models.EndReasonStuckCall); err != nil {
			s.Logger.Error("stuck-call termination failed",
				zap.String("consultationId", c.ID), zap.Error(err))
			continue
		}
		report.ForceEnded++
	}
}

// scanIntegrity verifies that every recently terminated billable consultation
// has its client payment on record, and that the wallets it touched agree
// with their transaction history. Violations are alerted, never silently
// fixed; repair goes through RepairUnsettled so it leaves an audit trail.
func (s *Sweeper) scanIntegrity(ctx context.Context, now time.Time, report *Report) {
	billable, err := s.Consultations.ListTerminalBillable(now.Add(-integrityWindow), sweepBatchSize)
	if err != nil {
		s.Logger.Error("integrity scan failed", zap.Error(err))
		return
	}

	checked := make(map[models.AccountRef]bool)
	for _, c := range billable {
		payment, err := s.Wallets.FindCompletedByConsultation(c.ID, models.TxnTypePayment)
		if err != nil {
			s.Logger.Error("integrity lookup failed",
				zap.String("consultationId", c.ID), zap.Error(err))
			continue
		}
		if payment == nil {
			report.Violations++
			s.alert(ctx, "billable consultation has no payment transaction", map[string]interface{}{
				"consultationId": c.ID,
				"totalAmount":    c.TotalAmount,
			})
			continue
		}

		for _, owner := range []models.AccountRef{
			{OwnerID: c.ClientID, OwnerKind: c.ClientKind},
			{OwnerID: c.ProviderID, OwnerKind: models.OwnerKindProvider},
		} {
			if checked[owner] {
				continue
			}
			checked[owner] = true
			s.auditBalance(ctx, owner, report)
		}
	}
}

// auditBalance compares a wallet's stored balance against the sum of its
// applied transaction deltas. Drift means some code wrote a balance outside
// the ledger, which is exactly the bug class this sweep exists to catch.
func (s *Sweeper) auditBalance(ctx context.Context, owner models.AccountRef, report *Report) {
	balance, err := s.Wallets.GetBalance(owner)
	if err != nil {
		s.Logger.Error("balance audit read failed",
			zap.String("ownerId", owner.OwnerID), zap.Error(err))
		return
	}
	expected, err := s.Wallets.SumAppliedDeltas(owner)
	if err != nil {
		s.Logger.Error("balance audit sum failed",
			zap.String("ownerId", owner.OwnerID), zap.Error(err))
		return
	}

	const epsilon = 0.005 // half a subunit
	if diff := balance - expected; diff > epsilon || diff < -epsilon {
		report.DriftOwners++
		s.alert(ctx, "wallet balance drifted from transaction history", map[string]interface{}{
			"ownerId":   owner.OwnerID,
			"ownerKind": owner.OwnerKind,
			"balance":   balance,
			"expected":  expected,
		})
	}
}

// RepairUnsettled settles a terminated billable consultation that is missing
// its payment transaction. Invoked by an operator after reviewing the alert,
// never automatically. The repair is the ordinary ledger settlement, so it
// produces auditable transactions, and the idempotency guard keeps a double
// repair harmless.
func (s *Sweeper) RepairUnsettled(ctx context.Context, consultationID string) error {
	c, err := s.Consultations.GetByID(consultationID)
	if err != nil {
		return err
	}
	if !c.IsTerminal() || c.TotalAmount <= 0 {
		return nil
	}

	s.Logger.Warn("repairing unsettled consultation",
		zap.String("consultationId", c.ID),
		zap.Float64("totalAmount", c.TotalAmount))

	client := models.AccountRef{OwnerID: c.ClientID, OwnerKind: c.ClientKind}
	provider := models.AccountRef{OwnerID: c.ProviderID, OwnerKind: models.OwnerKindProvider}
	_, err = s.Ledger.Settle(ctx, c.ID, client, provider, c.TotalAmount, s.Policy.CommissionRate)
	return err
}

func (s *Sweeper) alert(ctx context.Context, message string, data map[string]interface{}) {
	s.Logger.Error("integrity violation: "+message,
		zap.Any("details", data))
	if s.Publisher == nil {
		return
	}
	data["message"] = message
	if err := s.Publisher.Publish(ctx, models.EventReconciliationViolation, data); err != nil {
		s.Logger.Error("violation alert publish failed", zap.Error(err))
	}
}

package consultation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	consultationRepo "consultly/database/repository/consultation"
	"consultly/models"
	"consultly/services/billing"
	"consultly/services/events"
	"consultly/services/wallet"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeConsultationRepo mirrors the conditional-update semantics of the Mongo
// repository: transitions only apply when the record is in the expected state.
type fakeConsultationRepo struct {
	mu      sync.Mutex
	records map[string]*models.Consultation

	// rejectBeginBilling simulates losing the pending -> ongoing transition
	// to a concurrent acceptance.
	rejectBeginBilling bool
}

func newFakeConsultationRepo() *fakeConsultationRepo {
	return &fakeConsultationRepo{records: make(map[string]*models.Consultation)}
}

func (r *fakeConsultationRepo) Create(c *models.Consultation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	r.records[c.ID] = &cp
	return nil
}

func (r *fakeConsultationRepo) GetByID(id string) (*models.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok {
		return nil, errors.New("consultation not found")
	}
	cp := *c
	return &cp, nil
}

func (r *fakeConsultationRepo) RecordAcceptance(id, party string, at time.Time) (*models.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok || c.Status != models.StatusPending {
		return nil, errors.New("consultation not pending")
	}
	switch party {
	case consultationRepo.PartyClient:
		c.ClientAcceptedAt = &at
	case consultationRepo.PartyProvider:
		c.ProviderAcceptedAt = &at
	default:
		return nil, errors.New("unknown party")
	}
	c.UpdatedAt = at
	cp := *c
	return &cp, nil
}

func (r *fakeConsultationRepo) BeginBilling(id string, rate float64, freeTrial bool, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok || c.Status != models.StatusPending || !c.BothAccepted() || r.rejectBeginBilling {
		return false, nil
	}
	c.Status = models.StatusOngoing
	c.Rate = rate
	c.FreeTrial = freeTrial
	c.BillingStartTime = &at
	c.UpdatedAt = at
	return true, nil
}

func (r *fakeConsultationRepo) ClaimTermination(id, fromStatus, toStatus, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok || c.Status != fromStatus {
		return false, nil
	}
	c.Status = toStatus
	c.EndReason = reason
	c.EndedAt = &at
	c.UpdatedAt = at
	return true, nil
}

func (r *fakeConsultationRepo) FinalizeBilling(id string, durationMinutes, totalAmount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.records[id]
	if !ok || c.Settled {
		return nil
	}
	c.DurationMinutes = durationMinutes
	c.TotalAmount = totalAmount
	c.Settled = true
	return nil
}

func (r *fakeConsultationRepo) UpdateEndReason(id, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.records[id]; ok && c.Status != models.StatusOngoing {
		c.EndReason = reason
	}
	return nil
}

func (r *fakeConsultationRepo) ListByStatusOlderThan(status, timeField string, cutoff time.Time, limit int64) ([]models.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Consultation
	for _, c := range r.records {
		if c.Status != status {
			continue
		}
		var ts time.Time
		switch timeField {
		case "created_at":
			ts = c.CreatedAt
		case "billing_start_time":
			if c.BillingStartTime != nil {
				ts = *c.BillingStartTime
			}
		}
		if !ts.IsZero() && ts.Before(cutoff) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeConsultationRepo) ListTerminalBillable(since time.Time, limit int64) ([]models.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Consultation
	for _, c := range r.records {
		if c.IsTerminal() && c.TotalAmount > 0 && c.EndedAt != nil && c.EndedAt.After(since) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeConsultationRepo) ListByClient(clientID, status string, limit int64) ([]models.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Consultation
	for _, c := range r.records {
		if c.ClientID == clientID && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeConsultationRepo) ListByProvider(providerID, status string, limit int64) ([]models.Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Consultation
	for _, c := range r.records {
		if c.ProviderID == providerID && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeProviderRepo struct {
	providers map[string]*models.Provider
}

func (r *fakeProviderRepo) GetByID(id string) (*models.Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, errors.New("provider not found")
	}
	return p, nil
}

func (r *fakeProviderRepo) Create(p *models.Provider) error {
	r.providers[p.ID] = p
	return nil
}

func (r *fakeProviderRepo) UpdateCanonicalRates(id string, chat, audio, video float64) error {
	p, ok := r.providers[id]
	if !ok {
		return errors.New("provider not found")
	}
	p.Rates.Chat = chat
	p.Rates.PerMinute.Audio = audio
	p.Rates.PerMinute.Video = video
	return nil
}

type fakeUserRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	trialUsed map[string]bool
}

func (r *fakeUserRepo) GetUserByID(id string) (*models.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return u, nil
}

func (r *fakeUserRepo) GetGuestByID(id string) (*models.Guest, error) {
	return nil, errors.New("guest not found")
}

func (r *fakeUserRepo) CreateUser(u *models.User) error {
	r.users[u.ID] = u
	return nil
}

func (r *fakeUserRepo) CreateGuest(g *models.Guest) error { return nil }

func (r *fakeUserRepo) ClaimFreeTrial(userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return false, nil
	}
	if r.trialUsed[userID] {
		return false, nil
	}
	r.trialUsed[userID] = true
	return true, nil
}

func (r *fakeUserRepo) ReleaseFreeTrial(userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trialUsed, userID)
	return nil
}

func (r *fakeUserRepo) trialConsumed(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trialUsed[userID]
}

// fakeLedger records settlements without touching real balances.
type fakeLedger struct {
	mu           sync.Mutex
	balance      float64
	settlements  []float64
	credits      []float64
	insufficient bool
}

func (l *fakeLedger) Settle(_ context.Context, consultationID string, client, provider models.AccountRef, amount, commissionRate float64) (*wallet.Settlement, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insufficient {
		return nil, wallet.ErrInsufficientFunds
	}
	if amount == 0 {
		return &wallet.Settlement{}, nil
	}
	l.settlements = append(l.settlements, amount)
	clientTxn := &models.WalletTransaction{ID: uuid.New().String(), ConsultationID: consultationID, Amount: -amount, Type: models.TxnTypePayment, Status: models.TxnStatusCompleted}
	provTxn := &models.WalletTransaction{ID: uuid.New().String(), ConsultationID: consultationID, Amount: billing.ProviderShare(amount, commissionRate), Type: models.TxnTypeEarning, Status: models.TxnStatusCompleted}
	return &wallet.Settlement{ClientTxn: clientTxn, ProviderTxn: provTxn}, nil
}

func (l *fakeLedger) Reverse(_ context.Context, transactionID, reason string) (*models.WalletTransaction, error) {
	return nil, errors.New("not implemented")
}

func (l *fakeLedger) Credit(_ context.Context, owner models.AccountRef, amount float64, txnType, note string) (*models.WalletTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credits = append(l.credits, amount)
	return &models.WalletTransaction{Amount: amount, Type: txnType}, nil
}

func (l *fakeLedger) Debit(_ context.Context, owner models.AccountRef, amount float64, txnType, note string) (*models.WalletTransaction, error) {
	return nil, errors.New("not implemented")
}

func (l *fakeLedger) Balance(owner models.AccountRef) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, nil
}

func (l *fakeLedger) Transactions(owner models.AccountRef, limit int64) ([]models.WalletTransaction, error) {
	return nil, nil
}

func (l *fakeLedger) settled() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]float64, len(l.settlements))
	copy(out, l.settlements)
	return out
}

type testHarness struct {
	svc    *DefaultConsultationService
	repo   *fakeConsultationRepo
	prov   *fakeProviderRepo
	users  *fakeUserRepo
	ledger *fakeLedger
	pub    *events.MemoryPublisher
}

func newHarness(policy Policy) *testHarness {
	repo := newFakeConsultationRepo()
	prov := &fakeProviderRepo{providers: map[string]*models.Provider{
		"prov-1": {ID: "prov-1", Rates: models.ProviderRates{
			Chat:      3,
			PerMinute: models.PerMinuteRates{Audio: 10, Video: 20},
		}},
	}}
	users := &fakeUserRepo{
		users:     map[string]*models.User{"user-1": {ID: "user-1"}},
		trialUsed: make(map[string]bool),
	}
	ledger := &fakeLedger{balance: 1000}
	pub := &events.MemoryPublisher{}

	svc := NewDefaultConsultationService(repo, prov, users, ledger, pub, policy, zap.NewNop())
	return &testHarness{svc: svc, repo: repo, prov: prov, users: users, ledger: ledger, pub: pub}
}

func (h *testHarness) createOngoing(t *testing.T, typ string) *models.Consultation {
	t.Helper()
	ctx := context.Background()
	c, err := h.svc.Create(ctx, models.CreateConsultationRequest{
		Type: typ, ClientID: "user-1", ClientKind: models.OwnerKindUser, ProviderID: "prov-1",
	})
	require.NoError(t, err)

	_, err = h.svc.ClientAccepted(ctx, c.ID)
	require.NoError(t, err)
	c, err = h.svc.ProviderAccepted(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusOngoing, c.Status)
	return c
}

// rewindBillingStart fakes elapsed call time by moving the billing start into
// the past.
func (h *testHarness) rewindBillingStart(t *testing.T, id string, d time.Duration) {
	t.Helper()
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	c, ok := h.repo.records[id]
	require.True(t, ok)
	require.NotNil(t, c.BillingStartTime)
	start := c.BillingStartTime.Add(-d)
	c.BillingStartTime = &start
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(Policy{})
	ctx := context.Background()

	tests := []struct {
		name string
		req  models.CreateConsultationRequest
	}{
		{"bad type", models.CreateConsultationRequest{Type: "hologram", ClientID: "u", ClientKind: "user", ProviderID: "p"}},
		{"bad client kind", models.CreateConsultationRequest{Type: "chat", ClientID: "u", ClientKind: "provider", ProviderID: "p"}},
		{"missing client", models.CreateConsultationRequest{Type: "chat", ClientKind: "user", ProviderID: "p"}},
		{"missing provider", models.CreateConsultationRequest{Type: "chat", ClientID: "u", ClientKind: "user"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(ctx, tt.req)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestAcceptanceStartsBillingOnlyWhenBothAccept(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05})
	ctx := context.Background()

	c, err := h.svc.Create(ctx, models.CreateConsultationRequest{
		Type: models.TypeAudio, ClientID: "user-1", ClientKind: models.OwnerKindUser, ProviderID: "prov-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, c.Status)

	c, err = h.svc.ClientAccepted(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, c.Status)
	assert.Nil(t, c.BillingStartTime)

	c, err = h.svc.ProviderAccepted(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOngoing, c.Status)
	require.NotNil(t, c.BillingStartTime)
	assert.Equal(t, 10.0, c.Rate) // per_minute.audio snapshot

	started := h.pub.Named(models.EventConsultationStarted)
	require.Len(t, started, 1)
	assert.Equal(t, 10.0, started[0].Data["rate"])
}

func TestLateAcceptanceIsNoOp(t *testing.T) {
	h := newHarness(Policy{})
	ctx := context.Background()
	c := h.createOngoing(t, models.TypeChat)

	// A duplicate accept after billing started must not restart anything.
	before, err := h.repo.GetByID(c.ID)
	require.NoError(t, err)

	got, err := h.svc.ClientAccepted(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOngoing, got.Status)
	assert.Equal(t, before.BillingStartTime.Unix(), got.BillingStartTime.Unix())
}

func TestEndSettlesElapsedTime(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05})
	ctx := context.Background()
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, 10*time.Minute)

	ended, err := h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, ended.Status)
	assert.Equal(t, models.EndReasonUserEnded, ended.EndReason)
	assert.True(t, ended.Settled)

	// Ten minutes at 10/min, plus whatever seconds the test itself took.
	assert.InDelta(t, 100, ended.TotalAmount, 1)
	assert.InDelta(t, 10, ended.DurationMinutes, 0.1)

	settled := h.ledger.settled()
	require.Len(t, settled, 1)
	assert.InDelta(t, 100, settled[0], 1)

	assert.Len(t, h.pub.Named(models.EventConsultationEnded), 1)
}

func TestEndIsIdempotent(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05})
	ctx := context.Background()
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, 5*time.Minute)

	first, err := h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)

	second, err := h.svc.End(ctx, c.ID, models.EndReasonProviderEnded)
	require.NoError(t, err)

	// The loser observes the winner's outcome unchanged.
	assert.Equal(t, models.StatusCompleted, second.Status)
	assert.Equal(t, models.EndReasonUserEnded, second.EndReason)
	assert.Equal(t, first.TotalAmount, second.TotalAmount)
	assert.Len(t, h.ledger.settled(), 1)
}

func TestConcurrentEndsSettleOnce(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05})
	ctx := context.Background()
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, 2*time.Minute)

	var wg sync.WaitGroup
	reasons := []string{
		models.EndReasonUserEnded,
		models.EndReasonProviderEnded,
		models.EndReasonConnectionLost,
		models.EndReasonInsufficientFunds,
	}
	for _, reason := range reasons {
		wg.Add(1)
		go func(reason string) {
			defer wg.Done()
			_, err := h.svc.End(ctx, c.ID, reason)
			assert.NoError(t, err)
		}(reason)
	}
	wg.Wait()

	assert.Len(t, h.ledger.settled(), 1)
	final, err := h.repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, final.Status)
	assert.True(t, final.Settled)
}

func TestEndPendingCancelsWithoutBilling(t *testing.T) {
	h := newHarness(Policy{})
	ctx := context.Background()

	c, err := h.svc.Create(ctx, models.CreateConsultationRequest{
		Type: models.TypeChat, ClientID: "user-1", ClientKind: models.OwnerKindUser, ProviderID: "prov-1",
	})
	require.NoError(t, err)

	ended, err := h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, ended.Status)
	assert.Zero(t, ended.TotalAmount)
	assert.Empty(t, h.ledger.settled())
}

func TestEndWithZeroRateIsFree(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05})
	h.prov.providers["prov-1"].Rates = models.ProviderRates{} // nothing configured
	ctx := context.Background()

	c := h.createOngoing(t, models.TypeVideo)
	assert.Zero(t, c.Rate)
	h.rewindBillingStart(t, c.ID, 30*time.Minute)

	ended, err := h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, ended.Status)
	assert.Zero(t, ended.TotalAmount)
	assert.InDelta(t, 30, ended.DurationMinutes, 0.1)
	assert.Empty(t, h.ledger.settled())
}

func TestEndInsufficientFundsClosesUnbilled(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05})
	ctx := context.Background()
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, 10*time.Minute)
	h.ledger.insufficient = true

	ended, err := h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, ended.Status)
	assert.Equal(t, models.EndReasonInsufficientFunds, ended.EndReason)
	assert.Zero(t, ended.TotalAmount)
	assert.Empty(t, h.ledger.credits) // provider bears the loss by default
}

func TestEndInsufficientFundsCompensatesProviderWhenConfigured(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05, CompensateProviderOnShortfall: true})
	ctx := context.Background()
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, 10*time.Minute)
	h.ledger.insufficient = true

	_, err := h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)

	require.Len(t, h.ledger.credits, 1)
	// 10 min at 10/min is ~100; provider share at 5% commission is ~95.
	assert.InDelta(t, 95, h.ledger.credits[0], 1)
}

func TestExpirePendingMovesToNoAnswer(t *testing.T) {
	h := newHarness(Policy{})
	ctx := context.Background()

	c, err := h.svc.Create(ctx, models.CreateConsultationRequest{
		Type: models.TypeChat, ClientID: "user-1", ClientKind: models.OwnerKindUser, ProviderID: "prov-1",
	})
	require.NoError(t, err)

	expired, err := h.svc.ExpirePending(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoAnswer, expired.Status)
	assert.Equal(t, models.EndReasonTimeout, expired.EndReason)
	assert.Zero(t, expired.TotalAmount)
	assert.Empty(t, h.ledger.settled())

	// Expiry against an already-terminal record is a no-op.
	again, err := h.svc.ExpirePending(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoAnswer, again.Status)
}

func TestFreeTrialConsultationBillsNothing(t *testing.T) {
	h := newHarness(Policy{CommissionRate: 0.05, FreeTrialEnabled: true})
	ctx := context.Background()

	c := h.createOngoing(t, models.TypeAudio)
	assert.True(t, c.FreeTrial)
	assert.Zero(t, c.Rate)

	h.rewindBillingStart(t, c.ID, 15*time.Minute)
	ended, err := h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)
	assert.Zero(t, ended.TotalAmount)
	assert.Empty(t, h.ledger.settled())

	// The trial is consumed: the next consultation bills normally.
	c2 := h.createOngoing(t, models.TypeAudio)
	assert.False(t, c2.FreeTrial)
	assert.Equal(t, 10.0, c2.Rate)
}

func TestBalanceWatcherForceEndsWhenExhausted(t *testing.T) {
	h := newHarness(Policy{
		CommissionRate:       0.05,
		BalanceCheckInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	// 14 in the wallet against a 10/min rate. Nothing debits the wallet
	// mid-call, so the stored balance stays at 14 the whole time; the check
	// must subtract the charge accrued so far. A minute in, the remaining 4
	// cannot cover another minute and the call is force-ended, billed for
	// roughly the minute it could cover.
	h.ledger.balance = 14
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, time.Minute)

	require.Eventually(t, func() bool {
		got, err := h.repo.GetByID(c.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonInsufficientFunds, got.EndReason)

	settled := h.ledger.settled()
	require.Len(t, settled, 1)
	assert.InDelta(t, 10.0, settled[0], 1)
}

func TestBalanceWatcherChecksRemainingNotStoredBalance(t *testing.T) {
	h := newHarness(Policy{
		CommissionRate:       0.05,
		BalanceCheckInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	// Two minutes already accrued at 10/min against a 14 wallet: the stored
	// balance still reads 14, but the call is already unbillable and must not
	// be allowed to keep running.
	h.ledger.balance = 14
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, 2*time.Minute)

	require.Eventually(t, func() bool {
		got, err := h.repo.GetByID(c.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonInsufficientFunds, got.EndReason)
}

func TestBalanceWatcherWarnsNearExhaustion(t *testing.T) {
	h := newHarness(Policy{
		CommissionRate:       0.05,
		BalanceCheckInterval: 10 * time.Millisecond,
	})
	ctx := context.Background()

	// Remaining funds above one increment but below two: warn, keep the
	// call alive.
	h.ledger.balance = 14
	c := h.createOngoing(t, models.TypeAudio)

	require.Eventually(t, func() bool {
		return len(h.pub.Named(models.EventWalletLowBalanceWarning)) > 0
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.svc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOngoing, got.Status)

	_, err = h.svc.End(ctx, c.ID, models.EndReasonUserEnded)
	require.NoError(t, err)
}

func TestFreeTrialReleasedWhenBillingStartRaceLost(t *testing.T) {
	h := newHarness(Policy{FreeTrialEnabled: true})
	ctx := context.Background()

	c, err := h.svc.Create(ctx, models.CreateConsultationRequest{
		Type: models.TypeAudio, ClientID: "user-1", ClientKind: models.OwnerKindUser, ProviderID: "prov-1",
	})
	require.NoError(t, err)

	_, err = h.svc.ClientAccepted(ctx, c.ID)
	require.NoError(t, err)

	// The second accept claims the trial, then loses the pending -> ongoing
	// transition to a concurrent acceptance. The claimed trial was never
	// applied and must be handed back, not burned.
	h.repo.mu.Lock()
	h.repo.rejectBeginBilling = true
	h.repo.mu.Unlock()

	_, err = h.svc.ProviderAccepted(ctx, c.ID)
	require.NoError(t, err)

	assert.False(t, h.users.trialConsumed("user-1"))

	claimed, err := h.users.ClaimFreeTrial("user-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestResumeWatchersRestartsBalanceProtection(t *testing.T) {
	h := newHarness(Policy{
		CommissionRate:       0.05,
		BalanceCheckInterval: 10 * time.Millisecond,
	})

	h.ledger.balance = 14
	c := h.createOngoing(t, models.TypeAudio)
	h.rewindBillingStart(t, c.ID, 90*time.Second)

	// Simulate a process restart: the accept-time watcher is gone and a
	// fresh service holds no in-memory state for the still-ongoing call.
	h.svc.stopWatcher(c.ID)
	restarted := NewDefaultConsultationService(
		h.repo, h.prov, h.users, h.ledger, h.pub, h.svc.Policy, zap.NewNop(),
	)
	require.NoError(t, restarted.ResumeWatchers())

	require.Eventually(t, func() bool {
		got, err := h.repo.GetByID(c.ID)
		return err == nil && got.Status == models.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	got, err := h.repo.GetByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonInsufficientFunds, got.EndReason)
}

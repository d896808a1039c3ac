package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bookline/payments-service/internal/domain"
)

// repoStub is an in-memory Repository used across the app tests. Charge
// claims follow the real conditional-update semantics: only a pending charge
// can be claimed, so concurrent-run tests behave like the database would.
type repoStub struct {
	mu sync.Mutex

	sessions    []domain.AppointmentSession
	sessionsErr error

	confirmations        map[string]*domain.Confirmation // keyed by session id
	insertConfirmErrFor  map[string]error
	autoResolveErr       error

	earningSources    []domain.EarningSource
	earningSourcesErr error
	earnings          map[string]*domain.Earning // keyed by confirmation id

	groups    []domain.EarningGroup
	groupsErr error

	charges        map[string]*domain.FeeCharge // keyed by charge id
	dueChargeIDs   []string
	dueChargesErr  error
	attempts       []domain.FeeChargeAttempt
	groupsBoundArg time.Time
	requeueArg     time.Time
	reclaimArg     time.Time

	stuckCount   int64
	overdueCount int64
	stuckErr     error
	overdueErr   error

	professionalBySubject map[string]string
}

func newRepoStub() *repoStub {
	return &repoStub{
		confirmations:         map[string]*domain.Confirmation{},
		insertConfirmErrFor:   map[string]error{},
		earnings:              map[string]*domain.Earning{},
		charges:               map[string]*domain.FeeCharge{},
		professionalBySubject: map[string]string{},
	}
}

func (r *repoStub) FindProfessionalIDByAuthSubject(ctx context.Context, subject string) (string, error) {
	if id, ok := r.professionalBySubject[subject]; ok {
		return id, nil
	}
	return "", errors.New("professional not found")
}

func (r *repoStub) ListSessionsAwaitingConfirmation(ctx context.Context, asOf time.Time) ([]domain.AppointmentSession, error) {
	if r.sessionsErr != nil {
		return nil, r.sessionsErr
	}
	var out []domain.AppointmentSession
	for _, s := range r.sessions {
		if _, exists := r.confirmations[s.ID]; exists {
			continue
		}
		if s.Completed && !s.EndTime.After(asOf) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *repoStub) InsertConfirmation(ctx context.Context, c domain.Confirmation) (bool, error) {
	if err := r.insertConfirmErrFor[c.SessionID]; err != nil {
		return false, err
	}
	if _, exists := r.confirmations[c.SessionID]; exists {
		return false, nil
	}
	stored := c
	stored.ID = "conf-" + c.SessionID
	r.confirmations[c.SessionID] = &stored
	return true, nil
}

func (r *repoStub) AutoResolveExpiredConfirmations(ctx context.Context, asOf time.Time) ([]domain.Confirmation, error) {
	if r.autoResolveErr != nil {
		return nil, r.autoResolveErr
	}
	var resolved []domain.Confirmation
	for _, c := range r.confirmations {
		if c.State == domain.ConfirmationPending && !c.ResolutionDeadline.After(asOf) {
			c.State = domain.ConfirmationAutoResolved
			at := asOf
			c.ResolvedAt = &at
			resolved = append(resolved, *c)
		}
	}
	return resolved, nil
}

func (r *repoStub) ListConfirmationsAwaitingEarnings(ctx context.Context) ([]domain.EarningSource, error) {
	if r.earningSourcesErr != nil {
		return nil, r.earningSourcesErr
	}
	if r.earningSources != nil {
		return r.earningSources, nil
	}
	var out []domain.EarningSource
	for _, c := range r.confirmations {
		if c.State != domain.ConfirmationConfirmed && c.State != domain.ConfirmationAutoResolved {
			continue
		}
		if _, exists := r.earnings[c.ID]; exists {
			continue
		}
		src := domain.EarningSource{
			ConfirmationID: c.ID,
			SessionID:      c.SessionID,
			ProfessionalID: c.ProfessionalID,
			CycleStart:     c.CycleStart,
		}
		for _, s := range r.sessions {
			if s.ID == c.SessionID {
				src.SessionRate = s.RateAmount
			}
		}
		out = append(out, src)
	}
	return out, nil
}

func (r *repoStub) InsertEarning(ctx context.Context, e domain.Earning) (bool, error) {
	if _, exists := r.earnings[e.ConfirmationID]; exists {
		return false, nil
	}
	stored := e
	stored.ID = "earn-" + e.ConfirmationID
	r.earnings[e.ConfirmationID] = &stored
	return true, nil
}

func (r *repoStub) ListEarningsForCycle(ctx context.Context, cycleStart time.Time, professionalID string) ([]domain.Earning, error) {
	var out []domain.Earning
	for _, e := range r.earnings {
		if e.CycleStart.Equal(cycleStart) && e.ProfessionalID == professionalID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *repoStub) UpdateEarningsStatus(ctx context.Context, professionalID string, cycleStart time.Time, from, to string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var updated int64
	for _, e := range r.earnings {
		if e.ProfessionalID == professionalID && e.CycleStart.Equal(cycleStart) && e.Status == from {
			e.Status = to
			updated++
		}
	}
	return updated, nil
}

func (r *repoStub) ListChargeableEarningGroups(ctx context.Context, latestCycleStart time.Time) ([]domain.EarningGroup, error) {
	r.groupsBoundArg = latestCycleStart
	if r.groupsErr != nil {
		return nil, r.groupsErr
	}
	var out []domain.EarningGroup
	for _, g := range r.groups {
		if !g.CycleStart.After(latestCycleStart) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (r *repoStub) InsertFeeCharge(ctx context.Context, c domain.FeeCharge) (bool, error) {
	key := c.ProfessionalID + "|" + c.CycleStart.Format(time.RFC3339)
	for _, existing := range r.charges {
		if existing.ProfessionalID == c.ProfessionalID && existing.CycleStart.Equal(c.CycleStart) {
			return false, nil
		}
	}
	stored := c
	stored.ID = "charge-" + key
	r.charges[stored.ID] = &stored
	return true, nil
}

func (r *repoStub) GetFeeCharge(ctx context.Context, chargeID string) (*domain.FeeCharge, error) {
	c, ok := r.charges[chargeID]
	if !ok {
		return nil, errors.New("fee charge not found")
	}
	copied := *c
	return &copied, nil
}

func (r *repoStub) ListDueFeeCharges(ctx context.Context) ([]domain.FeeCharge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dueChargesErr != nil {
		return nil, r.dueChargesErr
	}
	var out []domain.FeeCharge
	if r.dueChargeIDs != nil {
		for _, id := range r.dueChargeIDs {
			if c, ok := r.charges[id]; ok {
				out = append(out, *c)
			}
		}
		return out, nil
	}
	for _, c := range r.charges {
		if c.Status == domain.FeeChargePending {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *repoStub) ListRecentFeeCharges(ctx context.Context, professionalID string, limit int) ([]domain.FeeCharge, error) {
	var out []domain.FeeCharge
	for _, c := range r.charges {
		if c.ProfessionalID == professionalID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *repoStub) ClaimFeeCharge(ctx context.Context, chargeID string, attemptAt time.Time) (*domain.FeeCharge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.charges[chargeID]
	if !ok || c.Status != domain.FeeChargePending {
		return nil, nil
	}
	c.Status = domain.FeeChargeProcessing
	c.AttemptCount++
	at := attemptAt
	c.LastAttemptAt = &at
	copied := *c
	return &copied, nil
}

func (r *repoStub) InsertFeeChargeAttempt(ctx context.Context, chargeID string, amount int64, status string, failureReason, gatewayRef *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, domain.FeeChargeAttempt{
		FeeChargeID:      chargeID,
		Amount:           amount,
		Status:           status,
		FailureReason:    failureReason,
		GatewayReference: gatewayRef,
	})
	return nil
}

func (r *repoStub) MarkFeeChargeSucceeded(ctx context.Context, chargeID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charges[chargeID]; ok {
		c.Status = domain.FeeChargeSucceeded
		c.LastError = nil
	}
	return nil
}

func (r *repoStub) MarkFeeChargeRetrying(ctx context.Context, chargeID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charges[chargeID]; ok {
		c.Status = domain.FeeChargeRetrying
		c.LastError = &reason
	}
	return nil
}

func (r *repoStub) MarkFeeChargeFailed(ctx context.Context, chargeID string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.charges[chargeID]; ok {
		c.Status = domain.FeeChargeFailed
		c.LastError = &reason
	}
	return nil
}

func (r *repoStub) RequeueRetryingCharges(ctx context.Context, attemptedBefore time.Time) (int64, error) {
	r.requeueArg = attemptedBefore
	var requeued int64
	for _, c := range r.charges {
		if c.Status != domain.FeeChargeRetrying {
			continue
		}
		if c.LastAttemptAt == nil || !c.LastAttemptAt.After(attemptedBefore) {
			c.Status = domain.FeeChargePending
			requeued++
		}
	}
	return requeued, nil
}

func (r *repoStub) ReclaimStuckCharges(ctx context.Context, stuckBefore time.Time) ([]domain.FeeCharge, error) {
	r.reclaimArg = stuckBefore
	var reclaimed []domain.FeeCharge
	for _, c := range r.charges {
		if c.Status == domain.FeeChargeProcessing && c.LastAttemptAt != nil && !c.LastAttemptAt.After(stuckBefore) {
			c.Status = domain.FeeChargeRetrying
			reclaimed = append(reclaimed, *c)
		}
	}
	return reclaimed, nil
}

func (r *repoStub) CountStuckProcessingCharges(ctx context.Context, stuckBefore time.Time) (int64, error) {
	if r.stuckErr != nil {
		return 0, r.stuckErr
	}
	return r.stuckCount, nil
}

func (r *repoStub) CountOverduePendingConfirmations(ctx context.Context, asOf time.Time) (int64, error) {
	if r.overdueErr != nil {
		return 0, r.overdueErr
	}
	return r.overdueCount, nil
}

// gatewayStub records Collect calls and returns a canned outcome.
type gatewayStub struct {
	mu    sync.Mutex
	calls int
	ref   string
	err   error
}

func (g *gatewayStub) Collect(ctx context.Context, professionalID string, amount int64, chargeID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	if g.ref == "" {
		return "gw-ref-1", nil
	}
	return g.ref, nil
}

// publisherStub records published events.
type publisherStub struct {
	mu     sync.Mutex
	events []string
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func newTestService(t *testing.T, repo *repoStub, gateway *gatewayStub) (*Service, *publisherStub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	publisher := &publisherStub{}
	service := NewService(repo, gateway, publisher, logger, Policies{
		FeePolicy:                FlatPercentPolicy(15),
		DefaultSessionRate:       5000,
		MaxChargeAttempts:        3,
		RetryBackoff:             24 * time.Hour,
		StuckProcessingThreshold: time.Hour,
	})
	return service, publisher
}

/**
 * @description
 * Fee charge processing: creating one charge per (professional, cycle) once
 * the cycle's cutoff has passed, collecting it through the payment gateway,
 * and retrying failures on a daily backoff up to a bounded attempt count.
 */
package app

import (
	"context"
	"time"

	"github.com/bookline/payments-service/internal/domain"
)

// DefaultCurrency is applied to new fee charges.
const DefaultCurrency = "USD"

// ChargeRunResult summarizes one pass of charge collection.
type ChargeRunResult struct {
	Evaluated int `json:"evaluated"`
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type chargeEvent struct {
	ChargeID       string    `json:"charge_id"`
	ProfessionalID string    `json:"professional_id"`
	CycleStart     time.Time `json:"cycle_start"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Status         string    `json:"status"`
	AttemptCount   int       `json:"attempt_count"`
	FailureReason  *string   `json:"failure_reason,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// CreateFeeCharges creates one pending fee charge per (professional, cycle)
// group of pending-charge earnings, for cycles whose cutoff has passed as of
// the given instant. The unique constraint on the pair keeps creation
// at-most-once under concurrent runs.
func (s *Service) CreateFeeCharges(ctx context.Context, asOf time.Time) (int, error) {
	latestCycleStart := domain.LatestCycleStartWithCutoffPassed(asOf)

	groups, err := s.repo.ListChargeableEarningGroups(ctx, latestCycleStart)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, group := range groups {
		charge := domain.FeeCharge{
			ProfessionalID: group.ProfessionalID,
			CycleStart:     group.CycleStart,
			TotalFeeAmount: group.TotalFeeAmount,
			Currency:       DefaultCurrency,
			Status:         domain.FeeChargePending,
		}

		inserted, err := s.repo.InsertFeeCharge(ctx, charge)
		if err != nil {
			s.logger.Error("failed to create fee charge",
				"professional_id", group.ProfessionalID, "cycle_start", group.CycleStart, "error", err)
			continue
		}
		if inserted {
			created++
		}
	}

	return created, nil
}

// ProcessPendingCharges attempts collection for every pending fee charge.
// Each charge is claimed with an atomic pending→processing transition before
// the gateway is called, so two overlapping runs can never submit the same
// charge twice; the loser of the claim simply skips.
func (s *Service) ProcessPendingCharges(ctx context.Context) (*ChargeRunResult, error) {
	charges, err := s.repo.ListDueFeeCharges(ctx)
	if err != nil {
		return nil, err
	}

	result := &ChargeRunResult{Evaluated: len(charges)}
	for _, charge := range charges {
		attempted, err := s.attemptCharge(ctx, charge.ID, time.Now().UTC())
		switch {
		case err != nil:
			if attempted {
				result.Attempted++
			}
			result.Failed++
		case !attempted:
			result.Skipped++
		default:
			result.Attempted++
			result.Succeeded++
		}
	}

	return result, nil
}

// ChargeFeeCharge attempts collection for one specific charge, for the manual
// ops route. The same claim discipline applies.
func (s *Service) ChargeFeeCharge(ctx context.Context, chargeID string) (*domain.FeeCharge, error) {
	if _, err := s.repo.GetFeeCharge(ctx, chargeID); err != nil {
		return nil, err
	}

	if _, err := s.attemptCharge(ctx, chargeID, time.Now().UTC()); err != nil {
		s.logger.Warn("manual charge attempt failed", "charge_id", chargeID, "error", err)
	}

	return s.repo.GetFeeCharge(ctx, chargeID)
}

// RetryFailedCharges re-queues retrying charges whose last attempt is older
// than the retry backoff, making them eligible for the next processing pass.
func (s *Service) RetryFailedCharges(ctx context.Context, asOf time.Time) (int, error) {
	requeued, err := s.repo.RequeueRetryingCharges(ctx, asOf.Add(-s.policies.RetryBackoff))
	if err != nil {
		return 0, err
	}
	return int(requeued), nil
}

// ReclaimStuckCharges resets charges left in processing past the stuck
// threshold (a run that died mid-attempt) back to retrying so a later run can
// pick them up instead of leaving them stuck indefinitely.
func (s *Service) ReclaimStuckCharges(ctx context.Context, asOf time.Time) (int, error) {
	reclaimed, err := s.repo.ReclaimStuckCharges(ctx, asOf.Add(-s.policies.StuckProcessingThreshold))
	if err != nil {
		return 0, err
	}

	for _, charge := range reclaimed {
		s.logger.Warn("reclaimed stuck fee charge", "charge_id", charge.ID, "attempt_count", charge.AttemptCount)
	}

	return len(reclaimed), nil
}

// attemptCharge claims the charge and, if the claim wins, calls the gateway
// and finalizes the outcome. Returns whether an attempt was actually made and
// the attempt's error, if any. A gateway timeout is a failure, never a
// presumed success.
func (s *Service) attemptCharge(ctx context.Context, chargeID string, now time.Time) (bool, error) {
	claimed, err := s.repo.ClaimFeeCharge(ctx, chargeID, now)
	if err != nil {
		s.logger.Error("failed to claim fee charge", "charge_id", chargeID, "error", err)
		return false, err
	}
	if claimed == nil {
		return false, nil
	}

	gatewayRef, err := s.gateway.Collect(ctx, claimed.ProfessionalID, claimed.TotalFeeAmount, claimed.ID)
	if err != nil {
		reason := err.Error()
		if attemptErr := s.repo.InsertFeeChargeAttempt(ctx, claimed.ID, claimed.TotalFeeAmount, "failed", &reason, nil); attemptErr != nil {
			s.logger.Warn("failed to record charge attempt", "charge_id", claimed.ID, "error", attemptErr)
		}

		exhausted := claimed.AttemptCount >= s.policies.MaxChargeAttempts
		if exhausted {
			if markErr := s.repo.MarkFeeChargeFailed(ctx, claimed.ID, reason); markErr != nil {
				s.logger.Error("failed to mark charge failed", "charge_id", claimed.ID, "error", markErr)
			}
			if _, updErr := s.repo.UpdateEarningsStatus(ctx, claimed.ProfessionalID, claimed.CycleStart, domain.EarningPendingCharge, domain.EarningFailed); updErr != nil {
				s.logger.Error("failed to mark earnings failed", "charge_id", claimed.ID, "error", updErr)
			}
			s.publishEvent(ctx, "payments.charge.exhausted", s.newChargeEvent(claimed, domain.FeeChargeFailed, &reason, now))
		} else {
			if markErr := s.repo.MarkFeeChargeRetrying(ctx, claimed.ID, reason); markErr != nil {
				s.logger.Error("failed to mark charge retrying", "charge_id", claimed.ID, "error", markErr)
			}
			s.publishEvent(ctx, "payments.charge.failed", s.newChargeEvent(claimed, domain.FeeChargeRetrying, &reason, now))
		}

		return true, err
	}

	if attemptErr := s.repo.InsertFeeChargeAttempt(ctx, claimed.ID, claimed.TotalFeeAmount, "success", nil, &gatewayRef); attemptErr != nil {
		s.logger.Warn("failed to record charge attempt", "charge_id", claimed.ID, "error", attemptErr)
	}
	if err := s.repo.MarkFeeChargeSucceeded(ctx, claimed.ID, now); err != nil {
		s.logger.Error("failed to mark charge succeeded", "charge_id", claimed.ID, "error", err)
		return true, err
	}
	if _, err := s.repo.UpdateEarningsStatus(ctx, claimed.ProfessionalID, claimed.CycleStart, domain.EarningPendingCharge, domain.EarningCharged); err != nil {
		s.logger.Error("failed to mark earnings charged", "charge_id", claimed.ID, "error", err)
	}

	s.publishEvent(ctx, "payments.charge.succeeded", s.newChargeEvent(claimed, domain.FeeChargeSucceeded, nil, now))

	return true, nil
}

func (s *Service) newChargeEvent(charge *domain.FeeCharge, status string, failureReason *string, now time.Time) chargeEvent {
	return chargeEvent{
		ChargeID:       charge.ID,
		ProfessionalID: charge.ProfessionalID,
		CycleStart:     charge.CycleStart,
		Amount:         charge.TotalFeeAmount,
		Currency:       charge.Currency,
		Status:         status,
		AttemptCount:   charge.AttemptCount,
		FailureReason:  failureReason,
		Timestamp:      now,
	}
}

// ListFeeCharges returns a professional's recent fee charges.
func (s *Service) ListFeeCharges(ctx context.Context, professionalID string) ([]domain.FeeCharge, error) {
	return s.repo.ListRecentFeeCharges(ctx, professionalID, 12)
}

/**
 * @description
 * Scheduled run orchestration. One pass sequences confirmation creation,
 * auto-resolution, earnings aggregation, fee charge creation, collection and
 * retry re-queueing against a single captured instant. Step failures are
 * recorded and do not stop later steps.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduledRunResult reports the outcome of one orchestration pass.
type ScheduledRunResult struct {
	RunID                     string    `json:"run_id"`
	StartedAt                 time.Time `json:"started_at"`
	ConfirmationsCreated      int       `json:"confirmations_created"`
	ConfirmationsAutoResolved int       `json:"confirmations_auto_resolved"`
	EarningsCreated           int       `json:"earnings_created"`
	FeeChargesCreated         int       `json:"fee_charges_created"`
	ChargesSucceeded          int       `json:"charges_succeeded"`
	ChargesFailed             int       `json:"charges_failed"`
	ChargesSkipped            int       `json:"charges_skipped"`
	ChargesRequeued           int       `json:"charges_requeued"`
	DurationMillis            int64     `json:"duration_millis"`
	Success                   bool      `json:"success"`
	Errors                    []string  `json:"errors"`
}

// RunScheduledPaymentProcessing executes one full payment processing pass.
// The reference instant is captured once at run start so every step sees the
// same asOf. Each step's error is recorded individually; later steps still
// run against whatever state exists. The result is always returned, never an
// error: callers get partial statistics even when everything fails.
func (s *Service) RunScheduledPaymentProcessing(ctx context.Context) *ScheduledRunResult {
	started := time.Now().UTC()
	asOf := started

	result := &ScheduledRunResult{
		RunID:     uuid.NewString(),
		StartedAt: started,
		Errors:    []string{},
	}

	s.logger.Info("starting scheduled payment processing", "run_id", result.RunID, "as_of", asOf)

	if count, err := s.CreatePendingConfirmations(ctx, asOf); err != nil {
		s.recordStepError(result, "create_pending_confirmations", err)
	} else {
		result.ConfirmationsCreated = count
	}

	if count, err := s.AutoResolveExpired(ctx, asOf); err != nil {
		s.recordStepError(result, "auto_resolve_expired", err)
	} else {
		result.ConfirmationsAutoResolved = count
	}

	if count, err := s.CreateEarningsForConfirmed(ctx, asOf); err != nil {
		s.recordStepError(result, "create_earnings_for_confirmed", err)
	} else {
		result.EarningsCreated = count
	}

	if count, err := s.CreateFeeCharges(ctx, asOf); err != nil {
		s.recordStepError(result, "create_fee_charges", err)
	} else {
		result.FeeChargesCreated = count
	}

	if chargeResult, err := s.ProcessPendingCharges(ctx); err != nil {
		s.recordStepError(result, "process_pending_charges", err)
	} else {
		result.ChargesSucceeded = chargeResult.Succeeded
		result.ChargesFailed = chargeResult.Failed
		result.ChargesSkipped = chargeResult.Skipped
	}

	if count, err := s.RetryFailedCharges(ctx, asOf); err != nil {
		s.recordStepError(result, "retry_failed_charges", err)
	} else {
		result.ChargesRequeued = count
	}

	result.DurationMillis = time.Since(started).Milliseconds()
	result.Success = len(result.Errors) == 0

	s.logger.Info("scheduled payment processing finished",
		"run_id", result.RunID,
		"success", result.Success,
		"confirmations_created", result.ConfirmationsCreated,
		"confirmations_auto_resolved", result.ConfirmationsAutoResolved,
		"earnings_created", result.EarningsCreated,
		"fee_charges_created", result.FeeChargesCreated,
		"charges_succeeded", result.ChargesSucceeded,
		"charges_failed", result.ChargesFailed,
		"duration_ms", result.DurationMillis,
	)

	return result
}

func (s *Service) recordStepError(result *ScheduledRunResult, step string, err error) {
	s.logger.Error("payment processing step failed", "run_id", result.RunID, "step", step, "error", err)
	result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", step, err))
}

/**
 * @description
 * Read-only health checks over the payment state machines.
 */
package app

import (
	"context"
	"time"
)

// HealthReport summarizes the payment system's current anomalies without
// mutating any state.
type HealthReport struct {
	CheckedAt                   time.Time `json:"checked_at"`
	StuckProcessingCharges      int64     `json:"stuck_processing_charges"`
	OverduePendingConfirmations int64     `json:"overdue_pending_confirmations"`
	Healthy                     bool      `json:"healthy"`
	Errors                      []string  `json:"errors"`
}

// CheckPaymentSystemHealth counts charges stuck in processing past the stuck
// threshold and pending confirmations past their resolution deadline. Stuck
// processing charges indicate a run that died mid-attempt; the reclaim job
// resets them to retrying.
func (s *Service) CheckPaymentSystemHealth(ctx context.Context) *HealthReport {
	now := time.Now().UTC()
	report := &HealthReport{CheckedAt: now, Errors: []string{}}

	stuck, err := s.repo.CountStuckProcessingCharges(ctx, now.Add(-s.policies.StuckProcessingThreshold))
	if err != nil {
		s.logger.Error("health check failed to count stuck charges", "error", err)
		report.Errors = append(report.Errors, "stuck_processing_charges: "+err.Error())
	} else {
		report.StuckProcessingCharges = stuck
	}

	overdue, err := s.repo.CountOverduePendingConfirmations(ctx, now)
	if err != nil {
		s.logger.Error("health check failed to count overdue confirmations", "error", err)
		report.Errors = append(report.Errors, "overdue_pending_confirmations: "+err.Error())
	} else {
		report.OverduePendingConfirmations = overdue
	}

	report.Healthy = len(report.Errors) == 0 && report.StuckProcessingCharges == 0

	return report
}

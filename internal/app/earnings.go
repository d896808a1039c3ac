/**
 * @description
 * Earnings aggregation: one earning per resolved confirmation, with the
 * platform fee computed by the injected fee policy.
 */
package app

import (
	"context"
	"time"

	"github.com/bookline/payments-service/internal/domain"
)

// CreateEarningsForConfirmed creates an earning for every confirmed or
// auto-resolved confirmation that has none yet. Gross comes from the session
// rate (or the default rate when unset), the platform fee from the fee
// policy, and net is gross minus fee, so gross = net + fee always holds.
// Idempotent on confirmation id.
func (s *Service) CreateEarningsForConfirmed(ctx context.Context, asOf time.Time) (int, error) {
	sources, err := s.repo.ListConfirmationsAwaitingEarnings(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, src := range sources {
		gross := s.policies.DefaultSessionRate
		if src.SessionRate != nil && *src.SessionRate > 0 {
			gross = *src.SessionRate
		}
		fee := s.policies.FeePolicy(src.ProfessionalID, gross)
		if fee < 0 || fee > gross {
			s.logger.Error("fee policy produced an invalid fee, skipping record",
				"confirmation_id", src.ConfirmationID, "gross", gross, "fee", fee)
			continue
		}

		earning := domain.Earning{
			ConfirmationID:    src.ConfirmationID,
			SessionID:         src.SessionID,
			ProfessionalID:    src.ProfessionalID,
			CycleStart:        src.CycleStart,
			GrossAmount:       gross,
			PlatformFeeAmount: fee,
			NetAmount:         gross - fee,
			Status:            domain.EarningPendingCharge,
		}

		inserted, err := s.repo.InsertEarning(ctx, earning)
		if err != nil {
			s.logger.Error("failed to create earning", "confirmation_id", src.ConfirmationID, "error", err)
			continue
		}
		if inserted {
			created++
		}
	}

	return created, nil
}

// EarningsForCycle returns a professional's earnings for one cycle. Used for
// both admin reporting and the professional-facing dashboard; auto-resolved
// and explicitly confirmed earnings are returned as stored, the caller
// decides how to render the distinction.
func (s *Service) EarningsForCycle(ctx context.Context, cycleStart time.Time, professionalID string) ([]domain.Earning, error) {
	return s.repo.ListEarningsForCycle(ctx, cycleStart.UTC(), professionalID)
}

/**
 * @description
 * Confirmation management: turning completed sessions into pending
 * confirmations and auto-resolving the ones nobody acted on by the deadline.
 */
package app

import (
	"context"
	"time"

	"github.com/bookline/payments-service/internal/domain"
)

// CreatePendingConfirmations creates one pending confirmation for every
// completed session that has ended as of the given instant and has none yet.
// The resolution deadline is the cutoff of the cycle containing the session's
// end time. Safe to invoke repeatedly; a session that already has a
// confirmation is a no-op. A single bad record is logged and skipped.
func (s *Service) CreatePendingConfirmations(ctx context.Context, asOf time.Time) (int, error) {
	sessions, err := s.repo.ListSessionsAwaitingConfirmation(ctx, asOf)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, session := range sessions {
		cycle := domain.CycleContaining(session.EndTime)
		confirmation := domain.Confirmation{
			SessionID:          session.ID,
			ProfessionalID:     session.ProfessionalID,
			State:              domain.ConfirmationPending,
			CycleStart:         cycle.Start,
			ResolutionDeadline: cycle.Cutoff,
		}

		inserted, err := s.repo.InsertConfirmation(ctx, confirmation)
		if err != nil {
			s.logger.Error("failed to create confirmation", "session_id", session.ID, "error", err)
			continue
		}
		if inserted {
			created++
		}
	}

	return created, nil
}

// AutoResolveExpired transitions pending confirmations whose resolution
// deadline has passed to auto_resolved. Silence is treated as implicit
// confirmation; disputes require explicit action before the deadline.
func (s *Service) AutoResolveExpired(ctx context.Context, asOf time.Time) (int, error) {
	resolved, err := s.repo.AutoResolveExpiredConfirmations(ctx, asOf)
	if err != nil {
		return 0, err
	}

	for _, confirmation := range resolved {
		s.publishEvent(ctx, "payments.confirmation.auto_resolved", confirmation)
	}

	return len(resolved), nil
}

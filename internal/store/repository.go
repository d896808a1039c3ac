/**
 * @description
 * Data access layer for the payments service. All idempotent creates rely on
 * unique constraints (confirmations.session_id, earnings.confirmation_id,
 * fee_charges (professional_id, cycle_start)) with ON CONFLICT DO NOTHING,
 * and all status transitions that gate gateway calls are conditional updates,
 * so concurrent runs cannot double-create or double-charge.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookline/payments-service/internal/domain"
)

var (
	ErrChargeNotFound       = errors.New("fee charge not found")
	ErrProfessionalNotFound = errors.New("professional not found")
)

// Repository handles database operations for the payment engine.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfirmation(row rowScanner) (domain.Confirmation, error) {
	var c domain.Confirmation
	err := row.Scan(
		&c.ID,
		&c.SessionID,
		&c.ProfessionalID,
		&c.State,
		&c.CycleStart,
		&c.ResolutionDeadline,
		&c.ResolvedAt,
		&c.CreatedAt,
	)
	return c, err
}

func scanEarning(row rowScanner) (domain.Earning, error) {
	var e domain.Earning
	err := row.Scan(
		&e.ID,
		&e.ConfirmationID,
		&e.SessionID,
		&e.ProfessionalID,
		&e.CycleStart,
		&e.GrossAmount,
		&e.PlatformFeeAmount,
		&e.NetAmount,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

func scanFeeCharge(row rowScanner) (domain.FeeCharge, error) {
	var c domain.FeeCharge
	err := row.Scan(
		&c.ID,
		&c.ProfessionalID,
		&c.CycleStart,
		&c.TotalFeeAmount,
		&c.Currency,
		&c.Status,
		&c.AttemptCount,
		&c.LastAttemptAt,
		&c.LastError,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

const feeChargeColumns = `id, professional_id, cycle_start, total_fee_amount, currency, status,
		       attempt_count, last_attempt_at, last_error, created_at, updated_at`

const confirmationColumns = `id, session_id, professional_id, state, cycle_start,
		       resolution_deadline, resolved_at, created_at`

const earningColumns = `id, confirmation_id, session_id, professional_id, cycle_start,
		       gross_amount, platform_fee_amount, net_amount, status, created_at, updated_at`

// FindProfessionalIDByAuthSubject resolves the internal professional id from
// the subject claim of an access token.
func (r *Repository) FindProfessionalIDByAuthSubject(ctx context.Context, subject string) (string, error) {
	var id string
	err := r.db.QueryRow(ctx, "SELECT id FROM professionals WHERE auth_subject = $1", subject).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrProfessionalNotFound
		}
		return "", err
	}
	return id, nil
}

// ListSessionsAwaitingConfirmation returns completed sessions that have ended
// as of the given instant and do not yet have a confirmation.
func (r *Repository) ListSessionsAwaitingConfirmation(ctx context.Context, asOf time.Time) ([]domain.AppointmentSession, error) {
	query := `
		SELECT id, professional_id, client_id, start_time, end_time, rate_amount, completed, created_at
		FROM appointment_sessions s
		WHERE s.completed = TRUE
		  AND s.end_time <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM confirmations WHERE session_id = s.id
		  )
		ORDER BY s.end_time ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.AppointmentSession
	for rows.Next() {
		var s domain.AppointmentSession
		if err := rows.Scan(
			&s.ID,
			&s.ProfessionalID,
			&s.ClientID,
			&s.StartTime,
			&s.EndTime,
			&s.RateAmount,
			&s.Completed,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// InsertConfirmation creates a pending confirmation for a session. The unique
// constraint on session_id makes re-runs a no-op; the returned bool reports
// whether a row was actually created.
func (r *Repository) InsertConfirmation(ctx context.Context, c domain.Confirmation) (bool, error) {
	query := `
		INSERT INTO confirmations (session_id, professional_id, state, cycle_start, resolution_deadline)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, c.SessionID, c.ProfessionalID, c.State, c.CycleStart, c.ResolutionDeadline)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// AutoResolveExpiredConfirmations moves pending confirmations whose deadline
// has passed to auto_resolved and returns the transitioned rows.
func (r *Repository) AutoResolveExpiredConfirmations(ctx context.Context, asOf time.Time) ([]domain.Confirmation, error) {
	query := `
		UPDATE confirmations
		SET state = 'auto_resolved',
		    resolved_at = $1
		WHERE state = 'pending'
		  AND resolution_deadline <= $1
		RETURNING ` + confirmationColumns
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var confirmations []domain.Confirmation
	for rows.Next() {
		c, err := scanConfirmation(rows)
		if err != nil {
			return nil, err
		}
		confirmations = append(confirmations, c)
	}

	return confirmations, rows.Err()
}

// ListConfirmationsAwaitingEarnings returns resolved confirmations (confirmed
// or auto_resolved) that have no earning yet, joined with the session rate.
func (r *Repository) ListConfirmationsAwaitingEarnings(ctx context.Context) ([]domain.EarningSource, error) {
	query := `
		SELECT c.id, c.session_id, c.professional_id, c.cycle_start, s.rate_amount
		FROM confirmations c
		JOIN appointment_sessions s ON s.id = c.session_id
		WHERE c.state IN ('confirmed', 'auto_resolved')
		  AND NOT EXISTS (
			SELECT 1 FROM earnings WHERE confirmation_id = c.id
		  )
		ORDER BY c.cycle_start ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []domain.EarningSource
	for rows.Next() {
		var src domain.EarningSource
		if err := rows.Scan(
			&src.ConfirmationID,
			&src.SessionID,
			&src.ProfessionalID,
			&src.CycleStart,
			&src.SessionRate,
		); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	return sources, rows.Err()
}

// InsertEarning creates an earning for a resolved confirmation. Idempotent on
// confirmation_id.
func (r *Repository) InsertEarning(ctx context.Context, e domain.Earning) (bool, error) {
	query := `
		INSERT INTO earnings (
			confirmation_id, session_id, professional_id, cycle_start,
			gross_amount, platform_fee_amount, net_amount, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (confirmation_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		e.ConfirmationID, e.SessionID, e.ProfessionalID, e.CycleStart,
		e.GrossAmount, e.PlatformFeeAmount, e.NetAmount, e.Status,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListEarningsForCycle returns all earnings for a professional in one cycle.
func (r *Repository) ListEarningsForCycle(ctx context.Context, cycleStart time.Time, professionalID string) ([]domain.Earning, error) {
	query := `
		SELECT ` + earningColumns + `
		FROM earnings
		WHERE cycle_start = $1
		  AND professional_id = $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, cycleStart, professionalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []domain.Earning
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, err
		}
		earnings = append(earnings, e)
	}

	return earnings, rows.Err()
}

// ListChargeableEarningGroups aggregates pending-charge earnings by
// (professional, cycle) for cycles starting at or before the given bound,
// skipping pairs that already have a fee charge.
func (r *Repository) ListChargeableEarningGroups(ctx context.Context, latestCycleStart time.Time) ([]domain.EarningGroup, error) {
	query := `
		SELECT e.professional_id, e.cycle_start, SUM(e.platform_fee_amount), COUNT(*)
		FROM earnings e
		WHERE e.status = 'pending_charge'
		  AND e.cycle_start <= $1
		  AND NOT EXISTS (
			SELECT 1 FROM fee_charges f
			WHERE f.professional_id = e.professional_id
			  AND f.cycle_start = e.cycle_start
		  )
		GROUP BY e.professional_id, e.cycle_start
		ORDER BY e.cycle_start ASC
	`
	rows, err := r.db.Query(ctx, query, latestCycleStart)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []domain.EarningGroup
	for rows.Next() {
		var g domain.EarningGroup
		if err := rows.Scan(&g.ProfessionalID, &g.CycleStart, &g.TotalFeeAmount, &g.EarningCount); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	return groups, rows.Err()
}

// InsertFeeCharge creates a fee charge for a (professional, cycle) pair. The
// unique constraint on the pair keeps it to at most one regardless of how
// many runs race here.
func (r *Repository) InsertFeeCharge(ctx context.Context, c domain.FeeCharge) (bool, error) {
	query := `
		INSERT INTO fee_charges (professional_id, cycle_start, total_fee_amount, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (professional_id, cycle_start) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, c.ProfessionalID, c.CycleStart, c.TotalFeeAmount, c.Currency, c.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetFeeCharge retrieves a specific fee charge.
func (r *Repository) GetFeeCharge(ctx context.Context, chargeID string) (*domain.FeeCharge, error) {
	query := `SELECT ` + feeChargeColumns + ` FROM fee_charges WHERE id = $1`
	c, err := scanFeeCharge(r.db.QueryRow(ctx, query, chargeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrChargeNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListDueFeeCharges returns charges awaiting a collection attempt.
func (r *Repository) ListDueFeeCharges(ctx context.Context) ([]domain.FeeCharge, error) {
	query := `
		SELECT ` + feeChargeColumns + `
		FROM fee_charges
		WHERE status = 'pending'
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []domain.FeeCharge
	for rows.Next() {
		c, err := scanFeeCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}

	return charges, rows.Err()
}

// ListRecentFeeCharges returns a professional's most recent fee charges.
func (r *Repository) ListRecentFeeCharges(ctx context.Context, professionalID string, limit int) ([]domain.FeeCharge, error) {
	query := `
		SELECT ` + feeChargeColumns + `
		FROM fee_charges
		WHERE professional_id = $1
		ORDER BY cycle_start DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, professionalID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []domain.FeeCharge
	for rows.Next() {
		c, err := scanFeeCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}

	return charges, rows.Err()
}

// ClaimFeeCharge atomically transitions a pending charge to processing and
// increments its attempt count. Returns nil when another run already claimed
// the charge or it is no longer pending; only the caller that gets a row back
// may call the payment gateway.
func (r *Repository) ClaimFeeCharge(ctx context.Context, chargeID string, attemptAt time.Time) (*domain.FeeCharge, error) {
	query := `
		UPDATE fee_charges
		SET status = 'processing',
		    attempt_count = attempt_count + 1,
		    last_attempt_at = $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND status = 'pending'
		RETURNING ` + feeChargeColumns
	c, err := scanFeeCharge(r.db.QueryRow(ctx, query, attemptAt, chargeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// InsertFeeChargeAttempt writes an audit record for a collection attempt.
func (r *Repository) InsertFeeChargeAttempt(ctx context.Context, chargeID string, amount int64, status string, failureReason, gatewayRef *string) error {
	query := `
		INSERT INTO fee_charge_attempts (fee_charge_id, amount, status, failure_reason, gateway_reference)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, chargeID, amount, status, failureReason, gatewayRef)
	return err
}

// MarkFeeChargeSucceeded finalizes a successful collection.
func (r *Repository) MarkFeeChargeSucceeded(ctx context.Context, chargeID string, at time.Time) error {
	query := `
		UPDATE fee_charges
		SET status = 'succeeded',
		    last_error = NULL,
		    updated_at = $2
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, chargeID, at)
	return err
}

// MarkFeeChargeRetrying records a failed attempt that still has retries left.
func (r *Repository) MarkFeeChargeRetrying(ctx context.Context, chargeID string, reason string) error {
	query := `
		UPDATE fee_charges
		SET status = 'retrying',
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, chargeID, reason)
	return err
}

// MarkFeeChargeFailed records a terminally failed charge.
func (r *Repository) MarkFeeChargeFailed(ctx context.Context, chargeID string, reason string) error {
	query := `
		UPDATE fee_charges
		SET status = 'failed',
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, chargeID, reason)
	return err
}

// UpdateEarningsStatus moves all of a (professional, cycle) pair's earnings
// from one status to another, returning the number updated.
func (r *Repository) UpdateEarningsStatus(ctx context.Context, professionalID string, cycleStart time.Time, from, to string) (int64, error) {
	query := `
		UPDATE earnings
		SET status = $4,
		    updated_at = NOW()
		WHERE professional_id = $1
		  AND cycle_start = $2
		  AND status = $3
	`
	tag, err := r.db.Exec(ctx, query, professionalID, cycleStart, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RequeueRetryingCharges moves retrying charges whose last attempt is older
// than the backoff window back to pending, returning the number re-queued.
func (r *Repository) RequeueRetryingCharges(ctx context.Context, attemptedBefore time.Time) (int64, error) {
	query := `
		UPDATE fee_charges
		SET status = 'pending',
		    updated_at = NOW()
		WHERE status = 'retrying'
		  AND (last_attempt_at IS NULL OR last_attempt_at <= $1)
	`
	tag, err := r.db.Exec(ctx, query, attemptedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReclaimStuckCharges resets charges left in processing past the stuck
// threshold (an unclean shutdown mid-attempt) back to retrying.
func (r *Repository) ReclaimStuckCharges(ctx context.Context, stuckBefore time.Time) ([]domain.FeeCharge, error) {
	query := `
		UPDATE fee_charges
		SET status = 'retrying',
		    last_error = COALESCE(last_error, 'reclaimed from stuck processing state'),
		    updated_at = NOW()
		WHERE status = 'processing'
		  AND last_attempt_at <= $1
		RETURNING ` + feeChargeColumns
	rows, err := r.db.Query(ctx, query, stuckBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []domain.FeeCharge
	for rows.Next() {
		c, err := scanFeeCharge(rows)
		if err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}

	return charges, rows.Err()
}

// CountStuckProcessingCharges counts charges sitting in processing since
// before the given instant.
func (r *Repository) CountStuckProcessingCharges(ctx context.Context, stuckBefore time.Time) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*)
		FROM fee_charges
		WHERE status = 'processing'
		  AND last_attempt_at <= $1
	`
	if err := r.db.QueryRow(ctx, query, stuckBefore).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountOverduePendingConfirmations counts pending confirmations whose
// resolution deadline has already passed.
func (r *Repository) CountOverduePendingConfirmations(ctx context.Context, asOf time.Time) (int64, error) {
	var count int64
	query := `
		SELECT COUNT(*)
		FROM confirmations
		WHERE state = 'pending'
		  AND resolution_deadline <= $1
	`
	if err := r.db.QueryRow(ctx, query, asOf).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

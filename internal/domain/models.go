/**
 * @description
 * Domain models for the payment cycle and payout reconciliation engine.
 */
package domain

import "time"

// Confirmation states.
const (
	ConfirmationPending      = "pending"
	ConfirmationConfirmed    = "confirmed"
	ConfirmationDisputed     = "disputed"
	ConfirmationAutoResolved = "auto_resolved"
)

// Earning statuses.
const (
	EarningPendingCharge = "pending_charge"
	EarningCharged       = "charged"
	EarningFailed        = "failed"
)

// Fee charge statuses.
const (
	FeeChargePending    = "pending"
	FeeChargeProcessing = "processing"
	FeeChargeSucceeded  = "succeeded"
	FeeChargeFailed     = "failed"
	FeeChargeRetrying   = "retrying"
)

// AppointmentSession is a booked session owned by the booking subsystem.
// The payment engine only reads it; RateAmount is in cents and may be nil
// when the professional has no rate on file.
type AppointmentSession struct {
	ID             string    `json:"id"`
	ProfessionalID string    `json:"professional_id"`
	ClientID       string    `json:"client_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	RateAmount     *int64    `json:"rate_amount,omitempty"`
	Completed      bool      `json:"completed"`
	CreatedAt      time.Time `json:"created_at"`
}

// Confirmation is a professional's (or the system's) attestation that a
// session occurred. Exactly one exists per session; the resolution deadline
// is the cutoff of the cycle containing the session's end time.
type Confirmation struct {
	ID                 string     `json:"id"`
	SessionID          string     `json:"session_id"`
	ProfessionalID     string     `json:"professional_id"`
	State              string     `json:"state"`
	CycleStart         time.Time  `json:"cycle_start"`
	ResolutionDeadline time.Time  `json:"resolution_deadline"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Earning is the per-session financial record derived from a resolved
// confirmation. Amounts are in cents; Gross = Net + PlatformFee always.
type Earning struct {
	ID                string    `json:"id"`
	ConfirmationID    string    `json:"confirmation_id"`
	SessionID         string    `json:"session_id"`
	ProfessionalID    string    `json:"professional_id"`
	CycleStart        time.Time `json:"cycle_start"`
	GrossAmount       int64     `json:"gross_amount"`
	PlatformFeeAmount int64     `json:"platform_fee_amount"`
	NetAmount         int64     `json:"net_amount"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// EarningSource is the joined row the earnings step consumes: a resolved
// confirmation plus the rate of its session.
type EarningSource struct {
	ConfirmationID string    `json:"confirmation_id"`
	SessionID      string    `json:"session_id"`
	ProfessionalID string    `json:"professional_id"`
	CycleStart     time.Time `json:"cycle_start"`
	SessionRate    *int64    `json:"session_rate,omitempty"`
}

// EarningGroup is a (professional, cycle) aggregation of pending-charge
// earnings, the unit a fee charge is created from.
type EarningGroup struct {
	ProfessionalID string    `json:"professional_id"`
	CycleStart     time.Time `json:"cycle_start"`
	TotalFeeAmount int64     `json:"total_fee_amount"`
	EarningCount   int64     `json:"earning_count"`
}

// FeeCharge aggregates one cycle's platform fees for one professional.
// At most one exists per (professional, cycle) pair.
type FeeCharge struct {
	ID             string     `json:"id"`
	ProfessionalID string     `json:"professional_id"`
	CycleStart     time.Time  `json:"cycle_start"`
	TotalFeeAmount int64      `json:"total_fee_amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	LastError      *string    `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FeeChargeAttempt is an audit record for a single gateway collection attempt.
type FeeChargeAttempt struct {
	ID               string    `json:"id"`
	FeeChargeID      string    `json:"fee_charge_id"`
	AttemptedAt      time.Time `json:"attempted_at"`
	Amount           int64     `json:"amount"`
	Status           string    `json:"status"`
	FailureReason    *string   `json:"failure_reason,omitempty"`
	GatewayReference *string   `json:"gateway_reference,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

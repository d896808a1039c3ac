/**
 * @description
 * Core business logic for the payment cycle engine. The service sequences
 * confirmation creation, auto-resolution, earnings aggregation and fee charge
 * collection against an injected repository, payment gateway and event
 * publisher.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/bookline/payments-service/internal/domain"
)

// Repository defines the database operations the service needs.
type Repository interface {
	FindProfessionalIDByAuthSubject(ctx context.Context, subject string) (string, error)

	ListSessionsAwaitingConfirmation(ctx context.Context, asOf time.Time) ([]domain.AppointmentSession, error)
	InsertConfirmation(ctx context.Context, c domain.Confirmation) (bool, error)
	AutoResolveExpiredConfirmations(ctx context.Context, asOf time.Time) ([]domain.Confirmation, error)

	ListConfirmationsAwaitingEarnings(ctx context.Context) ([]domain.EarningSource, error)
	InsertEarning(ctx context.Context, e domain.Earning) (bool, error)
	ListEarningsForCycle(ctx context.Context, cycleStart time.Time, professionalID string) ([]domain.Earning, error)
	UpdateEarningsStatus(ctx context.Context, professionalID string, cycleStart time.Time, from, to string) (int64, error)

	ListChargeableEarningGroups(ctx context.Context, latestCycleStart time.Time) ([]domain.EarningGroup, error)
	InsertFeeCharge(ctx context.Context, c domain.FeeCharge) (bool, error)
	GetFeeCharge(ctx context.Context, chargeID string) (*domain.FeeCharge, error)
	ListDueFeeCharges(ctx context.Context) ([]domain.FeeCharge, error)
	ListRecentFeeCharges(ctx context.Context, professionalID string, limit int) ([]domain.FeeCharge, error)
	ClaimFeeCharge(ctx context.Context, chargeID string, attemptAt time.Time) (*domain.FeeCharge, error)
	InsertFeeChargeAttempt(ctx context.Context, chargeID string, amount int64, status string, failureReason, gatewayRef *string) error
	MarkFeeChargeSucceeded(ctx context.Context, chargeID string, at time.Time) error
	MarkFeeChargeRetrying(ctx context.Context, chargeID string, reason string) error
	MarkFeeChargeFailed(ctx context.Context, chargeID string, reason string) error
	RequeueRetryingCharges(ctx context.Context, attemptedBefore time.Time) (int64, error)
	ReclaimStuckCharges(ctx context.Context, stuckBefore time.Time) ([]domain.FeeCharge, error)

	CountStuckProcessingCharges(ctx context.Context, stuckBefore time.Time) (int64, error)
	CountOverduePendingConfirmations(ctx context.Context, asOf time.Time) (int64, error)
}

// PaymentGateway defines the interface for collecting platform fees from a
// professional's on-file payment method.
type PaymentGateway interface {
	Collect(ctx context.Context, professionalID string, amount int64, chargeID string) (string, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// FeePolicy computes the platform fee in cents for a gross amount. The fee
// schedule is a business-policy input, not hardcoded here.
type FeePolicy func(professionalID string, gross int64) int64

// FlatPercentPolicy returns a FeePolicy charging a flat percentage of gross,
// rounded down to the cent.
func FlatPercentPolicy(percent int64) FeePolicy {
	return func(professionalID string, gross int64) int64 {
		return gross * percent / 100
	}
}

// Policies bundles the tunable business inputs of the engine.
type Policies struct {
	FeePolicy                FeePolicy
	DefaultSessionRate       int64
	MaxChargeAttempts        int
	RetryBackoff             time.Duration
	StuckProcessingThreshold time.Duration
}

// Service provides the business logic for the payment cycle engine.
type Service struct {
	repo      Repository
	gateway   PaymentGateway
	publisher EventPublisher
	logger    *slog.Logger
	policies  Policies
}

// EventExchange is the topic exchange all payment events are published to.
const EventExchange = "bookline.events"

// NewService creates a new payment engine service.
func NewService(repo Repository, gateway PaymentGateway, publisher EventPublisher, logger *slog.Logger, policies Policies) *Service {
	if policies.FeePolicy == nil {
		policies.FeePolicy = FlatPercentPolicy(15)
	}
	if policies.DefaultSessionRate <= 0 {
		policies.DefaultSessionRate = 5000
	}
	if policies.MaxChargeAttempts < 1 {
		policies.MaxChargeAttempts = 3
	}
	if policies.RetryBackoff <= 0 {
		policies.RetryBackoff = 24 * time.Hour
	}
	if policies.StuckProcessingThreshold <= 0 {
		policies.StuckProcessingThreshold = time.Hour
	}

	return &Service{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		policies:  policies,
	}
}

func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, EventExchange, routingKey, body); err != nil {
		s.logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}

// ProfessionalIDForSubject resolves the professional behind an access token
// subject, for the authenticated read endpoints.
func (s *Service) ProfessionalIDForSubject(ctx context.Context, subject string) (string, error) {
	return s.repo.FindProfessionalIDByAuthSubject(ctx, subject)
}

package billing

import (
	"context"
	"errors"
	"time"
)

// ClaimResult is the outcome of an idempotency claim attempt.
type ClaimResult int

const (
	// ClaimAccepted means this invocation owns the event and must process it.
	ClaimAccepted ClaimResult = iota
	// ClaimDuplicate means the event was already processed (or is being
	// processed concurrently) and no side effects may run.
	ClaimDuplicate
)

// Event ledger statuses.
const (
	EventStatusProcessing = "processing"
	EventStatusDone       = "done"
	EventStatusFailed     = "failed"
)

// ErrEventNotClaimed is returned when a ledger status update matches no row.
// The row is created by ClaimEvent, so a zero-row update is an invariant
// violation, not a recoverable condition.
var ErrEventNotClaimed = errors.New("webhook event has no ledger row")

// SubscriptionRecord is the last known billing truth for one employer,
// keyed by user ID.
type SubscriptionRecord struct {
	UserID               string
	StripeSubscriptionID string
	Status               string
	PriceID              string
	CurrentPeriodEnd     *time.Time
}

// StudentPremiumRecord is the premium access row for one student.
type StudentPremiumRecord struct {
	UserID               string
	Status               StudentPremiumStatus
	StripeSubscriptionID string
	StripeCustomerID     string
	ActiveSince          *time.Time
	CurrentPeriodEnd     *time.Time
	TrialStartedAt       *time.Time
	TrialExpiresAt       *time.Time
}

// EmployerFlags are the employer profile override signals read during
// propagation. ManuallyVerified is never written by this subsystem.
type EmployerFlags struct {
	ManuallyVerified bool
	IsBetaEmployer   bool
}

// Store is the persistence contract for payment-event processing. Each
// operation is individually atomic; no cross-operation transaction is
// assumed, which is why entitlement propagation is a pure recomputation that
// can safely be re-run.
type Store interface {
	// Event ledger. ClaimEvent inserts a processing row keyed by the
	// event ID; a uniqueness conflict on a row in terminal done status is a
	// duplicate, while failed rows are taken over so a processor retry can
	// re-run the handler.
	ClaimEvent(ctx context.Context, eventID, eventType string) (ClaimResult, error)
	MarkEventDone(ctx context.Context, eventID string) error
	MarkEventFailed(ctx context.Context, eventID string) error

	// Customer mapping, so subscription events that only carry a customer
	// ID can be attributed to a user.
	UpsertStripeCustomer(ctx context.Context, userID, stripeCustomerID string) error
	UserIDForStripeCustomer(ctx context.Context, stripeCustomerID string) (string, error)
	StripeCustomerIDForUser(ctx context.Context, userID string) (string, error)

	// Subscription records, upserted keyed by user ID.
	UpsertSubscription(ctx context.Context, rec SubscriptionRecord) error
	GetSubscription(ctx context.Context, userID string) (*SubscriptionRecord, error)
	ListSubscriptions(ctx context.Context) ([]SubscriptionRecord, error)

	// Employer profile + internship fan-out.
	GetEmployerFlags(ctx context.Context, userID string) (EmployerFlags, error)
	SetBetaEmployer(ctx context.Context, userID string, isBeta bool) (bool, error)
	UpdateEmployerEntitlements(ctx context.Context, userID string, verified, emailAlertsEnabled bool) error
	UpdateInternshipVerificationTier(ctx context.Context, employerID string, tier VerificationTier) error

	// Student premium rows, upserted keyed by user ID.
	GetStudentPremium(ctx context.Context, userID string) (*StudentPremiumRecord, error)
	UpsertStudentPremium(ctx context.Context, rec StudentPremiumRecord) error
	ExpireStudentTrial(ctx context.Context, userID string, now time.Time) (bool, error)
	ExpireStudentTrials(ctx context.Context, now time.Time) (int64, error)
}

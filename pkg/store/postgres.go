// Package store provides the PostgreSQL implementation of the billing
// persistence contract. Each operation is a single atomic statement; the
// webhook-event uniqueness constraint is the only mutual exclusion the
// subsystem relies on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/internlink/internlink/pkg/billing"
)

// Postgres implements billing.Store on a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// New creates a new Postgres store
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the tables owned by this subsystem. employer_profiles and
// internships belong to the wider application schema and are not created
// here.
func (s *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS webhook_events (
			event_id   TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			status     TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS stripe_customers (
			user_id            TEXT PRIMARY KEY,
			stripe_customer_id TEXT NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS stripe_customers_customer_idx
			ON stripe_customers (stripe_customer_id)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			user_id                TEXT PRIMARY KEY,
			stripe_subscription_id TEXT NOT NULL,
			status                 TEXT NOT NULL,
			price_id               TEXT,
			current_period_end     TIMESTAMPTZ,
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS student_premium_status (
			user_id                TEXT PRIMARY KEY,
			status                 TEXT NOT NULL,
			stripe_subscription_id TEXT,
			stripe_customer_id     TEXT,
			active_since           TIMESTAMPTZ,
			current_period_end     TIMESTAMPTZ,
			trial_started_at       TIMESTAMPTZ,
			trial_expires_at       TIMESTAMPTZ,
			updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ClaimEvent attempts to take exclusive ownership of an event. The insert
// races on the primary key; a conflicting row is taken over only when it is
// in failed status, so a processor retry after a transient failure re-runs
// the handler while done and in-flight rows stay untouchable.
func (s *Postgres) ClaimEvent(ctx context.Context, eventID, eventType string) (billing.ClaimResult, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events (event_id, event_type, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (event_id) DO UPDATE
		 SET status = $3, updated_at = now()
		 WHERE webhook_events.status = $4`,
		eventID, eventType, billing.EventStatusProcessing, billing.EventStatusFailed)
	if err != nil {
		return billing.ClaimDuplicate, fmt.Errorf("claim event: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return billing.ClaimDuplicate, nil
	}
	return billing.ClaimAccepted, nil
}

// MarkEventDone transitions a claimed event to done
func (s *Postgres) MarkEventDone(ctx context.Context, eventID string) error {
	return s.markEvent(ctx, eventID, billing.EventStatusDone)
}

// MarkEventFailed transitions a claimed event to failed
func (s *Postgres) MarkEventFailed(ctx context.Context, eventID string) error {
	return s.markEvent(ctx, eventID, billing.EventStatusFailed)
}

func (s *Postgres) markEvent(ctx context.Context, eventID, status string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET status = $2, updated_at = now() WHERE event_id = $1`,
		eventID, status)
	if err != nil {
		return fmt.Errorf("mark event %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrEventNotClaimed
	}
	return nil
}

// UpsertStripeCustomer persists a user<->customer mapping keyed by user ID
func (s *Postgres) UpsertStripeCustomer(ctx context.Context, userID, stripeCustomerID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stripe_customers (user_id, stripe_customer_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id`,
		userID, stripeCustomerID)
	if err != nil {
		return fmt.Errorf("upsert stripe customer: %w", err)
	}
	return nil
}

// UserIDForStripeCustomer returns the mapped user ID, or "" when unmapped
func (s *Postgres) UserIDForStripeCustomer(ctx context.Context, stripeCustomerID string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx,
		`SELECT user_id FROM stripe_customers WHERE stripe_customer_id = $1`,
		stripeCustomerID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup user for customer: %w", err)
	}
	return userID, nil
}

// StripeCustomerIDForUser returns the mapped customer ID, or "" when unmapped
func (s *Postgres) StripeCustomerIDForUser(ctx context.Context, userID string) (string, error) {
	var customerID string
	err := s.pool.QueryRow(ctx,
		`SELECT stripe_customer_id FROM stripe_customers WHERE user_id = $1`,
		userID).Scan(&customerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup customer for user: %w", err)
	}
	return customerID, nil
}

// UpsertSubscription overwrites the last known billing truth for a user
func (s *Postgres) UpsertSubscription(ctx context.Context, rec billing.SubscriptionRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions (user_id, stripe_subscription_id, status, price_id, current_period_end, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			status                 = EXCLUDED.status,
			price_id               = EXCLUDED.price_id,
			current_period_end     = EXCLUDED.current_period_end,
			updated_at             = now()`,
		rec.UserID, rec.StripeSubscriptionID, rec.Status, rec.PriceID, rec.CurrentPeriodEnd)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription returns the subscription record for a user, or nil
func (s *Postgres) GetSubscription(ctx context.Context, userID string) (*billing.SubscriptionRecord, error) {
	rec, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT user_id, stripe_subscription_id, status, COALESCE(price_id, ''), current_period_end
		 FROM subscriptions WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return &rec, nil
}

// ListSubscriptions returns all subscription records, for reconciliation
func (s *Postgres) ListSubscriptions(ctx context.Context) ([]billing.SubscriptionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, stripe_subscription_id, status, COALESCE(price_id, ''), current_period_end
		 FROM subscriptions ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var recs []billing.SubscriptionRecord
	for rows.Next() {
		rec, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func scanSubscription(row pgx.Row) (billing.SubscriptionRecord, error) {
	var rec billing.SubscriptionRecord
	err := row.Scan(&rec.UserID, &rec.StripeSubscriptionID, &rec.Status, &rec.PriceID, &rec.CurrentPeriodEnd)
	return rec, err
}

// GetEmployerFlags reads the override signals from the employer profile.
// A missing profile reads as both flags unset.
func (s *Postgres) GetEmployerFlags(ctx context.Context, userID string) (billing.EmployerFlags, error) {
	var flags billing.EmployerFlags
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(manually_verified, false), COALESCE(is_beta_employer, false)
		 FROM employer_profiles WHERE user_id = $1`,
		userID).Scan(&flags.ManuallyVerified, &flags.IsBetaEmployer)
	if errors.Is(err, pgx.ErrNoRows) {
		return billing.EmployerFlags{}, nil
	}
	if err != nil {
		return billing.EmployerFlags{}, fmt.Errorf("get employer flags: %w", err)
	}
	return flags, nil
}

// SetBetaEmployer toggles the promotional grant. Returns false when no
// profile exists for the user.
func (s *Postgres) SetBetaEmployer(ctx context.Context, userID string, isBeta bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE employer_profiles SET is_beta_employer = $2 WHERE user_id = $1`,
		userID, isBeta)
	if err != nil {
		return false, fmt.Errorf("set beta employer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateEmployerEntitlements writes the derived verified and alert flags
func (s *Postgres) UpdateEmployerEntitlements(ctx context.Context, userID string, verified, emailAlertsEnabled bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE employer_profiles SET verified = $2, email_alerts_enabled = $3 WHERE user_id = $1`,
		userID, verified, emailAlertsEnabled)
	if err != nil {
		return fmt.Errorf("update employer entitlements: %w", err)
	}
	return nil
}

// UpdateInternshipVerificationTier fans the denormalized tier out to every
// internship owned by the employer in one statement, so the write is never
// partially applied.
func (s *Postgres) UpdateInternshipVerificationTier(ctx context.Context, employerID string, tier billing.VerificationTier) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE internships SET employer_verification_tier = $2 WHERE employer_id = $1`,
		employerID, string(tier))
	if err != nil {
		return fmt.Errorf("update internship tiers: %w", err)
	}
	return nil
}

// GetStudentPremium returns the premium row for a student, or nil
func (s *Postgres) GetStudentPremium(ctx context.Context, userID string) (*billing.StudentPremiumRecord, error) {
	var rec billing.StudentPremiumRecord
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, status, COALESCE(stripe_subscription_id, ''), COALESCE(stripe_customer_id, ''),
			active_since, current_period_end, trial_started_at, trial_expires_at
		 FROM student_premium_status WHERE user_id = $1`,
		userID).Scan(&rec.UserID, &rec.Status, &rec.StripeSubscriptionID, &rec.StripeCustomerID,
		&rec.ActiveSince, &rec.CurrentPeriodEnd, &rec.TrialStartedAt, &rec.TrialExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student premium: %w", err)
	}
	return &rec, nil
}

// UpsertStudentPremium overwrites the premium row keyed by user ID
func (s *Postgres) UpsertStudentPremium(ctx context.Context, rec billing.StudentPremiumRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO student_premium_status
			(user_id, status, stripe_subscription_id, stripe_customer_id,
			 active_since, current_period_end, trial_started_at, trial_expires_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, now())
		 ON CONFLICT (user_id) DO UPDATE SET
			status                 = EXCLUDED.status,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_customer_id     = EXCLUDED.stripe_customer_id,
			active_since           = EXCLUDED.active_since,
			current_period_end     = EXCLUDED.current_period_end,
			trial_started_at       = EXCLUDED.trial_started_at,
			trial_expires_at       = EXCLUDED.trial_expires_at,
			updated_at             = now()`,
		rec.UserID, string(rec.Status), rec.StripeSubscriptionID, rec.StripeCustomerID,
		rec.ActiveSince, rec.CurrentPeriodEnd, rec.TrialStartedAt, rec.TrialExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert student premium: %w", err)
	}
	return nil
}

// ExpireStudentTrial conditionally expires one student's lapsed trial.
// Returns false when the row was not a lapsed trial.
func (s *Postgres) ExpireStudentTrial(ctx context.Context, userID string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE student_premium_status
		 SET status = $3, updated_at = now()
		 WHERE user_id = $1 AND status = $4
			AND trial_expires_at IS NOT NULL AND trial_expires_at <= $2`,
		userID, now, string(billing.StudentPremiumExpired), string(billing.StudentPremiumTrial))
	if err != nil {
		return false, fmt.Errorf("expire student trial: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireStudentTrials expires every lapsed trial, for the scheduled sweep
func (s *Postgres) ExpireStudentTrials(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE student_premium_status
		 SET status = $2, updated_at = now()
		 WHERE status = $3 AND trial_expires_at IS NOT NULL AND trial_expires_at <= $1`,
		now, string(billing.StudentPremiumExpired), string(billing.StudentPremiumTrial))
	if err != nil {
		return 0, fmt.Errorf("expire student trials: %w", err)
	}
	return tag.RowsAffected(), nil
}

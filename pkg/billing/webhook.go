package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Event types that mutate entitlements. Everything else is acknowledged
// without touching the ledger.
const (
	eventCheckoutSessionCompleted = "checkout.session.completed"
	eventSubscriptionUpdated      = "customer.subscription.updated"
	eventSubscriptionDeleted      = "customer.subscription.deleted"
)

// ErrSignatureVerification wraps a failed webhook signature check. The
// transport layer must reject these before any ledger row is created.
var ErrSignatureVerification = errors.New("webhook signature verification failed")

// ProcessResult reports how an inbound event was resolved. Duplicate is a
// first-class outcome, distinct from both success and failure: the processor
// must stop retrying on it.
type ProcessResult struct {
	Duplicate bool
	Handled   bool
}

// HandleWebhook verifies the signature over the raw payload and processes the
// resulting event.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (ProcessResult, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.config.WebhookSecret)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}

	return s.ProcessEvent(ctx, event)
}

// ProcessEvent claims the event, dispatches it to the matching handler and
// records the terminal ledger status. Concurrent deliveries of the same event
// ID race on the claim; exactly one wins and the rest short-circuit as
// duplicates without side effects.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) (ProcessResult, error) {
	eventType := string(event.Type)

	var handle func(context.Context, stripe.Event) error
	switch eventType {
	case eventCheckoutSessionCompleted:
		handle = s.handleCheckoutCompleted
	case eventSubscriptionUpdated, eventSubscriptionDeleted:
		handle = s.handleSubscriptionUpdatedOrDeleted
	default:
		s.logger.Debug("Ignoring webhook event", "event_id", event.ID, "type", eventType)
		s.metrics.RecordWebhookEvent(eventType, "ignored")
		return ProcessResult{}, nil
	}

	claim, err := s.store.ClaimEvent(ctx, event.ID, eventType)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("claim event %s: %w", event.ID, err)
	}
	if claim == ClaimDuplicate {
		s.logger.Info("Duplicate webhook event", "event_id", event.ID, "type", eventType)
		s.metrics.RecordWebhookEvent(eventType, "duplicate")
		return ProcessResult{Duplicate: true}, nil
	}

	if err := handle(ctx, event); err != nil {
		if markErr := s.store.MarkEventFailed(ctx, event.ID); markErr != nil {
			s.logger.Error("Failed to mark webhook event failed",
				"event_id", event.ID, "error", markErr)
		}
		s.metrics.RecordWebhookEvent(eventType, "error")
		return ProcessResult{}, fmt.Errorf("handle %s event %s: %w", eventType, event.ID, err)
	}

	if err := s.store.MarkEventDone(ctx, event.ID); err != nil {
		// A row stuck at processing is never re-claimable, so fall back to
		// failed; re-running the handler on redelivery is safe.
		if markErr := s.store.MarkEventFailed(ctx, event.ID); markErr != nil {
			s.logger.Error("Failed to mark webhook event failed",
				"event_id", event.ID, "error", markErr)
		}
		s.metrics.RecordWebhookEvent(eventType, "error")
		return ProcessResult{}, fmt.Errorf("mark event %s done: %w", event.ID, err)
	}

	s.metrics.RecordWebhookEvent(eventType, "processed")
	return ProcessResult{Handled: true}, nil
}

// subscriptionSnapshot is the slice of a Stripe subscription the entitlement
// logic cares about.
type subscriptionSnapshot struct {
	ID               string
	CustomerID       string
	Status           string
	PriceID          string
	PlanKey          string
	CurrentPeriodEnd *time.Time
}

func snapshotSubscription(sub *stripe.Subscription) subscriptionSnapshot {
	snap := subscriptionSnapshot{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		snap.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.Metadata != nil {
		snap.PlanKey = sub.Metadata["plan_key"]
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		snap.CurrentPeriodEnd = &t
	}
	return snap
}

// handleCheckoutCompleted handles checkout.session.completed events. One-time
// payment sessions and sessions that cannot be attributed to a user are safe
// no-ops.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	if sess.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}

	var customerID string
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	userID := ""
	if sess.Metadata != nil {
		userID = sess.Metadata["user_id"]
	}
	if userID == "" {
		userID = sess.ClientReferenceID
	}

	// Persist the user<->customer mapping so later subscription events that
	// only carry a customer ID can still be attributed.
	if userID != "" && customerID != "" {
		if err := s.store.UpsertStripeCustomer(ctx, userID, customerID); err != nil {
			return fmt.Errorf("upsert stripe customer: %w", err)
		}
	}

	if sess.Subscription == nil || sess.Subscription.ID == "" {
		return nil
	}

	// The session's embedded subscription snapshot is not authoritative;
	// checkout completion can race ahead of subscription finalization.
	sub, err := s.retriever.Retrieve(ctx, sess.Subscription.ID)
	if err != nil {
		return fmt.Errorf("retrieve subscription %s: %w", sess.Subscription.ID, err)
	}

	snap := snapshotSubscription(sub)
	if snap.CustomerID == "" {
		snap.CustomerID = customerID
	}
	if snap.PlanKey == "" && sess.Metadata != nil {
		snap.PlanKey = sess.Metadata["plan_key"]
	}

	if userID == "" && snap.CustomerID != "" {
		userID, err = s.store.UserIDForStripeCustomer(ctx, snap.CustomerID)
		if err != nil {
			return fmt.Errorf("resolve user for customer %s: %w", snap.CustomerID, err)
		}
	}
	if userID == "" {
		s.logger.Warn("Checkout session could not be attributed to a user",
			"event_id", event.ID, "session_id", sess.ID)
		return nil
	}

	return s.applySubscription(ctx, userID, snap)
}

// handleSubscriptionUpdatedOrDeleted handles customer.subscription.updated and
// customer.subscription.deleted events. It fires repeatedly over the life of a
// subscription, so every run is a full recomputation from the event's current
// snapshot, never a delta.
func (s *Service) handleSubscriptionUpdatedOrDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	snap := snapshotSubscription(&sub)
	if snap.CustomerID == "" {
		s.logger.Warn("Subscription event without customer", "event_id", event.ID, "subscription_id", snap.ID)
		return nil
	}

	userID, err := s.store.UserIDForStripeCustomer(ctx, snap.CustomerID)
	if err != nil {
		return fmt.Errorf("resolve user for customer %s: %w", snap.CustomerID, err)
	}
	if userID == "" {
		s.logger.Warn("Subscription event for unknown customer",
			"event_id", event.ID, "customer_id", snap.CustomerID)
		return nil
	}

	return s.applySubscription(ctx, userID, snap)
}

// applySubscription routes a subscription snapshot down the student or
// employer path based on the plan_key metadata tag.
func (s *Service) applySubscription(ctx context.Context, userID string, snap subscriptionSnapshot) error {
	if snap.PlanKey == StudentPremiumPlanKey {
		return s.applyStudentSubscription(ctx, userID, snap)
	}
	return s.applyEmployerSubscription(ctx, userID, snap)
}

// applyEmployerSubscription stores the latest billing truth for an employer
// and fans the resolved entitlements out.
func (s *Service) applyEmployerSubscription(ctx context.Context, userID string, snap subscriptionSnapshot) error {
	rec := SubscriptionRecord{
		UserID:               userID,
		StripeSubscriptionID: snap.ID,
		Status:               snap.Status,
		PriceID:              snap.PriceID,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
	}
	if err := s.store.UpsertSubscription(ctx, rec); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	return s.PropagateEmployerEntitlements(ctx, userID, snap.Status, snap.PriceID)
}

// PropagateEmployerEntitlements recomputes and writes all entitlement state
// derived from an employer's billing status: the profile's verified and
// alert flags, and the denormalized verification tier on every internship the
// employer owns. It is a pure function of (status, priceID, profile flags)
// with the store writes as its only side effects, so it can be re-run at any
// time, including from the reconciliation job.
func (s *Service) PropagateEmployerEntitlements(ctx context.Context, userID, status, priceID string) error {
	flags, err := s.store.GetEmployerFlags(ctx, userID)
	if err != nil {
		return fmt.Errorf("get employer flags: %w", err)
	}

	plan := ResolveEmployerPlanID(s.config.Prices, status, priceID)
	tier := ResolveVerificationTier(plan, flags.ManuallyVerified, flags.IsBetaEmployer)
	verified := tier == VerificationPro

	// Alert delivery requires a verified billing status on top of the plan
	// capability. Manually verified or beta employers without an active paid
	// subscription get the visibility boost, not alerts.
	alerts := EmployerPlans[plan].EmailAlertsEnabled && IsVerifiedEmployerStatus(status)

	if err := s.store.UpdateEmployerEntitlements(ctx, userID, verified, alerts); err != nil {
		return fmt.Errorf("update employer profile: %w", err)
	}

	if err := s.store.UpdateInternshipVerificationTier(ctx, userID, tier); err != nil {
		return fmt.Errorf("update internship tiers: %w", err)
	}

	return nil
}

// applyStudentSubscription upserts the student premium row from a
// subscription snapshot. active_since is set only on the transition into
// active; trial fields are carried over untouched.
func (s *Service) applyStudentSubscription(ctx context.Context, userID string, snap subscriptionSnapshot) error {
	existing, err := s.store.GetStudentPremium(ctx, userID)
	if err != nil {
		return fmt.Errorf("get student premium: %w", err)
	}

	status := ResolveStudentPremiumStatus(snap.Status, snap.CurrentPeriodEnd, s.now())

	rec := StudentPremiumRecord{
		UserID:               userID,
		Status:               status,
		StripeSubscriptionID: snap.ID,
		StripeCustomerID:     snap.CustomerID,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
	}
	if existing != nil {
		rec.ActiveSince = existing.ActiveSince
		rec.TrialStartedAt = existing.TrialStartedAt
		rec.TrialExpiresAt = existing.TrialExpiresAt
	}
	if status == StudentPremiumActive && (existing == nil || existing.Status != StudentPremiumActive) {
		now := s.now()
		rec.ActiveSince = &now
	}

	if err := s.store.UpsertStudentPremium(ctx, rec); err != nil {
		return fmt.Errorf("upsert student premium: %w", err)
	}

	return nil
}

// ReconcileEmployer re-runs entitlement propagation for one employer from the
// stored subscription record. Employers without a subscription row still get
// a propagation pass so manual and beta grants reach their internships.
func (s *Service) ReconcileEmployer(ctx context.Context, userID string) error {
	rec, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}

	status, priceID := "", ""
	if rec != nil {
		status, priceID = rec.Status, rec.PriceID
	}

	return s.PropagateEmployerEntitlements(ctx, userID, status, priceID)
}

// ReconcileAllEmployers re-runs propagation for every employer with a stored
// subscription record. Failures are logged and skipped so one bad row does
// not starve the rest.
func (s *Service) ReconcileAllEmployers(ctx context.Context) (int, error) {
	recs, err := s.store.ListSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	reconciled := 0
	for _, rec := range recs {
		if err := s.PropagateEmployerEntitlements(ctx, rec.UserID, rec.Status, rec.PriceID); err != nil {
			s.logger.Error("Failed to reconcile employer entitlements",
				"user_id", rec.UserID, "error", err)
			continue
		}
		reconciled++
	}

	return reconciled, nil
}

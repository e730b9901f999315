package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	billingportalsession "github.com/stripe/stripe-go/v76/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/customer"

	"github.com/internlink/internlink/pkg/models"
)

// getOrCreateCustomer returns the Stripe customer for a user, creating one
// and persisting the mapping on first use.
func (s *Service) getOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	existing, err := s.store.StripeCustomerIDForUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("lookup stripe customer: %w", err)
	}
	if existing != "" {
		return existing, nil
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata("user_id", userID)

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}

	if err := s.store.UpsertStripeCustomer(ctx, userID, cust.ID); err != nil {
		return "", fmt.Errorf("save stripe customer mapping: %w", err)
	}

	return cust.ID, nil
}

// CreateEmployerCheckoutSession creates a checkout session for a paid
// employer plan.
func (s *Service) CreateEmployerCheckoutSession(ctx context.Context, userID, email, tier string) (*models.CheckoutResponse, error) {
	var priceID string
	switch PlanID(tier) {
	case PlanStarter:
		priceID = s.config.Prices.Starter
	case PlanPro:
		priceID = s.config.Prices.Pro
	default:
		return nil, fmt.Errorf("invalid tier: %s", tier)
	}
	if priceID == "" {
		return nil, fmt.Errorf("no price configured for tier %s", tier)
	}

	customerID, err := s.getOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.config.SuccessURL),
		CancelURL:         stripe.String(s.config.CancelURL),
		ClientReferenceID: stripe.String(userID),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &models.CheckoutResponse{
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// CreateStudentCheckoutSession creates a student premium checkout session.
// The plan_key metadata is set on both the session and the subscription so
// webhook processing can route either object down the student path.
func (s *Service) CreateStudentCheckoutSession(ctx context.Context, userID, email string) (*models.CheckoutResponse, error) {
	if s.config.StudentPremiumPriceID == "" {
		return nil, fmt.Errorf("no student premium price configured")
	}

	customerID, err := s.getOrCreateCustomer(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.config.StudentPremiumPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.config.SuccessURL),
		CancelURL:         stripe.String(s.config.CancelURL),
		ClientReferenceID: stripe.String(userID),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id":  userID,
				"plan_key": StudentPremiumPlanKey,
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.AddMetadata("plan_key", StudentPremiumPlanKey)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &models.CheckoutResponse{
		SessionID: sess.ID,
		URL:       sess.URL,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// CreateCustomerPortalSession creates a Stripe billing portal session
func (s *Service) CreateCustomerPortalSession(ctx context.Context, userID, returnURL string) (*models.CustomerPortalResponse, error) {
	customerID, err := s.store.StripeCustomerIDForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup stripe customer: %w", err)
	}
	if customerID == "" {
		return nil, fmt.Errorf("user has no billing account")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := billingportalsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create portal session: %w", err)
	}

	return &models.CustomerPortalResponse{URL: sess.URL}, nil
}

// GetPricing returns the public plan table
func (s *Service) GetPricing() *models.PricingResponse {
	plans := make([]models.PricingPlan, 0, len(EmployerPlans))
	for _, id := range []PlanID{PlanFree, PlanStarter, PlanPro} {
		plan := EmployerPlans[id]
		plans = append(plans, models.PricingPlan{
			ID:                   string(plan.ID),
			Name:                 plan.Name,
			MonthlyPriceCents:    plan.MonthlyPriceCents,
			MaxActiveInternships: plan.MaxActiveInternships,
			EmailAlertsEnabled:   plan.EmailAlertsEnabled,
		})
	}

	return &models.PricingResponse{
		EmployerPlans:            plans,
		StudentPremiumPriceCents: StudentPremiumMonthlyPriceCents,
	}
}

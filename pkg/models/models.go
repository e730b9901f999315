package models

// ErrorResponse is the generic error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SuccessResponse is the generic success envelope
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// WebhookResponse acknowledges a processed (or duplicate) webhook delivery
type WebhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// CheckoutRequest asks for an employer checkout session
type CheckoutRequest struct {
	Tier string `json:"tier" validate:"required,oneof=starter pro"`
}

// CheckoutResponse carries a created checkout session
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	ExpiresAt int64  `json:"expires_at"`
}

// CustomerPortalResponse carries a created billing portal session
type CustomerPortalResponse struct {
	URL string `json:"url"`
}

// BetaEmployerRequest toggles the promotional beta grant on an employer
type BetaEmployerRequest struct {
	EmployerID     string `json:"employer_id" validate:"required"`
	IsBetaEmployer *bool  `json:"is_beta_employer" validate:"required"`
}

// BetaEmployerResponse reports the resulting flag state
type BetaEmployerResponse struct {
	EmployerID     string `json:"employer_id"`
	IsBetaEmployer bool   `json:"is_beta_employer"`
}

// PricingPlan describes one purchasable plan
type PricingPlan struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	MonthlyPriceCents    int64  `json:"monthly_price_cents"`
	MaxActiveInternships int    `json:"max_active_internships"` // -1 = unlimited
	EmailAlertsEnabled   bool   `json:"email_alerts_enabled"`
}

// PricingResponse lists all purchasable plans
type PricingResponse struct {
	EmployerPlans            []PricingPlan `json:"employer_plans"`
	StudentPremiumPriceCents int64         `json:"student_premium_price_cents"`
}

// EntitlementsResponse is the student premium entitlement view
type EntitlementsResponse struct {
	Status             string  `json:"status"`
	IsPremiumActive    bool    `json:"is_premium_active"`
	IsTrial            bool    `json:"is_trial"`
	TrialDaysRemaining int     `json:"trial_days_remaining"`
	TrialExpiresAt     *string `json:"trial_expires_at,omitempty"`
}

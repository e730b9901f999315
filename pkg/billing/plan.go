package billing

import "time"

// PlanID identifies an employer subscription plan, ordered free < starter < pro.
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanStarter PlanID = "starter"
	PlanPro     PlanID = "pro"
)

// UnlimitedInternships marks a plan with no cap on concurrently active listings.
const UnlimitedInternships = -1

// Plan describes the capabilities attached to an employer plan
type Plan struct {
	ID                   PlanID
	Name                 string
	MonthlyPriceCents    int64
	MaxActiveInternships int
	EmailAlertsEnabled   bool
}

// EmployerPlans is the capability table for all employer plans
var EmployerPlans = map[PlanID]Plan{
	PlanFree: {
		ID:                   PlanFree,
		Name:                 "Free",
		MonthlyPriceCents:    0,
		MaxActiveInternships: 1,
		EmailAlertsEnabled:   false,
	},
	PlanStarter: {
		ID:                   PlanStarter,
		Name:                 "Starter",
		MonthlyPriceCents:    2900,
		MaxActiveInternships: 3,
		EmailAlertsEnabled:   true,
	},
	PlanPro: {
		ID:                   PlanPro,
		Name:                 "Pro",
		MonthlyPriceCents:    9900,
		MaxActiveInternships: UnlimitedInternships,
		EmailAlertsEnabled:   true,
	},
}

// PlanPrices maps plan tiers to Stripe price IDs. The legacy entries keep
// subscriptions created before the pricing migration resolving to the right
// tier: the old "growth" price sold what is now pro, and the original
// single-tier verified-employer price maps to starter.
type PlanPrices struct {
	Starter                string
	Pro                    string
	GrowthLegacy           string
	VerifiedEmployerLegacy string
}

// IsVerifiedEmployerStatus reports whether a raw Stripe subscription status
// entitles the employer to paid-tier treatment. Everything outside this set
// (past_due, unpaid, incomplete, canceled, ...) is treated as unverified.
func IsVerifiedEmployerStatus(status string) bool {
	return status == "active" || status == "trialing"
}

// ResolveEmployerPlanID maps a raw subscription status and price ID to a plan
// tier. Status gates whether a paid tier can apply at all; the price ID then
// selects which one.
func ResolveEmployerPlanID(prices PlanPrices, status, priceID string) PlanID {
	if !IsVerifiedEmployerStatus(status) {
		return PlanFree
	}
	if priceID == "" {
		return PlanFree
	}

	switch priceID {
	case prices.Pro, prices.GrowthLegacy:
		return PlanPro
	case prices.Starter, prices.VerifiedEmployerLegacy:
		return PlanStarter
	default:
		return PlanFree
	}
}

// VerificationTier is the binary badge/visibility classification denormalized
// onto internships.
type VerificationTier string

const (
	VerificationFree VerificationTier = "free"
	VerificationPro  VerificationTier = "pro"
)

// ResolveVerificationTier collapses the plan tier plus the two override
// signals into the verified-employer decision. A manual verification or beta
// grant holds even if the underlying subscription lapses; it is only cleared
// by whoever set it.
func ResolveVerificationTier(plan PlanID, manuallyVerified, isBetaEmployer bool) VerificationTier {
	if manuallyVerified || isBetaEmployer || plan == PlanPro {
		return VerificationPro
	}
	return VerificationFree
}

// StudentPremiumPlanKey tags student premium subscriptions in Stripe metadata.
const StudentPremiumPlanKey = "student_premium"

// StudentPremiumMonthlyPriceCents is the student premium monthly price.
const StudentPremiumMonthlyPriceCents = 499

// StudentPremiumStatus is the student-side access classification, independent
// of the employer plan vocabulary.
type StudentPremiumStatus string

const (
	StudentPremiumFree     StudentPremiumStatus = "free"
	StudentPremiumTrial    StudentPremiumStatus = "trial"
	StudentPremiumActive   StudentPremiumStatus = "active"
	StudentPremiumCanceled StudentPremiumStatus = "canceled"
	StudentPremiumExpired  StudentPremiumStatus = "expired"
)

// ResolveStudentPremiumStatus maps a raw subscription status and paid-through
// timestamp to the student premium status. A cancellation keeps access through
// the paid-through date; a missing period end means no grace period, not an
// unknown one.
func ResolveStudentPremiumStatus(rawStatus string, currentPeriodEnd *time.Time, now time.Time) StudentPremiumStatus {
	switch rawStatus {
	case "active", "trialing":
		return StudentPremiumActive
	case "canceled":
		if currentPeriodEnd != nil && currentPeriodEnd.After(now) {
			return StudentPremiumCanceled
		}
		return StudentPremiumExpired
	case "past_due", "unpaid", "incomplete":
		return StudentPremiumCanceled
	default:
		return StudentPremiumExpired
	}
}

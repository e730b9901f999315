package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testPrices = PlanPrices{
	Starter:                "price_starter",
	Pro:                    "price_pro",
	GrowthLegacy:           "price_growth",
	VerifiedEmployerLegacy: "price_verified_employer",
}

func TestIsVerifiedEmployerStatus(t *testing.T) {
	verified := []string{"active", "trialing"}
	for _, status := range verified {
		assert.True(t, IsVerifiedEmployerStatus(status), status)
	}

	unverified := []string{"past_due", "unpaid", "canceled", "incomplete", "incomplete_expired", "paused", ""}
	for _, status := range unverified {
		assert.False(t, IsVerifiedEmployerStatus(status), status)
	}
}

func TestResolveEmployerPlanID(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		priceID string
		want    PlanID
	}{
		{"active starter", "active", "price_starter", PlanStarter},
		{"active pro", "active", "price_pro", PlanPro},
		{"trialing pro", "trialing", "price_pro", PlanPro},
		{"legacy growth price maps to pro", "active", "price_growth", PlanPro},
		{"legacy verified employer price maps to starter", "active", "price_verified_employer", PlanStarter},
		{"past_due loses the tier", "past_due", "price_pro", PlanFree},
		{"canceled loses the tier", "canceled", "price_pro", PlanFree},
		{"unpaid loses the tier", "unpaid", "price_starter", PlanFree},
		{"unknown price resolves to free", "active", "price_something_else", PlanFree},
		{"empty price resolves to free", "active", "", PlanFree},
		{"empty status resolves to free", "", "price_pro", PlanFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveEmployerPlanID(testPrices, tt.status, tt.priceID))
		})
	}
}

func TestResolveEmployerPlanID_Total(t *testing.T) {
	// Resolution never panics or produces an unknown plan, whatever the
	// processor sends.
	statuses := []string{"active", "trialing", "past_due", "canceled", "unpaid", "incomplete", "garbage", ""}
	prices := []string{"price_starter", "price_pro", "price_growth", "price_verified_employer", "price_unknown", ""}

	for _, status := range statuses {
		for _, priceID := range prices {
			plan := ResolveEmployerPlanID(testPrices, status, priceID)
			_, ok := EmployerPlans[plan]
			assert.True(t, ok, "status=%q price=%q resolved to unknown plan %q", status, priceID, plan)
		}
	}
}

func TestResolveVerificationTier(t *testing.T) {
	tests := []struct {
		name             string
		plan             PlanID
		manuallyVerified bool
		isBetaEmployer   bool
		want             VerificationTier
	}{
		{"free plan no overrides", PlanFree, false, false, VerificationFree},
		{"starter plan no overrides", PlanStarter, false, false, VerificationFree},
		{"pro plan", PlanPro, false, false, VerificationPro},
		{"manual verification outranks free plan", PlanFree, true, false, VerificationPro},
		{"beta grant outranks free plan", PlanFree, false, true, VerificationPro},
		{"manual verification on starter", PlanStarter, true, false, VerificationPro},
		{"all signals at once", PlanPro, true, true, VerificationPro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveVerificationTier(tt.plan, tt.manuallyVerified, tt.isBetaEmployer))
		})
	}
}

func TestResolveStudentPremiumStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(10 * 24 * time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name             string
		rawStatus        string
		currentPeriodEnd *time.Time
		want             StudentPremiumStatus
	}{
		{"active", "active", &future, StudentPremiumActive},
		{"trialing counts as active", "trialing", &future, StudentPremiumActive},
		{"canceled with paid-through in the future", "canceled", &future, StudentPremiumCanceled},
		{"canceled past the paid-through date", "canceled", &past, StudentPremiumExpired},
		{"canceled exactly at the paid-through date", "canceled", &now, StudentPremiumExpired},
		{"canceled without a period end", "canceled", nil, StudentPremiumExpired},
		{"past_due keeps grace access", "past_due", &future, StudentPremiumCanceled},
		{"unpaid keeps grace access", "unpaid", &future, StudentPremiumCanceled},
		{"incomplete keeps grace access", "incomplete", nil, StudentPremiumCanceled},
		{"unknown status expires", "incomplete_expired", &future, StudentPremiumExpired},
		{"empty status expires", "", nil, StudentPremiumExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveStudentPremiumStatus(tt.rawStatus, tt.currentPeriodEnd, now))
		})
	}
}

func TestEmployerPlansTable(t *testing.T) {
	assert.Equal(t, 1, EmployerPlans[PlanFree].MaxActiveInternships)
	assert.Equal(t, 3, EmployerPlans[PlanStarter].MaxActiveInternships)
	assert.Equal(t, UnlimitedInternships, EmployerPlans[PlanPro].MaxActiveInternships)

	assert.False(t, EmployerPlans[PlanFree].EmailAlertsEnabled)
	assert.True(t, EmployerPlans[PlanStarter].EmailAlertsEnabled)
	assert.True(t, EmployerPlans[PlanPro].EmailAlertsEnabled)
}

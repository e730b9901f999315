// Package student implements the student premium entitlement read path:
// trial lifecycle plus the access decision derived from the premium status
// row maintained by webhook processing.
package student

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/internlink/internlink/pkg/billing"
	"github.com/internlink/internlink/pkg/cache"
	"github.com/internlink/internlink/pkg/logger"
)

// TrialDuration is the length of the one-time premium trial
const TrialDuration = 7 * 24 * time.Hour

const (
	entitlementsCacheTTL = time.Minute
	cacheKeyPrefix       = "student:entitlements:"
	cacheMetricsType     = "student_entitlements"
)

var (
	// ErrTrialAlreadyUsed means the student has consumed their one trial
	ErrTrialAlreadyUsed = errors.New("trial already used")
	// ErrPremiumAlreadyActive means a trial would be pointless
	ErrPremiumAlreadyActive = errors.New("premium already active")
)

// Store is the slice of the billing store this service needs
type Store interface {
	GetStudentPremium(ctx context.Context, userID string) (*billing.StudentPremiumRecord, error)
	UpsertStudentPremium(ctx context.Context, rec billing.StudentPremiumRecord) error
	ExpireStudentTrial(ctx context.Context, userID string, now time.Time) (bool, error)
	ExpireStudentTrials(ctx context.Context, now time.Time) (int64, error)
}

// CacheMetrics records entitlement cache outcomes. The concrete
// implementation lives in pkg/metrics; a no-op is used when nil is passed.
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

type noopMetrics struct{}

func (noopMetrics) RecordCacheHit(string) {}
func (noopMetrics) RecordCacheMiss(string) {}

// Entitlements is the computed premium access view for one student
type Entitlements struct {
	Status             billing.StudentPremiumStatus `json:"status"`
	IsPremiumActive    bool                         `json:"is_premium_active"`
	IsTrial            bool                         `json:"is_trial"`
	TrialDaysRemaining int                          `json:"trial_days_remaining"`
	TrialExpiresAt     *time.Time                   `json:"trial_expires_at,omitempty"`
}

// Service computes and caches student entitlements
type Service struct {
	store   Store
	cache   *cache.Client
	logger  logger.Logger
	metrics CacheMetrics

	now func() time.Time
}

// NewService creates a new student entitlement service. The cache is
// optional; without it every read goes to the store.
func NewService(store Store, cacheClient *cache.Client, log logger.Logger, m CacheMetrics) *Service {
	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = noopMetrics{}
	}
	return &Service{
		store:   store,
		cache:   cacheClient,
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
}

// Entitlements returns the premium access view for a student, lazily expiring
// a lapsed trial first.
func (s *Service) Entitlements(ctx context.Context, userID string) (Entitlements, error) {
	if cached, ok := s.cachedEntitlements(ctx, userID); ok {
		return cached, nil
	}

	rec, err := s.store.GetStudentPremium(ctx, userID)
	if err != nil {
		return Entitlements{}, fmt.Errorf("get student premium: %w", err)
	}

	now := s.now()
	if rec != nil && rec.Status == billing.StudentPremiumTrial &&
		rec.TrialExpiresAt != nil && !rec.TrialExpiresAt.After(now) {
		expired, err := s.store.ExpireStudentTrial(ctx, userID, now)
		if err != nil {
			return Entitlements{}, fmt.Errorf("expire trial: %w", err)
		}
		if expired {
			rec.Status = billing.StudentPremiumExpired
		}
	}

	ent := s.compute(rec, now)
	s.cacheEntitlements(ctx, userID, ent)
	return ent, nil
}

// StartTrial begins the one-time premium trial. A student who is already
// premium or has used their trial cannot start another.
func (s *Service) StartTrial(ctx context.Context, userID string) (Entitlements, error) {
	rec, err := s.store.GetStudentPremium(ctx, userID)
	if err != nil {
		return Entitlements{}, fmt.Errorf("get student premium: %w", err)
	}

	if rec != nil && rec.Status == billing.StudentPremiumActive {
		return Entitlements{}, ErrPremiumAlreadyActive
	}
	if rec != nil && rec.TrialStartedAt != nil {
		return Entitlements{}, ErrTrialAlreadyUsed
	}

	now := s.now()
	expires := now.Add(TrialDuration)

	updated := billing.StudentPremiumRecord{
		UserID:         userID,
		Status:         billing.StudentPremiumTrial,
		TrialStartedAt: &now,
		TrialExpiresAt: &expires,
	}
	if rec != nil {
		updated.StripeSubscriptionID = rec.StripeSubscriptionID
		updated.StripeCustomerID = rec.StripeCustomerID
		updated.ActiveSince = rec.ActiveSince
		updated.CurrentPeriodEnd = rec.CurrentPeriodEnd
	}

	if err := s.store.UpsertStudentPremium(ctx, updated); err != nil {
		return Entitlements{}, fmt.Errorf("start trial: %w", err)
	}

	s.invalidate(ctx, userID)
	return s.compute(&updated, now), nil
}

// ExpireLapsedTrials expires every trial past its expiry, for the scheduled
// sweep. Per-user cache entries age out on their own TTL.
func (s *Service) ExpireLapsedTrials(ctx context.Context) (int64, error) {
	return s.store.ExpireStudentTrials(ctx, s.now())
}

func (s *Service) compute(rec *billing.StudentPremiumRecord, now time.Time) Entitlements {
	status := billing.StudentPremiumFree
	var trialExpiresAt *time.Time
	if rec != nil {
		status = rec.Status
		trialExpiresAt = rec.TrialExpiresAt
	}

	isTrial := status == billing.StudentPremiumTrial
	isTrialActive := isTrial && trialExpiresAt != nil && trialExpiresAt.After(now)

	ent := Entitlements{
		Status:          status,
		IsPremiumActive: status == billing.StudentPremiumActive || isTrialActive,
		IsTrial:         isTrial,
		TrialExpiresAt:  trialExpiresAt,
	}
	if isTrial && trialExpiresAt != nil {
		remaining := trialExpiresAt.Sub(now)
		if remaining > 0 {
			ent.TrialDaysRemaining = int(math.Ceil(remaining.Hours() / 24))
		}
	}
	return ent
}

func (s *Service) cachedEntitlements(ctx context.Context, userID string) (Entitlements, bool) {
	if s.cache == nil {
		return Entitlements{}, false
	}

	raw, err := s.cache.Get(ctx, cacheKeyPrefix+userID)
	if err != nil {
		s.metrics.RecordCacheMiss(cacheMetricsType)
		return Entitlements{}, false
	}

	var ent Entitlements
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		s.metrics.RecordCacheMiss(cacheMetricsType)
		return Entitlements{}, false
	}
	s.metrics.RecordCacheHit(cacheMetricsType)
	return ent, true
}

func (s *Service) cacheEntitlements(ctx context.Context, userID string, ent Entitlements) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(ent)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyPrefix+userID, raw, entitlementsCacheTTL); err != nil {
		s.logger.Debug("Failed to cache entitlements", "user_id", userID, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyPrefix+userID); err != nil {
		s.logger.Debug("Failed to invalidate entitlements cache", "user_id", userID, "error", err)
	}
}

package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/subscription"

	"github.com/internlink/internlink/pkg/logger"
)

// Service handles Stripe billing operations
type Service struct {
	store     Store
	config    *StripeConfig
	logger    logger.Logger
	metrics   WebhookMetrics
	retriever SubscriptionRetriever

	now func() time.Time
}

// StripeConfig holds Stripe configuration
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string

	Prices                PlanPrices
	StudentPremiumPriceID string

	SuccessURL string
	CancelURL  string
}

// WebhookMetrics records webhook processing outcomes. The concrete
// implementation lives in pkg/metrics; a no-op is used when nil is passed.
type WebhookMetrics interface {
	RecordWebhookEvent(eventType, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RecordWebhookEvent(string, string) {}

// SubscriptionRetriever fetches the authoritative subscription snapshot from
// the payment processor. Checkout-completed payloads can race ahead of
// subscription finalization, so the embedded snapshot is never trusted.
type SubscriptionRetriever interface {
	Retrieve(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

type stripeSubscriptionAPI struct{}

func (stripeSubscriptionAPI) Retrieve(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(subscriptionID, params)
}

// NewService creates a new billing service
func NewService(store Store, config *StripeConfig, log logger.Logger, m WebhookMetrics) *Service {
	stripe.Key = config.SecretKey

	if log == nil {
		log = logger.Default()
	}
	if m == nil {
		m = noopMetrics{}
	}

	return &Service{
		store:     store,
		config:    config,
		logger:    log,
		metrics:   m,
		retriever: stripeSubscriptionAPI{},
		now:       time.Now,
	}
}

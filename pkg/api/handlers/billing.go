package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	apierrors "github.com/internlink/internlink/pkg/api/errors"
	"github.com/internlink/internlink/pkg/billing"
	"github.com/internlink/internlink/pkg/metrics"
	"github.com/internlink/internlink/pkg/middleware"
	"github.com/internlink/internlink/pkg/models"
	"github.com/labstack/echo/v4"
)

// BillingHandler handles billing endpoints
type BillingHandler struct {
	billingService *billing.Service
	metrics        *metrics.Metrics
	validator      *validator.Validate
}

// NewBillingHandler creates a new billing handler
func NewBillingHandler(billingService *billing.Service, m *metrics.Metrics) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		metrics:        m,
		validator:      validator.New(),
	}
}

// validateReturnURL validates and sanitizes return URL to prevent open redirect attacks
// Returns a safe URL from whitelist or default URL if validation fails
func validateReturnURL(returnURL string) string {
	const defaultURL = "https://internlink.io/dashboard/billing"

	if returnURL == "" {
		return defaultURL
	}

	parsed, err := url.Parse(returnURL)
	if err != nil {
		return defaultURL
	}

	// Only allow http and https schemes (prevents javascript:, data:, etc.)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return defaultURL
	}

	// Reject URLs with userinfo (prevents phishing: https://attacker@legitimate.com)
	if parsed.User != nil && parsed.User.String() != "" {
		return defaultURL
	}

	allowedHosts := []string{
		"localhost:3000",    // Development
		"internlink.io",     // Production
		"www.internlink.io", // Production WWW
	}

	for _, allowedHost := range allowedHosts {
		if parsed.Host == allowedHost {
			return returnURL
		}
	}

	return defaultURL
}

// CreateCheckout creates a Stripe checkout session for an employer plan upgrade
func (h *BillingHandler) CreateCheckout(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return apierrors.UnauthorizedError(c, "missing user id")
	}

	var req models.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	session, err := h.billingService.CreateEmployerCheckoutSession(c.Request().Context(), userID, middleware.UserEmail(c), req.Tier)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	h.metrics.RecordCheckoutCreated(req.Tier)
	return c.JSON(http.StatusOK, session)
}

// CreatePortalSession creates a Stripe customer portal session for managing
// subscriptions, payment methods, and billing history
func (h *BillingHandler) CreatePortalSession(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return apierrors.UnauthorizedError(c, "missing user id")
	}

	// Validate return URL (prevents open redirect attacks)
	returnURL := validateReturnURL(c.QueryParam("return_url"))

	portal, err := h.billingService.CreateCustomerPortalSession(c.Request().Context(), userID, returnURL)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, portal)
}

// HandleWebhook processes Stripe webhook events for checkout completion and
// subscription updates
func (h *BillingHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if signature == "" {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "missing_signature",
		})
	}

	result, err := h.billingService.HandleWebhook(c.Request().Context(), body, signature)
	if err != nil {
		if errors.Is(err, billing.ErrSignatureVerification) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "invalid_signature",
			})
		}
		// Non-2xx makes Stripe retry the delivery
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.WebhookResponse{
		Received:  true,
		Duplicate: result.Duplicate,
	})
}

// GetPricing returns all purchasable plans with pricing and limits
func (h *BillingHandler) GetPricing(c echo.Context) error {
	return c.JSON(http.StatusOK, h.billingService.GetPricing())
}

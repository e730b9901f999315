package handlers

import (
	"errors"
	"net/http"
	"time"

	apierrors "github.com/internlink/internlink/pkg/api/errors"
	"github.com/internlink/internlink/pkg/billing"
	"github.com/internlink/internlink/pkg/metrics"
	"github.com/internlink/internlink/pkg/middleware"
	"github.com/internlink/internlink/pkg/models"
	"github.com/internlink/internlink/pkg/student"
	"github.com/labstack/echo/v4"
)

// StudentHandler handles student premium endpoints
type StudentHandler struct {
	studentService *student.Service
	billingService *billing.Service
	metrics        *metrics.Metrics
}

// NewStudentHandler creates a new student handler
func NewStudentHandler(studentService *student.Service, billingService *billing.Service, m *metrics.Metrics) *StudentHandler {
	return &StudentHandler{
		studentService: studentService,
		billingService: billingService,
		metrics:        m,
	}
}

// GetEntitlements returns the premium entitlement view for the current student
func (h *StudentHandler) GetEntitlements(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return apierrors.UnauthorizedError(c, "missing user id")
	}

	ent, err := h.studentService.Entitlements(c.Request().Context(), userID)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, entitlementsResponse(ent))
}

// StartTrial starts the one-time premium trial for the current student
func (h *StudentHandler) StartTrial(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return apierrors.UnauthorizedError(c, "missing user id")
	}

	ent, err := h.studentService.StartTrial(c.Request().Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, student.ErrTrialAlreadyUsed):
			return apierrors.ConflictError(c, "Trial already used")
		case errors.Is(err, student.ErrPremiumAlreadyActive):
			return apierrors.ConflictError(c, "Premium is already active")
		default:
			return apierrors.InternalError(c, err)
		}
	}

	h.metrics.RecordTrialStarted()
	return c.JSON(http.StatusOK, entitlementsResponse(ent))
}

// CreateCheckout creates a Stripe checkout session for student premium
func (h *StudentHandler) CreateCheckout(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return apierrors.UnauthorizedError(c, "missing user id")
	}

	session, err := h.billingService.CreateStudentCheckoutSession(c.Request().Context(), userID, middleware.UserEmail(c))
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	h.metrics.RecordCheckoutCreated(billing.StudentPremiumPlanKey)
	return c.JSON(http.StatusOK, session)
}

func entitlementsResponse(ent student.Entitlements) models.EntitlementsResponse {
	resp := models.EntitlementsResponse{
		Status:             string(ent.Status),
		IsPremiumActive:    ent.IsPremiumActive,
		IsTrial:            ent.IsTrial,
		TrialDaysRemaining: ent.TrialDaysRemaining,
	}
	if ent.TrialExpiresAt != nil {
		s := ent.TrialExpiresAt.Format(time.RFC3339)
		resp.TrialExpiresAt = &s
	}
	return resp
}

package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	apierrors "github.com/internlink/internlink/pkg/api/errors"
	"github.com/internlink/internlink/pkg/billing"
	"github.com/internlink/internlink/pkg/models"
	"github.com/labstack/echo/v4"
)

// AdminHandler handles admin-only billing operations
type AdminHandler struct {
	store          billing.Store
	billingService *billing.Service
	validator      *validator.Validate
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store billing.Store, billingService *billing.Service) *AdminHandler {
	return &AdminHandler{
		store:          store,
		billingService: billingService,
		validator:      validator.New(),
	}
}

// SetBetaEmployer toggles the promotional beta grant on an employer and
// recomputes their entitlements
func (h *AdminHandler) SetBetaEmployer(c echo.Context) error {
	var req models.BetaEmployerRequest
	if err := c.Bind(&req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	if _, err := uuid.Parse(req.EmployerID); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx := c.Request().Context()
	updated, err := h.store.SetBetaEmployer(ctx, req.EmployerID, *req.IsBetaEmployer)
	if err != nil {
		return apierrors.DatabaseError(c, err)
	}
	if !updated {
		return apierrors.NotFoundError(c, "employer")
	}

	// The flag changes the verification tier, so fan the new state out to
	// the profile and listings right away.
	if err := h.billingService.ReconcileEmployer(ctx, req.EmployerID); err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.BetaEmployerResponse{
		EmployerID:     req.EmployerID,
		IsBetaEmployer: *req.IsBetaEmployer,
	})
}

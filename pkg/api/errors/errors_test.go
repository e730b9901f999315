package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/internlink/internlink/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newContext creates an echo.Context backed by an httptest.NewRecorder so
// callers can inspect the written response.
func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// captureLog redirects the standard logger to a buffer for the duration of fn
// and returns everything that was logged.
func captureLog(fn func()) string {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)
	fn()
	return buf.String()
}

func TestValidationError(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/v1/billing/checkout")
	err := ValidationError(c, errors.New("field 'tier' is required"))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := parseBody(t, rec)
	assert.Equal(t, "validation_error", resp.Error)
	assert.NotEmpty(t, resp.Message)
}

func TestValidationError_NoInternalDetails(t *testing.T) {
	internalMsg := "pq: duplicate key value violates unique constraint"
	c, rec := newContext(http.MethodPost, "/api/v1/billing/checkout")
	_ = ValidationError(c, errors.New(internalMsg))

	assert.NotContains(t, rec.Body.String(), internalMsg)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestValidationError_LogsInternalError(t *testing.T) {
	internalMsg := "field validation failed: tier"
	logged := captureLog(func() {
		c, _ := newContext(http.MethodPost, "/api/v1/billing/checkout")
		_ = ValidationError(c, errors.New(internalMsg))
	})

	assert.Contains(t, logged, "[VALIDATION ERROR]")
	assert.Contains(t, logged, internalMsg)
	assert.Contains(t, logged, "/api/v1/billing/checkout")
}

func TestDatabaseError(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/v1/student/premium/entitlements")
	err := DatabaseError(c, errors.New("connection refused"))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := parseBody(t, rec)
	assert.Equal(t, "database_error", resp.Error)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestInternalError(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/v1/webhook/stripe")
	err := InternalError(c, errors.New("stripe: boom"))
	assert.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := parseBody(t, rec)
	assert.Equal(t, "internal_error", resp.Error)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestConflictError_ExposesMessage(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/v1/student/premium/trial")
	err := ConflictError(c, "Trial already used")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusConflict, rec.Code)

	resp := parseBody(t, rec)
	assert.Equal(t, "conflict", resp.Error)
	assert.Equal(t, "Trial already used", resp.Message)
}

func TestUnauthorizedError(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/v1/billing/checkout")
	err := UnauthorizedError(c, "missing identity header")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	resp := parseBody(t, rec)
	assert.Equal(t, "unauthorized", resp.Error)
	assert.NotContains(t, rec.Body.String(), "identity header")
}

func TestForbiddenError(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/v1/admin/employers/beta")
	err := ForbiddenError(c, "role employer is not admin")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", parseBody(t, rec).Error)
}

func TestNotFoundError(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/api/v1/admin/employers/beta")
	err := NotFoundError(c, "employer")
	assert.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", parseBody(t, rec).Error)
}

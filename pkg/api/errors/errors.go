// Package errors centralizes the HTTP error envelopes the handlers return.
// Internal failures are logged with the request path and sanitized before
// they reach the client; only messages written for users pass through.
package errors

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/internlink/internlink/pkg/models"
)

// respond logs the real error server-side and writes a sanitized envelope.
func respond(c echo.Context, kind string, err error, status int, code, message string) error {
	log.Printf("[%s] Path: %s, Error: %v", kind, c.Request().URL.Path, err)

	return c.JSON(status, models.ErrorResponse{
		Error:   code,
		Message: message,
	})
}

// ValidationError rejects malformed or invalid request data.
func ValidationError(c echo.Context, err error) error {
	return respond(c, "VALIDATION ERROR", err, http.StatusBadRequest,
		"validation_error", "Invalid request data. Please check your input and try again.")
}

// DatabaseError reports a persistence failure without leaking driver details.
func DatabaseError(c echo.Context, err error) error {
	return respond(c, "DATABASE ERROR", err, http.StatusInternalServerError,
		"database_error", "A database error occurred. Please try again later.")
}

// InternalError reports any other server-side failure.
func InternalError(c echo.Context, err error) error {
	return respond(c, "INTERNAL ERROR", err, http.StatusInternalServerError,
		"internal_error", "An internal error occurred. Please try again later.")
}

// UnauthorizedError rejects a request with no usable identity.
func UnauthorizedError(c echo.Context, reason string) error {
	log.Printf("[UNAUTHORIZED] Path: %s, Reason: %s", c.Request().URL.Path, reason)

	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// ForbiddenError rejects an authenticated request lacking the required role.
func ForbiddenError(c echo.Context, reason string) error {
	log.Printf("[FORBIDDEN] Path: %s, Reason: %s", c.Request().URL.Path, reason)

	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   "forbidden",
		Message: "You do not have permission to access this resource.",
	})
}

// NotFoundError reports a missing resource; the resource name is logged but
// not echoed back.
func NotFoundError(c echo.Context, resource string) error {
	log.Printf("[NOT FOUND] Path: %s, Resource: %s", c.Request().URL.Path, resource)

	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

// ConflictError reports a state conflict. Unlike the responders above the
// message is written for the client and passed through as-is.
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}

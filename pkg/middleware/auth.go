package middleware

import (
	"github.com/labstack/echo/v4"

	apierrors "github.com/internlink/internlink/pkg/api/errors"
)

// Identity headers set by the API gateway after it validates the session.
// This service trusts them only because the gateway strips client-supplied
// copies before forwarding.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// RequireUser middleware ensures the request carries an authenticated user
// identity and stores it in the echo context
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(HeaderUserID)
			if userID == "" {
				return apierrors.UnauthorizedError(c, "missing identity header")
			}

			c.Set("user_id", userID)
			c.Set("user_email", c.Request().Header.Get(HeaderUserEmail))
			c.Set("user_role", c.Request().Header.Get(HeaderUserRole))

			return next(c)
		}
	}
}

// RequireAdmin middleware ensures the authenticated user has the admin role.
// Apply AFTER RequireUser.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get("user_role").(string)
			if role != "admin" {
				return apierrors.ForbiddenError(c, "role "+role+" is not admin")
			}

			return next(c)
		}
	}
}

// UserID returns the authenticated user ID from the echo context
func UserID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}

// UserEmail returns the authenticated user email from the echo context
func UserEmail(c echo.Context) string {
	email, _ := c.Get("user_email").(string)
	return email
}

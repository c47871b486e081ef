package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleNurse      = "nurse"
	RoleVaccinator = "vaccinator"
)

// RequireRole returns middleware that checks if the user has at least one of the specified roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasAnyRole(c.Request().Context(), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

// HasAnyRole reports whether the caller holds one of roles. Admin always
// matches.
func HasAnyRole(ctx context.Context, roles ...string) bool {
	for _, has := range RolesFromContext(ctx) {
		if has == RoleAdmin {
			return true
		}
		for _, required := range roles {
			if has == required {
				return true
			}
		}
	}
	return false
}

// IsPrivileged reports whether the caller may override eligibility rules.
// Only the configured roles count; admin is not implied.
func IsPrivileged(ctx context.Context, privileged []string) bool {
	for _, has := range RolesFromContext(ctx) {
		for _, p := range privileged {
			if has == p {
				return true
			}
		}
	}
	return false
}

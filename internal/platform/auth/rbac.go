package auth

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireRole admits callers holding any of roles. Admin passes every check.
// Callers without an organization are refused outright since every
// revenue-cycle record is organization scoped.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if OrganizationFromContext(ctx) == uuid.Nil {
				return echo.NewHTTPError(http.StatusForbidden, "no organization in scope")
			}
			if HasRole(RolesFromContext(ctx), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}

func HasRole(have []string, want ...string) bool {
	if slices.Contains(have, RoleAdmin) {
		return true
	}
	return slices.ContainsFunc(have, func(h string) bool { return slices.Contains(want, h) })
}

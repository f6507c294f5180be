package auth

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/voiceintake/intake/internal/platform/apperr"
)

// HasRole reports whether the caller in ctx carries role. Admins carry every
// role.
func HasRole(ctx context.Context, role string) bool {
	roles := RolesFromContext(ctx)
	return slices.Contains(roles, role) || slices.Contains(roles, RoleAdmin)
}

// RequireRole admits callers holding any of roles. A request that never
// passed JWTMiddleware is unauthorized rather than forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if RolesFromContext(ctx) == nil && UserIDFromContext(ctx) == "" {
				return apperr.Unauthorized("authentication required")
			}
			for _, role := range roles {
				if HasRole(ctx, role) {
					return next(c)
				}
			}
			return apperr.Forbidden(fmt.Sprintf("requires role %s", strings.Join(roles, " or ")))
		}
	}
}

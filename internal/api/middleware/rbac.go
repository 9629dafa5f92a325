package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/enterprise-hub/account-service/internal/api/metrics"
	"github.com/enterprise-hub/account-service/internal/core/domain"
	"github.com/enterprise-hub/account-service/internal/core/ports"
)

// ContextKeyRole holds the caller's primary role once RequireRole has run.
const ContextKeyRole = "role"

// RequireRole lets the request through only when the caller's primary role,
// as resolved from the profile store, is one of allowedRoles. It must run
// after Session.
func RequireRole(resolver ports.RoleResolver, allowedRoles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			session, err := requireSession(c)
			if err != nil {
				return err
			}

			role, err := resolver.PrimaryRole(c.Request().Context(), session.UserID)
			if err != nil {
				// Only approved accounts resolve to a role; everything else
				// is simply not allowed here.
				if domain.CodeOf(err) == domain.CodeUnknownError || domain.CodeOf(err) == domain.CodeServerError {
					return err
				}
				metrics.SessionRejectionsTotal.WithLabelValues("forbidden").Inc()
				return domain.NewAuthError(domain.CodeForbidden, "You do not have access to this resource.")
			}
			if _, ok := allowed[role]; !ok {
				metrics.SessionRejectionsTotal.WithLabelValues("forbidden").Inc()
				return domain.NewAuthError(domain.CodeForbidden, "You do not have access to this resource.")
			}

			c.Set(ContextKeyRole, role)
			return next(c)
		}
	}
}

package middleware

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/auth"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// RequireRoles enforces that the authenticated principal holds one of
// roles. It must run after Authenticate. operation names the route in
// denial logs; the response never says which roles were required.
func RequireRoles(operation string, roles []model.Role, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := PrincipalFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			if err := auth.Authorize(p, operation, roles); err != nil {
				logger.Warn("role denied", "user_id", p.ID, "role", p.Role, "operation", operation, "required", roles)
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

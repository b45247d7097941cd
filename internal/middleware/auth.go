package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/auth"
	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
)

// BearerToken returns the token of an "Authorization: Bearer <token>"
// header, or "" when there is none.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// Authenticate runs stage on the request's bearer token and stores the
// resolved principal in the context. Every rejection answers 401 with the
// same body and the reason is only logged. A stage that could not decide
// (user store down) answers 503.
func Authenticate(stage auth.Stage, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			p, err := stage.Authenticate(req.Context(), BearerToken(req))
			if err != nil {
				kind := autherr.KindOf(err)
				if !autherr.IsAuthentication(kind) {
					logger.Error("authentication could not complete",
						"method", req.Method, "route", c.Path(), "error", err)
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
				}
				logger.Info("request rejected",
					"method", req.Method, "route", c.Path(), "kind", kind, "detail", err.Error())
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			setPrincipal(c, p)
			return next(c)
		}
	}
}

package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
)

// writeError translates an error into a status and a fixed body. Bodies
// never carry the failure detail; that only goes to the log.
func writeError(c echo.Context, logger *slog.Logger, err error) error {
	kind := autherr.KindOf(err)
	switch {
	case kind == autherr.InvalidCredentials:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case kind == autherr.EmailAlreadyRegistered:
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	case autherr.IsAuthentication(kind):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	case kind == autherr.RoleForbidden:
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case kind == autherr.RegistryUnavailable:
		logger.Error("session registry unavailable", "route", c.Path(), "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service unavailable"})
	}
	logger.Error("request failed", "route", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/middleware"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// ActiveSessions exposes the registry's live view.
type ActiveSessions interface {
	Active(userID string) (model.Session, bool)
}

// SessionHistory reads the audit trail.
type SessionHistory interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Session, error)
}

// SessionHandler serves session inspection and forced logout.
type SessionHandler struct {
	Active  ActiveSessions
	History SessionHistory // optional
	Logouts Logouts
	Logger  *slog.Logger
}

func NewSessionHandler(active ActiveSessions, history SessionHistory, logouts Logouts, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{Active: active, History: history, Logouts: logouts, Logger: logger}
}

// sessionPart never includes the token itself.
type sessionPart struct {
	ID        string     `json:"id"`
	LoginTime time.Time  `json:"login_time"`
	Logout    *time.Time `json:"logout_time,omitempty"`
	UserAgent string     `json:"user_agent,omitempty"`
	IPAddress string     `json:"ip_address,omitempty"`
}

func toSessionPart(s model.Session) sessionPart {
	return sessionPart{ID: s.ID, LoginTime: s.LoginTime, Logout: s.LogoutTime, UserAgent: s.UserAgent, IPAddress: s.IPAddress}
}

// Current describes the caller's own active session.
func (h *SessionHandler) Current(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return writeError(c, h.Logger, autherr.ErrUnauthenticated)
	}
	s, ok := h.Active.Active(p.ID)
	if !ok || s.Token != p.Token {
		// The session ended between authentication and this read.
		return writeError(c, h.Logger, autherr.ErrSessionInvalidated)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":    p.ID,
		"session":    toSessionPart(s),
		"expires_at": p.ExpiresAt,
	})
}

// Status reports whether a user has an active session, with recent history
// when the audit trail is readable. ?limit= bounds the history (default 10).
func (h *SessionHandler) Status(c echo.Context) error {
	userID, ok := pathUserID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	resp := echo.Map{"user_id": userID, "active": false}
	if s, ok := h.Active.Active(userID); ok {
		resp["active"] = true
		resp["session"] = toSessionPart(s)
	}
	if h.History != nil {
		limit := 10
		if n, err := strconv.Atoi(c.QueryParam("limit")); err == nil && n > 0 && n <= 100 {
			limit = n
		}
		rows, err := h.History.ListByUser(c.Request().Context(), userID, limit)
		if err != nil {
			h.Logger.Warn("session history unavailable", "user_id", userID, "error", err)
		} else {
			history := make([]sessionPart, 0, len(rows))
			for _, s := range rows {
				history = append(history, toSessionPart(s))
			}
			resp["history"] = history
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// ForceLogout ends every session of a user.
func (h *SessionHandler) ForceLogout(c echo.Context) error {
	userID, ok := pathUserID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	hadActive, err := h.Logouts.Logout(c.Request().Context(), userID, "", time.Time{})
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	if admin, ok := middleware.PrincipalFrom(c); ok {
		h.Logger.Info("sessions revoked by administrator", "user_id", userID, "admin_id", admin.ID, "had_active", hadActive)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "sessions revoked", "had_active": hadActive})
}

func pathUserID(c echo.Context) (string, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return "", false
	}
	return strconv.FormatUint(id, 10), true
}

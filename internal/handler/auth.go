package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/auth"
	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/middleware"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
)

const minPasswordLen = 8

// Accounts is the signup and login side of auth.Service.
type Accounts interface {
	Signup(ctx context.Context, cred auth.Credentials) (auth.UserSession, error)
	Login(ctx context.Context, cred auth.Credentials) (auth.UserSession, error)
}

// Logouts is the part of auth.LogoutCoordinator the handlers call.
type Logouts interface {
	LogoutBearer(ctx context.Context, raw string, all bool) auth.Outcome
	Logout(ctx context.Context, userID, raw string, expiresAt time.Time) (bool, error)
}

// AuthHandler bundles dependencies for the staff auth endpoints.
type AuthHandler struct {
	Accounts Accounts
	Logouts  Logouts
	Logger   *slog.Logger
}

func NewAuthHandler(a Accounts, l Logouts, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{Accounts: a, Logouts: l, Logger: logger}
}

// ----- DTOs -----

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type logoutReq struct {
	All bool `json:"all"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User   userPart  `json:"user"`
	Access tokenPart `json:"access"`
}

func bindCredentials(c echo.Context) (credentialsReq, bool) {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return req, false
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	return req, req.Email != "" && req.Password != ""
}

func origin(c echo.Context) session.Origin {
	return session.Origin{UserAgent: c.Request().UserAgent(), IPAddress: c.RealIP()}
}

func toAuthResp(us auth.UserSession) authResp {
	return authResp{
		User:   userPart{ID: us.User.ID, Email: us.User.Email, Role: string(us.User.Role)},
		Access: tokenPart{Token: us.Token.Value, Expires: us.Token.ExpiresAt},
	}
}

// Signup creates a salesperson account and returns its first token.
func (h *AuthHandler) Signup(c echo.Context) error {
	req, ok := bindCredentials(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	if !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid email"})
	}
	if len(req.Password) < minPasswordLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password too short"})
	}

	us, err := h.Accounts.Signup(c.Request().Context(), auth.Credentials{
		Email: req.Email, Password: req.Password, Origin: origin(c),
	})
	if err != nil {
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, toAuthResp(us))
}

// Login verifies credentials and returns a token that supersedes any
// earlier one of the same user.
func (h *AuthHandler) Login(c echo.Context) error {
	req, ok := bindCredentials(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}

	us, err := h.Accounts.Login(c.Request().Context(), auth.Credentials{
		Email: req.Email, Password: req.Password, Origin: origin(c),
	})
	if err != nil {
		if autherr.KindOf(err) == autherr.PrincipalInactive {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
		}
		return writeError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, toAuthResp(us))
}

// Logout always answers 200. The bearer is optional; {"all":true} ends
// every session of the user.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutReq
	_ = c.Bind(&req)

	out := h.Logouts.LogoutBearer(c.Request().Context(), middleware.BearerToken(c.Request()), req.All)
	if out.Err != nil {
		h.Logger.Warn("logout reported success despite failure", "user_id", out.UserID, "error", out.Err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me returns the authenticated caller.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return writeError(c, h.Logger, autherr.ErrUnauthenticated)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":         p.ID,
		"email":      p.Email,
		"role":       p.Role,
		"kind":       p.Kind,
		"expires_at": p.ExpiresAt,
	})
}

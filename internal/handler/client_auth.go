package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/auth"
	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/middleware"
)

// ClientAccounts logs mobile clients in.
type ClientAccounts interface {
	ClientLogin(ctx context.Context, cred auth.Credentials) (auth.ClientSession, error)
}

// ClientHandler serves the mobile client endpoints.
type ClientHandler struct {
	Accounts ClientAccounts
	Logger   *slog.Logger
}

func NewClientHandler(a ClientAccounts, logger *slog.Logger) *ClientHandler {
	return &ClientHandler{Accounts: a, Logger: logger}
}

type clientResp struct {
	Client struct {
		ID    uint64 `json:"id"`
		Email string `json:"email"`
	} `json:"client"`
	Access tokenPart `json:"access"`
}

func (h *ClientHandler) Login(c echo.Context) error {
	req, ok := bindCredentials(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	cs, err := h.Accounts.ClientLogin(c.Request().Context(), auth.Credentials{
		Email: req.Email, Password: req.Password, Origin: origin(c),
	})
	if err != nil {
		if autherr.KindOf(err) == autherr.PrincipalInactive {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account disabled"})
		}
		return writeError(c, h.Logger, err)
	}
	var resp clientResp
	resp.Client.ID = cs.Client.ID
	resp.Client.Email = cs.Client.Email
	resp.Access = tokenPart{Token: cs.Token.Value, Expires: cs.Token.ExpiresAt}
	return c.JSON(http.StatusOK, resp)
}

func (h *ClientHandler) Me(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return writeError(c, h.Logger, autherr.ErrUnauthenticated)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": p.ID, "email": p.Email, "kind": p.Kind})
}

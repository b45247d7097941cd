// Package router registers the HTTP routes and derives each route's
// middleware chain from the static policy table.
package router

import (
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/auth"
	"github.com/iliyamo/inventory-sales-backend/internal/handler"
	"github.com/iliyamo/inventory-sales-backend/internal/middleware"
)

// Deps is everything the routes need. RateLimit may be nil.
type Deps struct {
	Auth     *handler.AuthHandler
	Client   *handler.ClientHandler
	Sessions *handler.SessionHandler
	Health   echo.HandlerFunc

	StaffStage  auth.Stage
	ClientStage auth.Stage
	RateLimit   echo.MiddlewareFunc
	Logger      *slog.Logger
}

type route struct {
	method  string
	path    string
	handler echo.HandlerFunc
}

func (r route) op() string { return r.method + " " + r.path }

func routes(d Deps) []route {
	return []route{
		{echo.GET, "/healthz", d.Health},

		{echo.POST, "/v1/auth/signup", d.Auth.Signup},
		{echo.POST, "/v1/auth/login", d.Auth.Login},
		{echo.POST, "/v1/auth/logout", d.Auth.Logout},
		{echo.GET, "/v1/auth/me", d.Auth.Me},
		{echo.GET, "/v1/auth/session", d.Sessions.Current},

		{echo.GET, "/v1/admin/users/:id/session", d.Sessions.Status},
		{echo.DELETE, "/v1/admin/users/:id/sessions", d.Sessions.ForceLogout},

		{echo.POST, "/v1/client/auth/login", d.Client.Login},
		{echo.GET, "/v1/client/me", d.Client.Me},
	}
}

// Register validates the policy table against the route list and mounts
// every route with the chain its policy asks for. Nothing is mounted when
// any route cannot be guarded as declared.
func Register(e *echo.Echo, d Deps) error {
	rs := routes(d)
	ops := make([]string, len(rs))
	for i, r := range rs {
		ops[i] = r.op()
	}
	if err := ValidatePolicies(ops, Policies); err != nil {
		return fmt.Errorf("route policies: %w", err)
	}

	chains := make([][]echo.MiddlewareFunc, len(rs))
	for i, r := range rs {
		chain, err := chainFor(r.op(), Policies[r.op()], d)
		if err != nil {
			return err
		}
		chains[i] = chain
	}
	for i, r := range rs {
		e.Add(r.method, r.path, r.handler, chains[i]...)
	}
	return nil
}

// chainFor orders the stages: rate limit, authentication, then roles.
func chainFor(op string, p Policy, d Deps) ([]echo.MiddlewareFunc, error) {
	var chain []echo.MiddlewareFunc
	if p.RateLimited && d.RateLimit != nil {
		chain = append(chain, d.RateLimit)
	}
	switch p.Access {
	case Public:
	case Staff:
		if d.StaffStage == nil {
			return nil, fmt.Errorf("route %s needs the staff authentication stage", op)
		}
		chain = append(chain,
			middleware.Authenticate(d.StaffStage, d.Logger),
			middleware.RequireRoles(op, p.Roles, d.Logger),
		)
	case Client:
		if d.ClientStage == nil {
			return nil, fmt.Errorf("route %s needs the client authentication stage", op)
		}
		chain = append(chain, middleware.Authenticate(d.ClientStage, d.Logger))
	default:
		return nil, fmt.Errorf("route %s: unknown access %s", op, p.Access)
	}
	return chain, nil
}

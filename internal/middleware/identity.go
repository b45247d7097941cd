package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/inventory-sales-backend/internal/auth"
)

// principalKey is the echo context key the authentication stage stores the
// resolved caller under.
const principalKey = "auth.principal"

// PrincipalFrom returns the caller attached by Authenticate.
func PrincipalFrom(c echo.Context) (auth.Principal, bool) {
	p, ok := c.Get(principalKey).(auth.Principal)
	return p, ok
}

func setPrincipal(c echo.Context, p auth.Principal) { c.Set(principalKey, p) }

// userID identifies the caller for rate-limit keys and request logs.
// Anonymous requests are "anon".
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok && p.ID != "" {
		return string(p.Kind) + ":" + p.ID
	}
	return "anon"
}

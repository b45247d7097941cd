// Package auth implements signup and login, the two-stage request
// authorization pipeline and the logout coordinator. It is independent of
// the HTTP framework; internal/middleware and internal/handler adapt it to
// echo.
package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/iliyamo/inventory-sales-backend/internal/model"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
	"github.com/iliyamo/inventory-sales-backend/internal/token"
)

// Principal is the caller resolved from a verified token.
type Principal struct {
	ID        string
	Email     string
	Role      model.Role
	Kind      model.Kind
	TokenID   string
	Token     string
	ExpiresAt time.Time
}

// UserLookup resolves a user by id.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// UserStore is the slice of the user repository the auth package needs.
type UserStore interface {
	UserLookup
	Create(ctx context.Context, email, passwordHash string, role model.Role) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
}

// ClientLookup resolves a client by id.
type ClientLookup interface {
	GetByID(ctx context.Context, id uint64) (model.Client, error)
}

// ClientStore is the slice of the client repository the auth package needs.
type ClientStore interface {
	ClientLookup
	GetByEmail(ctx context.Context, email string) (model.Client, error)
}

// Verifier checks a token's signature and expiry.
type Verifier interface {
	Verify(raw string) (*token.Claims, error)
}

// Signer issues tokens.
type Signer interface {
	Issue(principalID, email string, role model.Role, kind model.Kind) (token.Token, error)
}

// SessionChecker answers whether a token is a user's active session.
type SessionChecker interface {
	IsSessionActive(userID, token string) bool
}

// Sessions is the part of session.Registry used by this package.
type Sessions interface {
	SessionChecker
	TrackSession(userID, token string, origin session.Origin) (string, error)
	InvalidateSession(userID, token string) (bool, error)
	InvalidateAllUserSessions(userID string) (bool, error)
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	return id, err == nil && id > 0
}

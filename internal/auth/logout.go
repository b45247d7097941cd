package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
	"github.com/iliyamo/inventory-sales-backend/internal/token"
)

// Outcome describes what a logout actually did. Callers report success
// regardless; the fields exist for logs and tests.
type Outcome struct {
	UserID      string
	Kind        model.Kind
	Verified    bool // the bearer passed signature and expiry checks
	Invalidated bool // a live registry entry was removed
	Err         error
}

// LogoutCoordinator invalidates sessions on explicit logout and on admin
// force-logout. It never fails towards the caller.
type LogoutCoordinator struct {
	verifier       Verifier
	clientVerifier Verifier
	sessions       Sessions
	blacklist      session.Blacklist
	timeout        time.Duration
	logger         *slog.Logger
}

// NewLogoutCoordinator builds a coordinator. clientVerifier may be nil when
// client tokens are not served; their logouts then do nothing.
func NewLogoutCoordinator(verifier, clientVerifier Verifier, sessions Sessions, blacklist session.Blacklist, timeout time.Duration, logger *slog.Logger) *LogoutCoordinator {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LogoutCoordinator{
		verifier:       verifier,
		clientVerifier: clientVerifier,
		sessions:       sessions,
		blacklist:      blacklist,
		timeout:        timeout,
		logger:         logger.With("component", "logout"),
	}
}

// Logout closes userID's session held by raw, or every session of the
// user when raw is empty. A token that is no longer active is a no-op.
// The only error is RegistryUnavailable.
func (l *LogoutCoordinator) Logout(ctx context.Context, userID, raw string, expiresAt time.Time) (bool, error) {
	var (
		removed bool
		err     error
	)
	if raw != "" {
		removed, err = l.sessions.InvalidateSession(userID, raw)
		l.remember(ctx, raw, expiresAt)
	} else {
		removed, err = l.sessions.InvalidateAllUserSessions(userID)
	}
	if err != nil {
		if autherr.KindOf(err) == autherr.RegistryUnavailable {
			return false, err
		}
		return false, autherr.Wrap(autherr.RegistryUnavailable, err, "invalidate session")
	}
	return removed, nil
}

// LogoutBearer is the logout path driven by whatever bearer the request
// carried. No token means already logged out. A verified staff token logs
// out that session, or all of the user's sessions when all is set and the
// token is still the active one. A token that fails verification is
// decoded without trust and only its own session is closed, so a forged or
// superseded token cannot end someone else's session. Only verified tokens
// enter the blacklist, bounded by their real expiry.
func (l *LogoutCoordinator) LogoutBearer(ctx context.Context, raw string, all bool) Outcome {
	if raw == "" {
		return Outcome{}
	}

	claims, verified := l.verify(raw)
	if !verified {
		decoded, ok := token.Decode(raw)
		if !ok || decoded.Subject == "" {
			l.logger.Debug("logout with undecodable token")
			return Outcome{}
		}
		claims = decoded
	}

	out := Outcome{UserID: claims.Subject, Kind: claims.Kind, Verified: verified}
	if claims.Kind == model.KindClient {
		// Client tokens hold no session; an unverified one has nothing to undo.
		if verified {
			l.remember(ctx, raw, claims.ExpiresAtTime())
		}
		return out
	}

	var expiresAt time.Time
	if verified {
		expiresAt = claims.ExpiresAtTime()
	}
	all = all && verified && l.sessions.IsSessionActive(claims.Subject, raw)
	if all {
		out.Invalidated, out.Err = l.Logout(ctx, claims.Subject, "", time.Time{})
		l.remember(ctx, raw, expiresAt)
	} else {
		out.Invalidated, out.Err = l.Logout(ctx, claims.Subject, raw, expiresAt)
	}
	if out.Err != nil {
		l.logger.Error("logout could not reach the session registry", "user_id", out.UserID, "error", out.Err)
	} else {
		l.logger.Info("logged out", "user_id", out.UserID, "verified", verified, "all", all, "invalidated", out.Invalidated)
	}
	return out
}

// verify tries the staff issuer, then the client issuer.
func (l *LogoutCoordinator) verify(raw string) (*token.Claims, bool) {
	if claims, err := l.verifier.Verify(raw); err == nil {
		return claims, true
	}
	if l.clientVerifier != nil {
		if claims, err := l.clientVerifier.Verify(raw); err == nil && claims.Kind == model.KindClient {
			return claims, true
		}
	}
	return nil, false
}

// remember puts raw into the invalidated set until it would have expired
// anyway. A zero until skips it. Failures are logged only.
func (l *LogoutCoordinator) remember(ctx context.Context, raw string, until time.Time) {
	if l.blacklist == nil || until.IsZero() || !until.After(time.Now()) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.blacklist.Add(ctx, raw, until); err != nil {
		l.logger.Warn("blacklist add failed", "error", err)
	}
}

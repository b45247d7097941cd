package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
	"github.com/iliyamo/inventory-sales-backend/internal/repository"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
)

// DefaultLookupTimeout bounds principal lookups and blacklist checks.
const DefaultLookupTimeout = 2 * time.Second

// Stage resolves the caller of a request from its bearer token.
type Stage interface {
	Authenticate(ctx context.Context, raw string) (Principal, error)
}

// Authenticator is the authentication stage for staff tokens:
//
//	verify signature and expiry -> kind is user -> not blacklisted ->
//	still the user's active session -> user exists and is active
//
// Rejections are *autherr.Error values. A failing user store is returned
// unclassified so it is not mistaken for a rejected token.
type Authenticator struct {
	verifier  Verifier
	sessions  SessionChecker
	blacklist session.Blacklist
	users     UserLookup
	timeout   time.Duration
	logger    *slog.Logger
}

// AuthenticatorConfig carries the collaborators of an Authenticator.
// Blacklist is optional.
type AuthenticatorConfig struct {
	Verifier      Verifier
	Sessions      SessionChecker
	Blacklist     session.Blacklist
	Users         UserLookup
	LookupTimeout time.Duration
	Logger        *slog.Logger
}

func NewAuthenticator(cfg AuthenticatorConfig) *Authenticator {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Authenticator{
		verifier:  cfg.Verifier,
		sessions:  cfg.Sessions,
		blacklist: cfg.Blacklist,
		users:     cfg.Users,
		timeout:   cfg.LookupTimeout,
		logger:    cfg.Logger.With("component", "authenticator"),
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, autherr.ErrUnauthenticated
	}
	claims, err := a.verifier.Verify(raw)
	if err != nil {
		return Principal{}, err
	}
	if claims.Kind != model.KindUser {
		return Principal{}, autherr.New(autherr.KindMismatch, "got %q, want %q", claims.Kind, model.KindUser)
	}
	userID := claims.Subject

	if blacklisted(ctx, a.blacklist, raw, a.timeout, a.logger) {
		return Principal{}, autherr.New(autherr.SessionInvalidated, "token blacklisted for user %s", userID)
	}
	if !a.sessions.IsSessionActive(userID, raw) {
		return Principal{}, autherr.New(autherr.SessionInvalidated, "token is not the active session of user %s", userID)
	}

	id, ok := parseID(userID)
	if !ok {
		return Principal{}, autherr.New(autherr.TokenMalformed, "subject %q is not a user id", userID)
	}
	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	u, err := a.users.GetByID(lookupCtx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Principal{}, autherr.New(autherr.PrincipalNotFound, "user %s", userID)
		}
		return Principal{}, fmt.Errorf("look up user %s: %w", userID, err)
	}
	if !u.IsActive {
		return Principal{}, autherr.New(autherr.PrincipalInactive, "user %s", userID)
	}

	return Principal{
		ID:        userID,
		Email:     u.Email,
		Role:      u.Role,
		Kind:      model.KindUser,
		TokenID:   claims.ID,
		Token:     raw,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

// ClientAuthenticator is the authentication stage for mobile client
// tokens. Client tokens are stateless: there is no session check, only
// signature, expiry, kind, blacklist and the client's active flag.
type ClientAuthenticator struct {
	verifier  Verifier
	blacklist session.Blacklist
	clients   ClientLookup
	timeout   time.Duration
	logger    *slog.Logger
}

func NewClientAuthenticator(verifier Verifier, clients ClientLookup, blacklist session.Blacklist, timeout time.Duration, logger *slog.Logger) *ClientAuthenticator {
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientAuthenticator{
		verifier:  verifier,
		blacklist: blacklist,
		clients:   clients,
		timeout:   timeout,
		logger:    logger.With("component", "client_authenticator"),
	}
}

func (a *ClientAuthenticator) Authenticate(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, autherr.ErrUnauthenticated
	}
	claims, err := a.verifier.Verify(raw)
	if err != nil {
		return Principal{}, err
	}
	if claims.Kind != model.KindClient {
		return Principal{}, autherr.New(autherr.KindMismatch, "got %q, want %q", claims.Kind, model.KindClient)
	}
	if blacklisted(ctx, a.blacklist, raw, a.timeout, a.logger) {
		return Principal{}, autherr.New(autherr.SessionInvalidated, "client token blacklisted")
	}

	id, ok := parseID(claims.Subject)
	if !ok {
		return Principal{}, autherr.New(autherr.TokenMalformed, "subject %q is not a client id", claims.Subject)
	}
	lookupCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	c, err := a.clients.GetByID(lookupCtx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Principal{}, autherr.New(autherr.PrincipalNotFound, "client %s", claims.Subject)
		}
		return Principal{}, fmt.Errorf("look up client %s: %w", claims.Subject, err)
	}
	if !c.IsActive {
		return Principal{}, autherr.New(autherr.PrincipalInactive, "client %s", claims.Subject)
	}

	return Principal{
		ID:        claims.Subject,
		Email:     c.Email,
		Kind:      model.KindClient,
		TokenID:   claims.ID,
		Token:     raw,
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

// blacklisted consults the fallback set. A failing blacklist is logged and
// treated as "not listed": the registry stays authoritative.
func blacklisted(ctx context.Context, bl session.Blacklist, raw string, timeout time.Duration, logger *slog.Logger) bool {
	if bl == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	listed, err := bl.Contains(ctx, raw)
	if err != nil {
		logger.Warn("blacklist lookup failed", "error", err)
		return false
	}
	return listed
}

var (
	_ Stage = (*Authenticator)(nil)
	_ Stage = (*ClientAuthenticator)(nil)
)

// Package autherr defines the failure taxonomy shared by the token issuer,
// the session registry and the authorization pipeline. Stages return
// *Error values; the HTTP layer translates a Kind into a status code.
package autherr

import (
	"errors"
	"fmt"
)

// Kind classifies an authentication or authorization failure.
type Kind string

const (
	InvalidCredentials     Kind = "invalid_credentials"
	EmailAlreadyRegistered Kind = "email_already_registered"
	Unauthenticated        Kind = "unauthenticated"
	TokenExpired           Kind = "token_expired"
	TokenMalformed         Kind = "token_malformed"
	KindMismatch           Kind = "token_kind_mismatch"
	SessionInvalidated     Kind = "session_invalidated"
	PrincipalNotFound      Kind = "principal_not_found"
	PrincipalInactive      Kind = "principal_inactive"
	RoleForbidden          Kind = "role_forbidden"
	RegistryUnavailable    Kind = "registry_unavailable"
)

// Error is a classified failure. Detail is meant for logs and is never
// written to a response body.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so sentinels such as
// ErrTokenExpired work with errors.Is regardless of detail.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New returns an *Error of kind k.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind k.
func Wrap(k Kind, err error, detail string) *Error {
	return &Error{Kind: k, Detail: detail, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when
// err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsAuthentication reports whether k is a failure of the authentication
// stage. All of them surface to clients as the same "unauthorized" outcome.
func IsAuthentication(k Kind) bool {
	switch k {
	case Unauthenticated, TokenExpired, TokenMalformed, KindMismatch,
		SessionInvalidated, PrincipalNotFound, PrincipalInactive:
		return true
	}
	return false
}

var (
	ErrInvalidCredentials     = &Error{Kind: InvalidCredentials}
	ErrEmailAlreadyRegistered = &Error{Kind: EmailAlreadyRegistered}
	ErrUnauthenticated        = &Error{Kind: Unauthenticated}
	ErrTokenExpired           = &Error{Kind: TokenExpired}
	ErrTokenMalformed         = &Error{Kind: TokenMalformed}
	ErrKindMismatch           = &Error{Kind: KindMismatch}
	ErrSessionInvalidated     = &Error{Kind: SessionInvalidated}
	ErrPrincipalNotFound      = &Error{Kind: PrincipalNotFound}
	ErrPrincipalInactive      = &Error{Kind: PrincipalInactive}
	ErrRoleForbidden          = &Error{Kind: RoleForbidden}
	ErrRegistryUnavailable    = &Error{Kind: RegistryUnavailable}
)

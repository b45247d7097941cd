// Package token issues and verifies the signed bearer tokens handed out on
// login. It knows nothing about sessions: a token that verifies here may
// still have been superseded or logged out.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
)

// DefaultTTL is used when an Issuer is built with a non-positive TTL.
const DefaultTTL = 24 * time.Hour

// Claims is the decoded payload of a token. Subject (sub), IssuedAt (iat),
// ExpiresAt (exp) and ID (jti) live in the embedded registered claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string     `json:"email"`
	Role  model.Role `json:"role,omitempty"`
	Kind  model.Kind `json:"kind"`
}

// Token is a signed token with the metadata callers need without decoding.
type Token struct {
	Value     string    // the serialized JWT string
	ID        string    // the jti claim
	ExpiresAt time.Time // UTC expiration time
}

// Issuer signs and verifies HS256 tokens with one secret. Staff and client
// tokens use separate issuers so neither secret can mint the other kind.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer signing with secret. ttl <= 0 falls back to
// DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token: signing secret must not be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns the lifetime given to every issued token.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue builds and signs a token for the given principal.
func (i *Issuer) Issue(principalID, email string, role model.Role, kind model.Kind) (Token, error) {
	if principalID == "" {
		return Token{}, errors.New("token: principal id is required")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
		Role:  role,
		Kind:  kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("token: sign: %w", err)
	}
	return Token{Value: signed, ID: claims.ID, ExpiresAt: exp}, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Failures are classified as autherr.TokenExpired or autherr.TokenMalformed.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherr.Wrap(autherr.TokenExpired, err, "")
		}
		return nil, autherr.Wrap(autherr.TokenMalformed, err, "")
	}
	if !tok.Valid || claims.Subject == "" {
		return nil, autherr.New(autherr.TokenMalformed, "missing subject")
	}
	return claims, nil
}

// Decode parses raw without checking its signature or expiry. It is only
// for deciding whom to log out when a token cannot be trusted; never use it
// to grant access.
func Decode(raw string) (*Claims, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, false
	}
	if claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

// Decode is Issuer-bound sugar for the package-level Decode.
func (i *Issuer) Decode(raw string) (*Claims, bool) { return Decode(raw) }

// ExpiresAtTime returns the expiry recorded in c, or the zero time.
func (c *Claims) ExpiresAtTime() time.Time {
	if c == nil || c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

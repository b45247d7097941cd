package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
	"github.com/iliyamo/inventory-sales-backend/internal/repository"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
	"github.com/iliyamo/inventory-sales-backend/internal/token"
)

// Credentials is a login or signup request.
type Credentials struct {
	Email    string
	Password string
	Origin   session.Origin
}

// UserSession is a staff principal together with its freshly issued token.
type UserSession struct {
	User  model.User
	Token token.Token
}

// ClientSession is a client principal together with its token.
type ClientSession struct {
	Client model.Client
	Token  token.Token
}

// ServiceConfig wires a Service. Clients and ClientSigner may be nil when
// the client login is not served.
type ServiceConfig struct {
	Users        UserStore
	Clients      ClientStore
	Passwords    *Passwords
	Signer       Signer
	ClientSigner Signer
	Sessions     Sessions
	Logger       *slog.Logger
}

// Service implements signup and login. Both end in Sessions.TrackSession, so
// a new login always supersedes the user's previous token.
type Service struct {
	users        UserStore
	clients      ClientStore
	passwords    *Passwords
	signer       Signer
	clientSigner Signer
	sessions     Sessions
	logger       *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Passwords == nil {
		cfg.Passwords = NewPasswords(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		users:        cfg.Users,
		clients:      cfg.Clients,
		passwords:    cfg.Passwords,
		signer:       cfg.Signer,
		clientSigner: cfg.ClientSigner,
		sessions:     cfg.Sessions,
		logger:       cfg.Logger.With("component", "auth_service"),
	}
}

// Signup registers a salesperson and logs them in. Administrators are
// provisioned out of band.
func (s *Service) Signup(ctx context.Context, cred Credentials) (UserSession, error) {
	email := strings.ToLower(strings.TrimSpace(cred.Email))
	if email == "" || cred.Password == "" {
		return UserSession{}, autherr.New(autherr.InvalidCredentials, "email and password are required")
	}
	hash, err := s.passwords.Hash(cred.Password)
	if err != nil {
		return UserSession{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, email, hash, model.RoleSalesperson)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return UserSession{}, autherr.New(autherr.EmailAlreadyRegistered, "%s", email)
		}
		return UserSession{}, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user signed up", "user_id", u.ID, "role", u.Role)
	return s.open(u, cred.Origin)
}

// Login checks credentials and opens a new session, superseding any
// previous one. Unknown email and wrong password are indistinguishable;
// the inactive flag is reported only after the password matched.
func (s *Service) Login(ctx context.Context, cred Credentials) (UserSession, error) {
	email := strings.ToLower(strings.TrimSpace(cred.Email))
	if email == "" || cred.Password == "" {
		return UserSession{}, autherr.ErrInvalidCredentials
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnCompare(cred.Password)
			return UserSession{}, autherr.ErrInvalidCredentials
		}
		return UserSession{}, fmt.Errorf("lookup user: %w", err)
	}
	if !s.passwords.Verify(u.PasswordHash, cred.Password) {
		return UserSession{}, autherr.ErrInvalidCredentials
	}
	if !u.IsActive {
		return UserSession{}, autherr.New(autherr.PrincipalInactive, "user %d", u.ID)
	}
	return s.open(u, cred.Origin)
}

// ClientLogin authenticates a mobile client. Client tokens are not tracked
// by the session registry.
func (s *Service) ClientLogin(ctx context.Context, cred Credentials) (ClientSession, error) {
	if s.clients == nil || s.clientSigner == nil {
		return ClientSession{}, errors.New("client login is not configured")
	}
	email := strings.ToLower(strings.TrimSpace(cred.Email))
	if email == "" || cred.Password == "" {
		return ClientSession{}, autherr.ErrInvalidCredentials
	}
	c, err := s.clients.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.burnCompare(cred.Password)
			return ClientSession{}, autherr.ErrInvalidCredentials
		}
		return ClientSession{}, fmt.Errorf("lookup client: %w", err)
	}
	if !s.passwords.Verify(c.PasswordHash, cred.Password) {
		return ClientSession{}, autherr.ErrInvalidCredentials
	}
	if !c.IsActive {
		return ClientSession{}, autherr.New(autherr.PrincipalInactive, "client %d", c.ID)
	}
	tok, err := s.clientSigner.Issue(formatID(c.ID), c.Email, "", model.KindClient)
	if err != nil {
		return ClientSession{}, fmt.Errorf("issue client token: %w", err)
	}
	return ClientSession{Client: c, Token: tok}, nil
}

func (s *Service) open(u model.User, origin session.Origin) (UserSession, error) {
	userID := formatID(u.ID)
	tok, err := s.signer.Issue(userID, u.Email, u.Role, model.KindUser)
	if err != nil {
		return UserSession{}, fmt.Errorf("issue token: %w", err)
	}
	superseded, err := s.sessions.TrackSession(userID, tok.Value, origin)
	if err != nil {
		return UserSession{}, err
	}
	if superseded != "" {
		s.logger.Info("previous session superseded", "user_id", userID)
	}
	return UserSession{User: u, Token: tok}, nil
}

// burnCompare spends one bcrypt comparison so unknown emails cost the same
// as wrong passwords.
func (s *Service) burnCompare(plain string) {
	s.dummyOnce.Do(func() {
		h, err := s.passwords.Hash("not-a-real-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	if s.dummyHash != "" {
		s.passwords.Verify(s.dummyHash, plain)
	}
}

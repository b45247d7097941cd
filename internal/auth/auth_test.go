package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/inventory-sales-backend/internal/autherr"
	"github.com/iliyamo/inventory-sales-backend/internal/model"
	"github.com/iliyamo/inventory-sales-backend/internal/repository"
	"github.com/iliyamo/inventory-sales-backend/internal/session"
	"github.com/iliyamo/inventory-sales-backend/internal/token"
)

const (
	staffSecret  = "staff-secret"
	clientSecret = "client-secret"
)

type memUsers struct {
	mu   sync.Mutex
	rows map[uint64]model.User
	next uint64
}

func newMemUsers() *memUsers { return &memUsers{rows: map[uint64]model.User{}} }

func (m *memUsers) Create(_ context.Context, email, hash string, role model.Role) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
	}
	m.next++
	u := model.User{ID: m.next, Email: email, PasswordHash: hash, Role: role, IsActive: true}
	m.rows[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) update(id uint64, fn func(*model.User)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.rows[id]
	fn(&u)
	m.rows[id] = u
}

func (m *memUsers) remove(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
}

type memClients struct{ rows map[uint64]model.Client }

func (m *memClients) GetByEmail(_ context.Context, email string) (model.Client, error) {
	for _, c := range m.rows {
		if c.Email == email {
			return c, nil
		}
	}
	return model.Client{}, repository.ErrNotFound
}

func (m *memClients) GetByID(_ context.Context, id uint64) (model.Client, error) {
	c, ok := m.rows[id]
	if !ok {
		return model.Client{}, repository.ErrNotFound
	}
	return c, nil
}

type mockBlacklist struct{ mock.Mock }

func (m *mockBlacklist) Add(ctx context.Context, raw string, until time.Time) error {
	return m.Called(ctx, raw, until).Error(0)
}

func (m *mockBlacklist) Contains(ctx context.Context, raw string) (bool, error) {
	args := m.Called(ctx, raw)
	return args.Bool(0), args.Error(1)
}

type harness struct {
	users     *memUsers
	clients   *memClients
	passwords *Passwords
	issuer    *token.Issuer
	clientIss *token.Issuer
	registry  *session.Registry
	blacklist *session.MemoryBlacklist
	svc       *Service
	authn     *Authenticator
	clientAu  *ClientAuthenticator
	logout    *LogoutCoordinator
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		users:     newMemUsers(),
		clients:   &memClients{rows: map[uint64]model.Client{}},
		passwords: NewPasswords(bcrypt.MinCost),
		blacklist: session.NewMemoryBlacklist(),
	}
	var err error
	h.issuer, err = token.NewIssuer(staffSecret, time.Hour)
	require.NoError(t, err)
	h.clientIss, err = token.NewIssuer(clientSecret, time.Hour)
	require.NoError(t, err)

	h.registry = session.NewRegistry(session.Options{Logger: quietLogger()})
	t.Cleanup(h.registry.Close)

	h.svc = NewService(ServiceConfig{
		Users:        h.users,
		Clients:      h.clients,
		Passwords:    h.passwords,
		Signer:       h.issuer,
		ClientSigner: h.clientIss,
		Sessions:     h.registry,
		Logger:       quietLogger(),
	})
	h.authn = NewAuthenticator(AuthenticatorConfig{
		Verifier:  h.issuer,
		Sessions:  h.registry,
		Blacklist: h.blacklist,
		Users:     h.users,
		Logger:    quietLogger(),
	})
	h.clientAu = NewClientAuthenticator(h.clientIss, h.clients, h.blacklist, 0, quietLogger())
	h.logout = NewLogoutCoordinator(h.issuer, h.clientIss, h.registry, h.blacklist, 0, quietLogger())
	return h
}

func (h *harness) addUser(t *testing.T, email, password string, role model.Role) model.User {
	t.Helper()
	hash, err := h.passwords.Hash(password)
	require.NoError(t, err)
	u, err := h.users.Create(context.Background(), email, hash, role)
	require.NoError(t, err)
	return u
}

func (h *harness) login(t *testing.T, email, password string) UserSession {
	t.Helper()
	us, err := h.svc.Login(context.Background(), Credentials{Email: email, Password: password})
	require.NoError(t, err)
	return us
}

func signWith(t *testing.T, secret string, c token.Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func expiredClaims(subject string) token.Claims {
	past := time.Now().Add(-2 * time.Hour)
	return token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "expired-jti",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Hour)),
		},
		Role: model.RoleSalesperson,
		Kind: model.KindUser,
	}
}

func TestLoginSupersedesAndLogoutInvalidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.addUser(t, "u1@example.com", "pw", model.RoleSalesperson)
	uid := formatID(u.ID)

	t1 := h.login(t, "u1@example.com", "pw").Token.Value
	assert.True(t, h.registry.IsSessionActive(uid, t1))

	t2 := h.login(t, "u1@example.com", "pw").Token.Value
	assert.False(t, h.registry.IsSessionActive(uid, t1))
	assert.True(t, h.registry.IsSessionActive(uid, t2))

	_, err := h.authn.Authenticate(ctx, t1)
	assert.ErrorIs(t, err, autherr.ErrSessionInvalidated)
	p, err := h.authn.Authenticate(ctx, t2)
	require.NoError(t, err)
	assert.Equal(t, uid, p.ID)
	assert.Equal(t, model.RoleSalesperson, p.Role)

	removed, err := h.logout.Logout(ctx, uid, t2, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, h.registry.IsSessionActive(uid, t2))

	_, err = h.authn.Authenticate(ctx, t2)
	assert.ErrorIs(t, err, autherr.ErrSessionInvalidated)
}

func TestSequentialLoginsKeepOnlyLast(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "seq@example.com", "pw", model.RoleAdministrator)
	uid := formatID(u.ID)

	var tokens []string
	for i := 0; i < 5; i++ {
		tokens = append(tokens, h.login(t, "seq@example.com", "pw").Token.Value)
	}
	for i, tok := range tokens {
		assert.Equal(t, i == len(tokens)-1, h.registry.IsSessionActive(uid, tok), "token %d", i)
	}
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	inactive := h.addUser(t, "off@example.com", "pw", model.RoleSalesperson)
	h.users.update(inactive.ID, func(u *model.User) { u.IsActive = false })
	h.addUser(t, "on@example.com", "pw", model.RoleSalesperson)

	tests := []struct {
		name  string
		email string
		pass  string
		want  autherr.Kind
	}{
		{"unknown email", "nobody@example.com", "pw", autherr.InvalidCredentials},
		{"wrong password", "on@example.com", "nope", autherr.InvalidCredentials},
		{"empty password", "on@example.com", "", autherr.InvalidCredentials},
		{"inactive with wrong password", "off@example.com", "nope", autherr.InvalidCredentials},
		{"inactive with right password", "off@example.com", "pw", autherr.PrincipalInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Login(ctx, Credentials{Email: tt.email, Password: tt.pass})
			assert.Equal(t, tt.want, autherr.KindOf(err))
		})
	}
}

func TestSignup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	us, err := h.svc.Signup(ctx, Credentials{Email: " New@Example.com ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", us.User.Email)
	assert.Equal(t, model.RoleSalesperson, us.User.Role)
	assert.True(t, h.registry.IsSessionActive(formatID(us.User.ID), us.Token.Value))

	_, err = h.svc.Signup(ctx, Credentials{Email: "new@example.com", Password: "other"})
	assert.ErrorIs(t, err, autherr.ErrEmailAlreadyRegistered)
}

func TestAuthenticateRejectsExpiredTokenEvenIfRegistered(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "exp@example.com", "pw", model.RoleSalesperson)
	uid := formatID(u.ID)

	raw := signWith(t, staffSecret, expiredClaims(uid))
	_, err := h.registry.TrackSession(uid, raw, session.Origin{})
	require.NoError(t, err)
	require.True(t, h.registry.IsSessionActive(uid, raw))

	_, err = h.authn.Authenticate(context.Background(), raw)
	assert.ErrorIs(t, err, autherr.ErrTokenExpired)
}

func TestAuthenticateFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	t.Run("no token", func(t *testing.T) {
		_, err := h.authn.Authenticate(ctx, "")
		assert.ErrorIs(t, err, autherr.ErrUnauthenticated)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := h.authn.Authenticate(ctx, "not.a.jwt")
		assert.ErrorIs(t, err, autherr.ErrTokenMalformed)
	})

	t.Run("client kind on staff route", func(t *testing.T) {
		tok, err := h.issuer.Issue("7", "c@example.com", "", model.KindClient)
		require.NoError(t, err)
		_, err = h.authn.Authenticate(ctx, tok.Value)
		assert.ErrorIs(t, err, autherr.ErrKindMismatch)
	})

	t.Run("never logged in", func(t *testing.T) {
		tok, err := h.issuer.Issue("42", "ghost@example.com", model.RoleSalesperson, model.KindUser)
		require.NoError(t, err)
		_, err = h.authn.Authenticate(ctx, tok.Value)
		assert.ErrorIs(t, err, autherr.ErrSessionInvalidated)
	})

	t.Run("deactivated after login", func(t *testing.T) {
		u := h.addUser(t, "deact@example.com", "pw", model.RoleSalesperson)
		raw := h.login(t, "deact@example.com", "pw").Token.Value
		h.users.update(u.ID, func(u *model.User) { u.IsActive = false })
		_, err := h.authn.Authenticate(ctx, raw)
		assert.ErrorIs(t, err, autherr.ErrPrincipalInactive)
	})

	t.Run("deleted after login", func(t *testing.T) {
		u := h.addUser(t, "gone@example.com", "pw", model.RoleSalesperson)
		raw := h.login(t, "gone@example.com", "pw").Token.Value
		h.users.remove(u.ID)
		_, err := h.authn.Authenticate(ctx, raw)
		assert.ErrorIs(t, err, autherr.ErrPrincipalNotFound)
	})

	t.Run("blacklisted", func(t *testing.T) {
		h.addUser(t, "bl@example.com", "pw", model.RoleSalesperson)
		tok := h.login(t, "bl@example.com", "pw").Token
		require.NoError(t, h.blacklist.Add(ctx, tok.Value, tok.ExpiresAt))
		_, err := h.authn.Authenticate(ctx, tok.Value)
		assert.ErrorIs(t, err, autherr.ErrSessionInvalidated)
	})
}

type downUsers struct{ err error }

func (d downUsers) GetByID(context.Context, uint64) (model.User, error) { return model.User{}, d.err }

type downClients struct{ err error }

func (d downClients) GetByID(context.Context, uint64) (model.Client, error) {
	return model.Client{}, d.err
}

func TestAuthenticateReportsStoreOutageUnclassified(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	outage := errors.New("dial tcp 10.0.0.5:3306: i/o timeout")

	tok, err := h.issuer.Issue("9", "nine@example.com", model.RoleSalesperson, model.KindUser)
	require.NoError(t, err)
	_, err = h.registry.TrackSession("9", tok.Value, session.Origin{})
	require.NoError(t, err)

	staff := NewAuthenticator(AuthenticatorConfig{
		Verifier: h.issuer, Sessions: h.registry, Users: downUsers{err: outage}, Logger: quietLogger(),
	})
	_, err = staff.Authenticate(ctx, tok.Value)
	assert.ErrorIs(t, err, outage)
	assert.Empty(t, autherr.KindOf(err))
	assert.NotErrorIs(t, err, autherr.ErrPrincipalNotFound)

	ctok, err := h.clientIss.Issue("4", "shop@example.com", "", model.KindClient)
	require.NoError(t, err)
	client := NewClientAuthenticator(h.clientIss, downClients{err: outage}, nil, 0, quietLogger())
	_, err = client.Authenticate(ctx, ctok.Value)
	assert.ErrorIs(t, err, outage)
	assert.Empty(t, autherr.KindOf(err))
}

func TestAuthenticateFailsOpenOnBlacklistError(t *testing.T) {
	h := newHarness(t)
	h.addUser(t, "open@example.com", "pw", model.RoleSalesperson)
	raw := h.login(t, "open@example.com", "pw").Token.Value

	bl := new(mockBlacklist)
	bl.On("Contains", mock.Anything, raw).Return(false, errors.New("redis down"))
	authn := NewAuthenticator(AuthenticatorConfig{
		Verifier:  h.issuer,
		Sessions:  h.registry,
		Blacklist: bl,
		Users:     h.users,
		Logger:    quietLogger(),
	})

	_, err := authn.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	bl.AssertExpectations(t)
}

func TestAuthorize(t *testing.T) {
	sales := Principal{ID: "1", Role: model.RoleSalesperson}

	err := Authorize(sales, "DELETE /v1/admin/users/:id/sessions", []model.Role{model.RoleAdministrator})
	require.ErrorIs(t, err, autherr.ErrRoleForbidden)
	assert.Contains(t, err.Error(), "SALESPERSON")
	assert.Contains(t, err.Error(), "/v1/admin/users/:id/sessions")

	assert.NoError(t, Authorize(sales, "GET /v1/auth/session", []model.Role{model.RoleAdministrator, model.RoleSalesperson}))
	assert.NoError(t, Authorize(sales, "GET /v1/auth/me", nil))
}

func TestLogoutBearerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.addUser(t, "idem@example.com", "pw", model.RoleSalesperson)
	raw := h.login(t, "idem@example.com", "pw").Token.Value

	first := h.logout.LogoutBearer(ctx, raw, false)
	assert.NoError(t, first.Err)
	assert.True(t, first.Verified)
	assert.True(t, first.Invalidated)
	assert.Equal(t, formatID(u.ID), first.UserID)

	second := h.logout.LogoutBearer(ctx, raw, false)
	assert.NoError(t, second.Err)
	assert.False(t, second.Invalidated)

	assert.Equal(t, Outcome{}, h.logout.LogoutBearer(ctx, "", false))
	assert.Equal(t, Outcome{}, h.logout.LogoutBearer(ctx, "garbage", true))
}

func TestLogoutBearerAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.addUser(t, "all@example.com", "pw", model.RoleSalesperson)
	raw := h.login(t, "all@example.com", "pw").Token.Value

	out := h.logout.LogoutBearer(ctx, raw, true)
	require.NoError(t, out.Err)
	assert.True(t, out.Invalidated)
	_, ok := h.registry.Active(formatID(u.ID))
	assert.False(t, ok)

	listed, err := h.blacklist.Contains(ctx, raw)
	require.NoError(t, err)
	assert.True(t, listed)
}

func TestLogoutBearerWithExpiredTokenClosesItsSession(t *testing.T) {
	h := newHarness(t)
	uid := formatID(h.addUser(t, "old@example.com", "pw", model.RoleSalesperson).ID)
	raw := signWith(t, staffSecret, expiredClaims(uid))
	_, err := h.registry.TrackSession(uid, raw, session.Origin{})
	require.NoError(t, err)

	out := h.logout.LogoutBearer(context.Background(), raw, false)
	assert.False(t, out.Verified)
	assert.True(t, out.Invalidated)
	assert.False(t, h.registry.IsSessionActive(uid, raw))
	assert.Equal(t, 0, h.blacklist.Len())
}

func TestLogoutBearerForgedTokenCannotEndAnotherSession(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "victim@example.com", "pw", model.RoleAdministrator)
	uid := formatID(u.ID)
	genuine := h.login(t, "victim@example.com", "pw").Token.Value

	c := expiredClaims(uid)
	c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	forged := signWith(t, "attacker-secret", c)

	out := h.logout.LogoutBearer(context.Background(), forged, true)
	assert.False(t, out.Verified)
	assert.False(t, out.Invalidated)
	assert.True(t, h.registry.IsSessionActive(uid, genuine))
}

func TestLogoutWithUnverifiedTokensNeverGrowsBlacklist(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	uid := formatID(h.addUser(t, "flood@example.com", "pw", model.RoleSalesperson).ID)
	genuine := h.login(t, "flood@example.com", "pw").Token.Value

	farFuture := jwt.NewNumericDate(time.Now().Add(100 * 365 * 24 * time.Hour))
	for i := 0; i < 50; i++ {
		staff := expiredClaims(uid)
		staff.ID = fmt.Sprintf("staff-%d", i)
		staff.ExpiresAt = farFuture
		client := expiredClaims(strconv.Itoa(i + 1))
		client.ID = fmt.Sprintf("client-%d", i)
		client.Kind = model.KindClient
		client.ExpiresAt = farFuture

		for _, raw := range []string{signWith(t, "attacker-secret", staff), signWith(t, "attacker-secret", client)} {
			out := h.logout.LogoutBearer(ctx, raw, i%2 == 0)
			assert.False(t, out.Verified)
			assert.False(t, out.Invalidated)
		}
	}

	assert.Equal(t, 0, h.blacklist.Len())
	assert.True(t, h.registry.IsSessionActive(uid, genuine))
}

func TestSupersededTokenCannotLogOutEverySession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	uid := formatID(h.addUser(t, "kick@example.com", "pw", model.RoleSalesperson).ID)
	t1 := h.login(t, "kick@example.com", "pw").Token.Value
	t2 := h.login(t, "kick@example.com", "pw").Token.Value

	out := h.logout.LogoutBearer(ctx, t1, true)
	require.NoError(t, out.Err)
	assert.True(t, out.Verified)
	assert.False(t, out.Invalidated)
	assert.True(t, h.registry.IsSessionActive(uid, t2))

	_, err := h.authn.Authenticate(ctx, t2)
	assert.NoError(t, err)
	listed, err := h.blacklist.Contains(ctx, t1)
	require.NoError(t, err)
	assert.True(t, listed)
}

func TestLogoutReportsUnavailableRegistry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addUser(t, "down@example.com", "pw", model.RoleSalesperson)
	raw := h.login(t, "down@example.com", "pw").Token.Value
	h.registry.Close()

	out := h.logout.LogoutBearer(ctx, raw, false)
	assert.ErrorIs(t, out.Err, autherr.ErrRegistryUnavailable)

	_, err := h.logout.Logout(ctx, out.UserID, "", time.Time{})
	assert.ErrorIs(t, err, autherr.ErrRegistryUnavailable)

	_, err = h.svc.Login(ctx, Credentials{Email: "down@example.com", Password: "pw"})
	assert.ErrorIs(t, err, autherr.ErrRegistryUnavailable)
}

func TestClientLoginAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	hash, err := h.passwords.Hash("pw")
	require.NoError(t, err)
	h.clients.rows[3] = model.Client{ID: 3, Email: "shop@example.com", PasswordHash: hash, IsActive: true}

	cs, err := h.svc.ClientLogin(ctx, Credentials{Email: "SHOP@example.com", Password: "pw"})
	require.NoError(t, err)

	p, err := h.clientAu.Authenticate(ctx, cs.Token.Value)
	require.NoError(t, err)
	assert.Equal(t, "3", p.ID)
	assert.Equal(t, model.KindClient, p.Kind)

	// Client tokens are stateless and never enter the registry.
	assert.False(t, h.registry.IsSessionActive("3", cs.Token.Value))

	_, err = h.svc.ClientLogin(ctx, Credentials{Email: "shop@example.com", Password: "bad"})
	assert.ErrorIs(t, err, autherr.ErrInvalidCredentials)

	// A staff token is signed with the other secret.
	h.addUser(t, "staff@example.com", "pw", model.RoleAdministrator)
	staff := h.login(t, "staff@example.com", "pw").Token.Value
	_, err = h.clientAu.Authenticate(ctx, staff)
	assert.ErrorIs(t, err, autherr.ErrTokenMalformed)

	// A user-kind token under the client secret is still refused.
	userKind, err := h.clientIss.Issue("3", "shop@example.com", model.RoleAdministrator, model.KindUser)
	require.NoError(t, err)
	_, err = h.clientAu.Authenticate(ctx, userKind.Value)
	assert.ErrorIs(t, err, autherr.ErrKindMismatch)

	out := h.logout.LogoutBearer(ctx, cs.Token.Value, false)
	assert.Equal(t, model.KindClient, out.Kind)
	_, err = h.clientAu.Authenticate(ctx, cs.Token.Value)
	assert.ErrorIs(t, err, autherr.ErrSessionInvalidated)
}

func TestConcurrentLoginsLeaveOneActiveToken(t *testing.T) {
	h := newHarness(t)
	u := h.addUser(t, "race@example.com", "pw", model.RoleSalesperson)
	uid := formatID(u.ID)

	const n = 8
	tokens := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			us, err := h.svc.Login(context.Background(), Credentials{Email: "race@example.com", Password: "pw"})
			if err == nil {
				tokens[i] = us.Token.Value
			}
		}(i)
	}
	wg.Wait()

	active := 0
	for _, tok := range tokens {
		require.NotEmpty(t, tok)
		if h.registry.IsSessionActive(uid, tok) {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestParseID(t *testing.T) {
	id, ok := parseID("12")
	assert.True(t, ok)
	assert.Equal(t, uint64(12), id)
	for _, bad := range []string{"", "0", "-1", "abc", strings.Repeat("9", 30)} {
		_, ok := parseID(bad)
		assert.False(t, ok, bad)
	}
}

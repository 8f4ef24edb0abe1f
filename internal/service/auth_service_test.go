package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/watchworthy-auth/internal/auth"
	"github.com/spec-kit/watchworthy-auth/internal/clock"
	"github.com/spec-kit/watchworthy-auth/internal/domain"
	"github.com/spec-kit/watchworthy-auth/internal/events"
	"github.com/spec-kit/watchworthy-auth/internal/repository"
	"github.com/spec-kit/watchworthy-auth/internal/store"
)

type authFixture struct {
	svc        *AuthService
	accounts   *UserService
	tokens     *auth.TokenAuthority
	users      repository.UserDirectory
	clock      *clock.Fake
	dispatcher *recordingDispatcher
}

func newAuthFixture(t *testing.T) authFixture {
	t.Helper()
	clk := clock.NewFake(t0)
	users := repository.NewUserDirectory(store.NewMemory[domain.User](store.CollectionUsers, nil))
	tokens := auth.NewTokenAuthority("secret", 60, auth.TokenDependencies{
		Revocations: repository.NewRevocationRepository(store.NewMemory[domain.RevokedToken](store.CollectionRevokedTokens, nil)),
		Resets:      repository.NewPasswordResetRepository(store.NewMemory[domain.ResetToken](store.CollectionResetTokens, nil)),
		Clock:       clk,
	})
	dispatcher := &recordingDispatcher{}
	return authFixture{
		svc: NewAuthService(AuthDependencies{
			UserDirectory: users,
			Tokens:        tokens,
			Dispatcher:    dispatcher,
			Clock:         clk,
			BcryptCost:    bcrypt.MinCost,
		}),
		accounts:   NewUserService(UserDependencies{UserDirectory: users, Clock: clk}),
		tokens:     tokens,
		users:      users,
		clock:      clk,
		dispatcher: dispatcher,
	}
}

func (f authFixture) register(t *testing.T, username string, role domain.Role) *domain.User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "hunter22",
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)

	user := f.register(t, "alice", "")
	assert.Equal(t, domain.RoleMember, user.Role)
	assert.Equal(t, domain.UserStatusActive, user.Status)
	assert.NotEqual(t, "hunter22", user.PasswordHash)
	assert.Empty(t, user.PenaltyIDs)

	_, session, err := f.svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	claims, err := f.tokens.Verify(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.Claims, claims)
	assert.Equal(t, user.ID, claims.SubjectID)

	_, _, err = f.svc.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = f.svc.Login(ctx, "nobody", "hunter22")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	assert.Equal(t, []events.EventType{events.EventUserRegistered}, f.dispatcher.types())
}

func TestAuthService_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.register(t, "alice", domain.RoleCritic)

	cases := map[string]struct {
		input RegisterInput
		want  error
	}{
		"duplicate username": {RegisterInput{Username: "alice", Email: "x@example.com", Password: "pw"}, domain.ErrUserExists},
		"duplicate email":    {RegisterInput{Username: "bob", Email: "ALICE@example.com", Password: "pw"}, domain.ErrUserExists},
		"bad email":          {RegisterInput{Username: "bob", Email: "nope", Password: "pw"}, domain.ErrInvalidInput},
		"no password":        {RegisterInput{Username: "bob", Email: "bob@example.com"}, domain.ErrInvalidInput},
		"unknown role":       {RegisterInput{Username: "bob", Email: "bob@example.com", Password: "pw", Role: "king"}, domain.ErrInvalidInput},
		"privileged role":    {RegisterInput{Username: "bob", Email: "bob@example.com", Password: "pw", Role: domain.RoleAdministrator}, domain.ErrForbidden},
		"long password":      {RegisterInput{Username: "bob", Email: "bob@example.com", Password: strings.Repeat("a", 73)}, domain.ErrInvalidInput},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tc.input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestAuthService_LoginInactive(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.register(t, "alice", domain.RoleMember)

	_, err := f.accounts.SetOwnStatus(ctx, user.ID, domain.UserStatusInactive)
	require.NoError(t, err)

	_, _, err = f.svc.Login(ctx, "alice", "hunter22")
	assert.ErrorIs(t, err, domain.ErrAccountInactive)
}

func TestAuthService_LogoutRevokes(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.register(t, "alice", domain.RoleMember)
	_, session, err := f.svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, session.Token))
	_, err = f.tokens.Verify(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrAuthRevoked)

	_, err = f.svc.Refresh(ctx, session.Token)
	assert.ErrorIs(t, err, domain.ErrAuthRevoked)
}

func TestAuthService_RefreshPicksUpRoleChange(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.register(t, "alice", domain.RoleMember)
	_, session, err := f.svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)

	promoted := domain.RoleModerator
	_, err = f.users.Update(ctx, user.ID, func(u *domain.User) error {
		u.Role = promoted
		return nil
	})
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	refreshed, err := f.svc.Refresh(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, refreshed.Claims.Role)
	assert.Equal(t, t0.Add(time.Minute+time.Hour), refreshed.Claims.ExpiresAt)

	who, err := f.svc.WhoAmI(ctx, refreshed.Claims)
	require.NoError(t, err)
	assert.Equal(t, "alice", who.Username)
}

func TestAuthService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.register(t, "alice", domain.RoleMember)

	_, _, err := f.svc.RequestPasswordReset(ctx, "missing@example.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	token, expiresAt, err := f.svc.RequestPasswordReset(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(auth.ResetTokenTTL), expiresAt)

	require.NoError(t, f.svc.ConfirmPasswordReset(ctx, token, "new-password"))
	assert.ErrorIs(t, f.svc.ConfirmPasswordReset(ctx, token, "other"), domain.ErrResetTokenConsumed)

	_, _, err = f.svc.Login(ctx, "alice", "hunter22")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = f.svc.Login(ctx, "alice", "new-password")
	assert.NoError(t, err)

	assert.Contains(t, f.dispatcher.types(), events.EventPasswordResetRequested)
	assert.Contains(t, f.dispatcher.types(), events.EventPasswordChanged)
}

func TestAuthService_PasswordResetExpired(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	f.register(t, "alice", domain.RoleMember)

	token, _, err := f.svc.RequestPasswordReset(ctx, "alice@example.com")
	require.NoError(t, err)
	f.clock.Advance(11 * time.Minute)

	assert.ErrorIs(t, f.svc.ConfirmPasswordReset(ctx, token, "new-password"), domain.ErrResetTokenExpired)
}

func TestAuthService_ChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	user := f.register(t, "alice", domain.RoleMember)

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, user.ID, "wrong", "next-pass"), domain.ErrInvalidCredentials)
	require.NoError(t, f.svc.ChangePassword(ctx, user.ID, "hunter22", "next-pass"))

	_, _, err := f.svc.Login(ctx, "alice", "next-pass")
	assert.NoError(t, err)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, "ghost", "a", "b"), domain.ErrUserNotFound)
}

func TestUserService_UpdateAccount(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture(t)
	alice := f.register(t, "alice", domain.RoleMember)
	admin := domain.Claims{SubjectID: "admin-1", Role: domain.RoleAdministrator, Status: domain.UserStatusActive}
	mod := domain.Claims{SubjectID: "mod-1", Role: domain.RoleModerator, Status: domain.UserStatusActive}

	_, err := f.accounts.List(ctx, mod)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	role := domain.RoleCritic
	status := domain.UserStatusInactive
	updated, err := f.accounts.UpdateAccount(ctx, admin, alice.ID, AccountUpdate{Role: &role, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCritic, updated.Role)
	assert.Equal(t, domain.UserStatusInactive, updated.Status)

	bogus := domain.Role("king")
	_, err = f.accounts.UpdateAccount(ctx, admin, alice.ID, AccountUpdate{Role: &bogus})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	demote := domain.RoleMember
	_, err = f.accounts.UpdateAccount(ctx, admin, admin.SubjectID, AccountUpdate{Role: &demote})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.accounts.Get(ctx, admin, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	all, err := f.accounts.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitcoach/internal/config"
	"fitcoach/internal/models"
	"fitcoach/internal/repository/memory"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTAccessSecret: "service-test-secret",
			JWTAccessTTL:    time.Minute,
			JWTRefreshTTL:   time.Hour,
			SignatureSecret: "service-test-signature",
			MaxSessions:     2,
		},
	}
}

func newAuth(t *testing.T) (*AuthService, *memory.UserRepository, *memory.SessionRepository) {
	t.Helper()
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	return NewAuthService(users, sessions, testConfig(), zerolog.Nop()), users, sessions
}

func TestRegisterThenAuthenticate(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()

	res, err := auth.Register(ctx, RegisterInput{Email: " Coach@Example.com ", Password: "secret123", Role: models.UserRoleTrainer})
	require.NoError(t, err)
	assert.Equal(t, "coach@example.com", res.User.Email)
	assert.Equal(t, "coach", res.User.DisplayName)
	assert.NotEmpty(t, res.RefreshToken)
	assert.NotEmpty(t, res.DeviceID)

	principal, err := auth.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, principal.User.ID)
	assert.Equal(t, res.SessionID, principal.Claims.SessionID)
	assert.True(t, principal.User.HasAnyRole(models.UserRoleTrainer))
}

func TestRegisterRejectsAdminAndDuplicates(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123", Role: models.UserRoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)
	_, err = auth.Register(ctx, RegisterInput{Email: "A@B.com", Password: "other-pass"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginChecksPassword(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()
	_, err := auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = auth.Login(ctx, LoginInput{Email: "a@b.com", Password: "wrong-one"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, LoginInput{Email: "nobody@b.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	res, err := auth.Login(ctx, LoginInput{Email: "A@b.com", Password: "secret123", DeviceID: "laptop"})
	require.NoError(t, err)
	assert.Equal(t, "laptop", res.DeviceID)
}

func TestLoginRefusesSuspendedUser(t *testing.T) {
	auth, users, _ := newAuth(t)
	ctx := context.Background()
	res, err := auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, users.UpdateStatus(ctx, res.User.ID, models.UserStatusSuspended))
	_, err = auth.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrUserSuspended)
	_, err = auth.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrUserSuspended)
}

func TestRefreshRotatesToken(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()
	res, err := auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)

	next, err := auth.Refresh(ctx, res.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.RefreshToken, next.RefreshToken)
	assert.Equal(t, res.SessionID, next.SessionID)

	_, err = auth.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid, "rotated token is spent")

	_, err = auth.Authenticate(ctx, next.AccessToken)
	assert.NoError(t, err)

	_, err = auth.Refresh(ctx, "")
	assert.ErrorIs(t, err, ErrSessionInvalid)
}

func TestLogoutEndsSession(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()
	res, err := auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123"})
	require.NoError(t, err)

	require.NoError(t, auth.Logout(ctx, LogoutInput{RefreshToken: res.RefreshToken}))
	_, err = auth.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	_, err = auth.Refresh(ctx, res.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)

	assert.NoError(t, auth.Logout(ctx, LogoutInput{RefreshToken: "unknown"}))
	assert.NoError(t, auth.Logout(ctx, LogoutInput{}))
}

func TestSessionLimitDropsOldest(t *testing.T) {
	auth, _, sessions := newAuth(t)
	ctx := context.Background()
	res, err := auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123", DeviceID: "d1"})
	require.NoError(t, err)

	for _, device := range []string{"d2", "d3", "d4"} {
		_, err := auth.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret123", DeviceID: device})
		require.NoError(t, err)
	}

	n, err := sessions.CountByUser(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRevokeDevice(t *testing.T) {
	auth, _, _ := newAuth(t)
	ctx := context.Background()
	phone, err := auth.Register(ctx, RegisterInput{Email: "a@b.com", Password: "secret123", DeviceID: "phone"})
	require.NoError(t, err)
	laptop, err := auth.Login(ctx, LoginInput{Email: "a@b.com", Password: "secret123", DeviceID: "laptop"})
	require.NoError(t, err)

	require.NoError(t, auth.RevokeDevice(ctx, phone.User.ID, "phone"))

	_, err = auth.Authenticate(ctx, phone.AccessToken)
	assert.ErrorIs(t, err, ErrSessionInvalid)
	_, err = auth.Authenticate(ctx, laptop.AccessToken)
	assert.NoError(t, err)

	list, err := auth.Sessions(ctx, phone.User.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "laptop", list[0].DeviceID)
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authCode(t *testing.T, err error) string {
	t.Helper()
	var ae *AuthError
	require.True(t, errors.As(err, &ae), "expected AuthError, got %v", err)
	return ae.Code
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	session, err := env.auth.Register(ctx, "Hanako@Example.com", "secret123", "")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, "hanako@example.com", session.User.Email)
	assert.Equal(t, "hanako", session.User.Name)
	assert.NotEqual(t, "secret123", session.User.Password)

	claims, err := env.auth.ParseToken(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.UserID)
	assert.False(t, claims.Guest)

	login, err := env.auth.Login(ctx, "hanako@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	stored, err := env.users.Load(ctx, session.User.ID)
	require.NoError(t, err)
	assertDecimal(t, "1000000", stored.Portfolio.Cash)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, "not-an-email", "secret123", "")
	assert.Equal(t, CodeInvalidEmail, authCode(t, err))

	_, err = env.auth.Register(ctx, "a@example.com", "12345", "")
	assert.Equal(t, CodeWeakPassword, authCode(t, err))

	_, err = env.auth.Register(ctx, "a@example.com", "secret123", "A")
	require.NoError(t, err)
	_, err = env.auth.Register(ctx, "A@example.com", "secret123", "B")
	assert.Equal(t, CodeEmailInUse, authCode(t, err))
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.auth.Register(ctx, "a@example.com", "secret123", "")
	require.NoError(t, err)

	_, err = env.auth.Login(ctx, "nobody@example.com", "secret123")
	assert.Equal(t, CodeUserNotFound, authCode(t, err))

	_, err = env.auth.Login(ctx, "a@example.com", "wrong-password")
	assert.Equal(t, CodeWrongPassword, authCode(t, err))

	var ae *AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, authMessages[CodeWrongPassword], ae.Message())
}

func TestLoginLockout(t *testing.T) {
	env := newTestEnv(t)
	env.auth.now = env.clock.Now
	ctx := context.Background()
	_, err := env.auth.Register(ctx, "a@example.com", "secret123", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = env.auth.Login(ctx, "a@example.com", "wrong")
		assert.Equal(t, CodeWrongPassword, authCode(t, err))
	}

	_, err = env.auth.Login(ctx, "a@example.com", "secret123")
	assert.Equal(t, CodeTooManyRequests, authCode(t, err))

	env.clock.Advance(16 * time.Minute)
	_, err = env.auth.Login(ctx, "a@example.com", "secret123")
	assert.NoError(t, err)
}

func TestFailuresOutsideWindowDoNotLock(t *testing.T) {
	env := newTestEnv(t)
	env.auth.now = env.clock.Now
	ctx := context.Background()
	_, err := env.auth.Register(ctx, "a@example.com", "secret123", "")
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, _ = env.auth.Login(ctx, "a@example.com", "wrong")
	}
	env.clock.Advance(20 * time.Minute)
	_, _ = env.auth.Login(ctx, "a@example.com", "wrong")

	_, err = env.auth.Login(ctx, "a@example.com", "secret123")
	assert.NoError(t, err)
}

func TestGuestSession(t *testing.T) {
	env := newTestEnv(t)

	session, err := env.auth.Guest(context.Background())
	require.NoError(t, err)
	assert.True(t, session.User.Guest)
	assert.Equal(t, GuestName, session.User.Name)

	claims, err := env.auth.ParseToken(session.Token)
	require.NoError(t, err)
	assert.True(t, claims.Guest)
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.auth.Guest(context.Background())
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(session.Token))

	_, err = env.auth.ParseToken(session.Token)
	assert.Equal(t, CodeInvalidToken, authCode(t, err))
	assert.Equal(t, CodeInvalidToken, authCode(t, env.auth.Logout(session.Token)))

	env.auth.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	assert.Equal(t, 1, env.auth.PurgeExpired())
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	env := newTestEnv(t)
	session, err := env.auth.Guest(context.Background())
	require.NoError(t, err)

	other := NewAuthService(env.store, env.users, env.mailer, AuthConfig{JWTSecret: "other"}, env.auth.log)
	_, err = other.ParseToken(session.Token)
	assert.Equal(t, CodeInvalidToken, authCode(t, err))

	_, err = env.auth.ParseToken("garbage")
	assert.Equal(t, CodeInvalidToken, authCode(t, err))
}

func resetToken(t *testing.T, link string) string {
	t.Helper()
	_, token, ok := strings.Cut(link, "?token=")
	require.True(t, ok, link)
	return token
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, err := env.auth.Register(ctx, "a@example.com", "secret123", "")
	require.NoError(t, err)

	err = env.auth.RequestPasswordReset(ctx, "nobody@example.com")
	assert.Equal(t, CodeUserNotFound, authCode(t, err))

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "A@example.com"))
	assert.Equal(t, "a@example.com", env.mailer.email)
	assert.True(t, strings.HasPrefix(env.mailer.link, "http://localhost:3000/reset-password?token="+session.User.ID+"."))
	token := resetToken(t, env.mailer.link)

	stored, err := env.store.Get(ctx, session.User.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Auth.ResetTokenHash)
	assert.NotContains(t, token, stored.Auth.ResetTokenHash)

	err = env.auth.ConfirmPasswordReset(ctx, token, "short")
	assert.Equal(t, CodeWeakPassword, authCode(t, err))
	err = env.auth.ConfirmPasswordReset(ctx, session.User.ID+".deadbeef", "newsecret")
	assert.Equal(t, CodeInvalidResetToken, authCode(t, err))
	err = env.auth.ConfirmPasswordReset(ctx, "malformed", "newsecret")
	assert.Equal(t, CodeInvalidResetToken, authCode(t, err))

	require.NoError(t, env.auth.ConfirmPasswordReset(ctx, token, "newsecret"))

	_, err = env.auth.Login(ctx, "a@example.com", "secret123")
	assert.Equal(t, CodeWrongPassword, authCode(t, err))
	_, err = env.auth.Login(ctx, "a@example.com", "newsecret")
	assert.NoError(t, err)

	err = env.auth.ConfirmPasswordReset(ctx, token, "another1")
	assert.Equal(t, CodeInvalidResetToken, authCode(t, err))
}

func TestPasswordResetExpires(t *testing.T) {
	env := newTestEnv(t)
	env.auth.now = env.clock.Now
	ctx := context.Background()
	_, err := env.auth.Register(ctx, "a@example.com", "secret123", "")
	require.NoError(t, err)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "a@example.com"))
	token := resetToken(t, env.mailer.link)

	env.clock.Advance(61 * time.Minute)
	err = env.auth.ConfirmPasswordReset(ctx, token, "newsecret")
	assert.Equal(t, CodeInvalidResetToken, authCode(t, err))
}

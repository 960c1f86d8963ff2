package memory_test

import (
	"context"
	"testing"

	"github.com/lorrc/accounts/internal/adapters/secondary/memory"
	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/mocks"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newIdentity(t *testing.T) (*memory.Identity, *mocks.MockNotifier) {
	t.Helper()
	notifier := mocks.NewMockNotifier()
	return memory.NewIdentity(memory.IdentityConfig{Notifier: notifier, HashCost: bcrypt.MinCost}), notifier
}

func assertCode(t *testing.T, err error, code apperrors.BackendCode) {
	t.Helper()
	got, ok := apperrors.CodeOf(err)
	require.True(t, ok, "expected a backend error, got %v", err)
	assert.Equal(t, code, got)
}

func TestIdentity_CreateUser(t *testing.T) {
	ctx := context.Background()
	id, _ := newIdentity(t)

	user, err := id.CreateUser(ctx, "A@B.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, user.UID)
	assert.NotEmpty(t, user.IDToken)
	assert.Equal(t, "a@b.com", user.Email)
	assert.False(t, user.EmailVerified)

	_, err = id.CreateUser(ctx, "a@b.com", "another1")
	assertCode(t, err, apperrors.CodeEmailAlreadyInUse)
}

func TestIdentity_CreateUserValidation(t *testing.T) {
	ctx := context.Background()
	id, _ := newIdentity(t)

	tests := []struct {
		name     string
		email    string
		password string
		code     apperrors.BackendCode
	}{
		{"bad email", "not-an-email", "secret1", apperrors.CodeInvalidEmail},
		{"display name form", "A <a@b.com>", "secret1", apperrors.CodeInvalidEmail},
		{"missing password", "a@b.com", "", apperrors.CodeMissingPassword},
		{"weak password", "a@b.com", "12345", apperrors.CodeWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := id.CreateUser(ctx, tt.email, tt.password)
			assertCode(t, err, tt.code)
		})
	}
}

func TestIdentity_SignIn(t *testing.T) {
	ctx := context.Background()
	id, _ := newIdentity(t)
	created, err := id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	user, err := id.SignIn(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, created.UID, user.UID)
	assert.NotEqual(t, created.IDToken, user.IDToken)

	_, err = id.SignIn(ctx, "a@b.com", "wrong-pass")
	assertCode(t, err, apperrors.CodeWrongPassword)

	_, err = id.SignIn(ctx, "nobody@b.com", "secret1")
	assertCode(t, err, apperrors.CodeUserNotFound)
}

func TestIdentity_VerificationFlow(t *testing.T) {
	ctx := context.Background()
	id, notifier := newIdentity(t)
	user, err := id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	notifier.On("Notify", ctx, mock.MatchedBy(func(p ports.NotificationParams) bool {
		return p.Recipient == "a@b.com" && p.Subject == "Verify your email"
	})).Once()
	require.NoError(t, id.SendEmailVerification(ctx, user))
	notifier.AssertExpectations(t)

	reloaded, err := id.Reload(ctx, user)
	require.NoError(t, err)
	assert.False(t, reloaded.EmailVerified)

	assert.True(t, id.VerifyEmail(user.UID))
	assert.False(t, id.VerifyEmail("unknown"))

	reloaded, err = id.Reload(ctx, user)
	require.NoError(t, err)
	assert.True(t, reloaded.EmailVerified)
	assert.Equal(t, user.IDToken, reloaded.IDToken)
}

func TestIdentity_PasswordReset(t *testing.T) {
	ctx := context.Background()
	id, notifier := newIdentity(t)
	_, err := id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	notifier.On("Notify", ctx, mock.AnythingOfType("ports.NotificationParams")).Once()
	require.NoError(t, id.SendPasswordReset(ctx, "a@b.com"))

	assertCode(t, id.SendPasswordReset(ctx, "nobody@b.com"), apperrors.CodeUserNotFound)
	assertCode(t, id.SendPasswordReset(ctx, "nope"), apperrors.CodeInvalidEmail)
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestIdentity_SignOutRevokesToken(t *testing.T) {
	ctx := context.Background()
	id, _ := newIdentity(t)
	user, err := id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, id.SignOut(ctx, user))

	_, err = id.Reload(ctx, user)
	assertCode(t, err, apperrors.CodeInvalidToken)
}

func TestIdentity_DeleteUser(t *testing.T) {
	ctx := context.Background()
	id, _ := newIdentity(t)
	user, err := id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, id.DeleteUser(ctx, user))

	_, err = id.SignIn(ctx, "a@b.com", "secret1")
	assertCode(t, err, apperrors.CodeUserNotFound)

	err = id.DeleteUser(ctx, user)
	assertCode(t, err, apperrors.CodeInvalidToken)

	err = id.DeleteUser(ctx, nil)
	assertCode(t, err, apperrors.CodeUserNotFound)

	// The address is free again.
	_, err = id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
}

func TestIdentity_ForgedToken(t *testing.T) {
	ctx := context.Background()
	id, _ := newIdentity(t)
	user, err := id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)

	forged := &domain.IdentityUser{UID: user.UID, IDToken: "forged"}
	_, err = id.Reload(ctx, forged)
	assertCode(t, err, apperrors.CodeInvalidToken)
}

func TestIdentity_RefreshToken(t *testing.T) {
	ctx := context.Background()
	id, notifier := newIdentity(t)
	notifier.On("Notify", mock.Anything, mock.Anything)
	user, err := id.CreateUser(ctx, "a@b.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, user.RefreshToken)

	id.ExpireIDTokens(user.UID)
	assertCode(t, id.SendEmailVerification(ctx, user), apperrors.CodeInvalidToken)

	refreshed, err := id.RefreshToken(ctx, user)
	require.NoError(t, err)
	assert.NotEqual(t, user.IDToken, refreshed.IDToken)
	assert.Equal(t, user.RefreshToken, refreshed.RefreshToken)
	require.NoError(t, id.SendEmailVerification(ctx, refreshed))

	require.NoError(t, id.SignOut(ctx, refreshed))
	_, err = id.RefreshToken(ctx, refreshed)
	assertCode(t, err, apperrors.CodeInvalidToken)

	_, err = id.RefreshToken(ctx, &domain.IdentityUser{UID: user.UID})
	assertCode(t, err, apperrors.CodeInvalidToken)
}

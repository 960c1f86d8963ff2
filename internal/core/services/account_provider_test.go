package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/mocks"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/lorrc/accounts/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testStoreURL = "https://example-rtdb.test"

func newTestProvider(t *testing.T) (*services.AccountProvider, *mocks.MockIdentityBackend, *mocks.MockDataStore) {
	t.Helper()
	identity := mocks.NewMockIdentityBackend()
	store := mocks.NewMockDataStore()
	p, err := services.NewAccountProvider(services.ProviderConfig{DataStoreURL: testStoreURL}, identity, store, nil)
	require.NoError(t, err)
	return p, identity, store
}

func profileRef(uid string) ports.Reference {
	return ports.Reference{Location: testStoreURL, Segments: []string{"users", uid}}
}

func signIn(t *testing.T, p *services.AccountProvider, identity *mocks.MockIdentityBackend, user *domain.IdentityUser) {
	t.Helper()
	identity.On("SignIn", mock.Anything, user.Email, "secret1").Return(user, nil).Once()
	_, err := p.Login(context.Background(), user.Email, "secret1")
	require.NoError(t, err)
}

func TestNewAccountProvider(t *testing.T) {
	identity := mocks.NewMockIdentityBackend()
	store := mocks.NewMockDataStore()

	t.Run("missing data store url", func(t *testing.T) {
		p, err := services.NewAccountProvider(services.ProviderConfig{}, identity, store, nil)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, apperrors.ErrMissingConfiguration)
	})

	t.Run("missing backends", func(t *testing.T) {
		p, err := services.NewAccountProvider(services.ProviderConfig{DataStoreURL: testStoreURL}, nil, store, nil)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, apperrors.ErrMissingConfiguration)
	})

	t.Run("starts signed out", func(t *testing.T) {
		p, err := services.NewAccountProvider(services.ProviderConfig{DataStoreURL: testStoreURL}, identity, store, nil)
		require.NoError(t, err)

		assert.False(t, p.IsUserLoggedIn())
		assert.False(t, p.IsUserEmailVerified())
		_, ok := p.UserEmail()
		assert.False(t, ok)
		_, ok = p.UserID()
		assert.False(t, ok)
	})
}

func TestAccountProvider_CreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("success writes initial profile", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		user := &domain.IdentityUser{UID: "uid-1", Email: "a@b.com", IDToken: "tok"}

		identity.On("CreateUser", ctx, "a@b.com", "secret1").Return(user, nil)
		store.On("SetValue", mock.Anything, profileRef("uid-1"), domain.NewUserInfo("a@b.com", "A", "B").Map()).Return(nil)

		err := p.CreateAccount(ctx, "A", "B", "a@b.com", "secret1")

		require.NoError(t, err)
		assert.True(t, p.IsUserLoggedIn())
		assert.False(t, p.IsUserEmailVerified())
		email, ok := p.UserEmail()
		assert.True(t, ok)
		assert.Equal(t, "a@b.com", email)
		identity.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("email already in use", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		identity.On("CreateUser", ctx, "a@b.com", "secret1").
			Return(nil, apperrors.NewBackendError("firebase", apperrors.CodeEmailAlreadyInUse, "EMAIL_EXISTS", ""))

		err := p.CreateAccount(ctx, "A", "B", "a@b.com", "secret1")

		assert.ErrorIs(t, err, apperrors.ErrEmailAlreadyInUse)
		assert.False(t, p.IsUserLoggedIn())
		store.AssertNotCalled(t, "SetValue")
	})

	t.Run("weak password passes through", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		backendErr := apperrors.NewBackendError("firebase", apperrors.CodeWeakPassword, "WEAK_PASSWORD", "")
		identity.On("CreateUser", ctx, "a@b.com", "x").Return(nil, backendErr)

		err := p.CreateAccount(ctx, "A", "B", "a@b.com", "x")

		assert.Same(t, backendErr, err)
	})

	t.Run("profile keeps the address the backend stored", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		identity.On("CreateUser", ctx, "Ann@Example.com", "secret1").
			Return(&domain.IdentityUser{UID: "uid-1", Email: "ann@example.com"}, nil)
		store.On("SetValue", mock.Anything, profileRef("uid-1"), domain.NewUserInfo("ann@example.com", "A", "B").Map()).Return(nil)

		require.NoError(t, p.CreateAccount(ctx, "A", "B", "Ann@Example.com", "secret1"))

		email, _ := p.UserEmail()
		assert.Equal(t, "ann@example.com", email)
		store.AssertExpectations(t)
	})

	t.Run("profile write failure is not reported", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		identity.On("CreateUser", ctx, "a@b.com", "secret1").Return(&domain.IdentityUser{UID: "uid-1", Email: "a@b.com"}, nil)
		store.On("SetValue", mock.Anything, profileRef("uid-1"), mock.Anything).Return(errors.New("store down"))

		err := p.CreateAccount(ctx, "A", "B", "a@b.com", "secret1")

		require.NoError(t, err)
		assert.True(t, p.IsUserLoggedIn())
	})
}

func TestAccountProvider_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("verified user", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		identity.On("SignIn", ctx, "a@b.com", "secret1").
			Return(&domain.IdentityUser{UID: "uid-1", Email: "a@b.com", EmailVerified: true}, nil)

		verified, err := p.Login(ctx, "a@b.com", "secret1")

		require.NoError(t, err)
		assert.True(t, verified)
		assert.True(t, p.IsUserEmailVerified())
		uid, ok := p.UserID()
		assert.True(t, ok)
		assert.Equal(t, "uid-1", uid)
	})

	t.Run("unverified user", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		identity.On("SignIn", ctx, "a@b.com", "secret1").
			Return(&domain.IdentityUser{UID: "uid-1", Email: "a@b.com"}, nil)

		verified, err := p.Login(ctx, "a@b.com", "secret1")

		require.NoError(t, err)
		assert.False(t, verified)
		assert.True(t, p.IsUserLoggedIn())
	})

	for _, code := range []apperrors.BackendCode{
		apperrors.CodeWrongPassword,
		apperrors.CodeUserNotFound,
		apperrors.CodeInvalidLoginCredentials,
	} {
		t.Run("invalid credentials "+string(code), func(t *testing.T) {
			p, identity, _ := newTestProvider(t)
			identity.On("SignIn", ctx, "a@b.com", "bad").
				Return(nil, apperrors.NewBackendError("firebase", code, "", ""))

			verified, err := p.Login(ctx, "a@b.com", "bad")

			assert.False(t, verified)
			assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
			assert.False(t, p.IsUserLoggedIn())
		})
	}

	t.Run("unmapped backend error passes through", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		identity.On("SignIn", ctx, "a@b.com", "secret1").
			Return(nil, apperrors.NewBackendError("firebase", apperrors.CodeTooManyRequests, "TOO_MANY_ATTEMPTS_TRY_LATER", ""))

		_, err := p.Login(ctx, "a@b.com", "secret1")

		assert.ErrorIs(t, err, &apperrors.BackendError{Code: apperrors.CodeTooManyRequests})
		assert.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)
	})
}

func TestAccountProvider_Logout(t *testing.T) {
	t.Run("signed out is a no-op", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)

		require.NoError(t, p.Logout())
		identity.AssertNotCalled(t, "SignOut")
	})

	t.Run("clears the session", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		identity.On("SignOut", mock.Anything, mock.Anything).Return(nil)

		require.NoError(t, p.Logout())

		assert.False(t, p.IsUserLoggedIn())
		_, ok := p.UserID()
		assert.False(t, ok)
	})

	t.Run("failure keeps the session", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		identity.On("SignOut", mock.Anything, mock.Anything).Return(errors.New("boom"))

		assert.Error(t, p.Logout())
		assert.True(t, p.IsUserLoggedIn())
	})
}

func TestAccountProvider_DeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)

		deleted, err := p.DeleteAccount(ctx)

		require.NoError(t, err)
		assert.True(t, deleted)
		identity.AssertNotCalled(t, "DeleteUser")
	})

	t.Run("success", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		identity.On("DeleteUser", ctx, mock.MatchedBy(func(u *domain.IdentityUser) bool { return u.UID == "uid-1" })).Return(nil)

		deleted, err := p.DeleteAccount(ctx)

		require.NoError(t, err)
		assert.True(t, deleted)
		assert.False(t, p.IsUserLoggedIn())
	})

	t.Run("backend failure", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		backendErr := apperrors.NewBackendError("firebase", apperrors.CodeTooManyRequests, "TOO_MANY_ATTEMPTS_TRY_LATER", "")
		identity.On("DeleteUser", ctx, mock.Anything).Return(backendErr)

		deleted, err := p.DeleteAccount(ctx)

		assert.False(t, deleted)
		assert.Same(t, backendErr, err)
		assert.True(t, p.IsUserLoggedIn())
	})
}

func TestAccountProvider_SendEmailVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		assert.NoError(t, p.SendEmailVerification(ctx))
		identity.AssertNotCalled(t, "SendEmailVerification")
	})

	t.Run("sent", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		identity.On("SendEmailVerification", ctx, mock.Anything).Return(nil)

		require.NoError(t, p.SendEmailVerification(ctx))
		identity.AssertExpectations(t)
	})
}

func TestAccountProvider_ResetPassword(t *testing.T) {
	ctx := context.Background()
	p, identity, _ := newTestProvider(t)

	identity.On("SendPasswordReset", ctx, "a@b.com").Return(nil).Once()
	require.NoError(t, p.ResetPassword(ctx, "a@b.com"))

	backendErr := apperrors.NewBackendError("firebase", apperrors.CodeUserNotFound, "EMAIL_NOT_FOUND", "")
	identity.On("SendPasswordReset", ctx, "nobody@b.com").Return(backendErr).Once()
	err := p.ResetPassword(ctx, "nobody@b.com")
	assert.Same(t, backendErr, err)
	assert.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestAccountProvider_SaveUserInfo(t *testing.T) {
	ctx := context.Background()
	info := domain.UserInfo{Email: "a@b.com", FirstName: "A", LastName: "B", Railcard: "16-25"}

	t.Run("no session", func(t *testing.T) {
		p, _, store := newTestProvider(t)

		var calls int
		var got error
		p.SaveUserInfo(ctx, info, func(err error) {
			calls++
			got = err
		})

		assert.Equal(t, 1, calls)
		assert.ErrorIs(t, got, apperrors.ErrUserNotFound)
		store.AssertNotCalled(t, "SetValue")
	})

	t.Run("success carries the id token", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com", IDToken: "tok-1"})

		withToken := mock.MatchedBy(func(ctx context.Context) bool {
			tok, ok := ports.IDTokenFromContext(ctx)
			return ok && tok == "tok-1"
		})
		store.On("SetValue", withToken, profileRef("uid-1"), info.Map()).Return(nil)

		var calls int
		p.SaveUserInfo(ctx, info, func(err error) {
			calls++
			assert.NoError(t, err)
		})

		assert.Equal(t, 1, calls)
		store.AssertExpectations(t)
	})

	t.Run("store failure", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		cause := errors.New("permission denied")
		store.On("SetValue", mock.Anything, profileRef("uid-1"), mock.Anything).Return(cause)

		var got error
		p.SaveUserInfo(ctx, info, func(err error) { got = err })

		assert.ErrorIs(t, got, apperrors.ErrSavingData)
		assert.ErrorIs(t, got, cause)
	})

	t.Run("nil callback", func(t *testing.T) {
		p, _, _ := newTestProvider(t)
		assert.NotPanics(t, func() { p.SaveUserInfo(ctx, info, nil) })
	})
}

func TestAccountProvider_GetUserInfo(t *testing.T) {
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		p, _, store := newTestProvider(t)

		info, err := p.GetUserInfo(ctx)

		assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		assert.Equal(t, domain.UserInfo{}, info)
		store.AssertNotCalled(t, "GetData")
	})

	t.Run("missing record", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		store.On("GetData", mock.Anything, profileRef("uid-1")).Return(nil, nil)

		info, err := p.GetUserInfo(ctx)

		require.NoError(t, err)
		assert.Equal(t, domain.UserInfo{}, info)
	})

	t.Run("partial record", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		store.On("GetData", mock.Anything, profileRef("uid-1")).
			Return(map[string]any{"email": "a@b.com", "railcard": 7}, nil)

		info, err := p.GetUserInfo(ctx)

		require.NoError(t, err)
		assert.Equal(t, domain.UserInfo{Email: "a@b.com"}, info)
	})

	t.Run("store failure passes through", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "a@b.com"})
		cause := errors.New("timeout")
		store.On("GetData", mock.Anything, profileRef("uid-1")).Return(nil, cause)

		_, err := p.GetUserInfo(ctx)

		assert.Same(t, cause, err)
	})
}

func TestAccountProvider_ProfileFollowsSession(t *testing.T) {
	ctx := context.Background()
	p, identity, store := newTestProvider(t)

	signIn(t, p, identity, &domain.IdentityUser{UID: "uid-1", Email: "one@b.com"})
	store.On("GetData", mock.Anything, profileRef("uid-1")).Return(map[string]any{"email": "one@b.com"}, nil)
	info, err := p.GetUserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one@b.com", info.Email)

	signIn(t, p, identity, &domain.IdentityUser{UID: "uid-2", Email: "two@b.com"})
	store.On("GetData", mock.Anything, profileRef("uid-2")).Return(map[string]any{"email": "two@b.com"}, nil)
	info, err = p.GetUserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two@b.com", info.Email)
}

func TestAccountProvider_RefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	expired := apperrors.NewBackendError("firebase", apperrors.CodeInvalidToken, "", "Auth token is expired")
	stale := &domain.IdentityUser{UID: "uid-1", Email: "a@b.com", IDToken: "tok-1", RefreshToken: "rt-1"}
	fresh := &domain.IdentityUser{UID: "uid-1", Email: "a@b.com", IDToken: "tok-2", RefreshToken: "rt-1"}

	withToken := func(want string) any {
		return mock.MatchedBy(func(ctx context.Context) bool {
			tok, ok := ports.IDTokenFromContext(ctx)
			return ok && tok == want
		})
	}

	t.Run("profile read", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, stale)
		store.On("GetData", withToken("tok-1"), profileRef("uid-1")).Return(nil, expired).Once()
		identity.On("RefreshToken", ctx, mock.MatchedBy(func(u *domain.IdentityUser) bool { return u.IDToken == "tok-1" })).
			Return(fresh, nil).Once()
		store.On("GetData", withToken("tok-2"), profileRef("uid-1")).Return(map[string]any{"email": "a@b.com"}, nil)

		info, err := p.GetUserInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", info.Email)

		// The refreshed token stays with the session.
		store.On("SetValue", withToken("tok-2"), profileRef("uid-1"), mock.Anything).Return(nil).Once()
		var saveErr error
		p.SaveUserInfo(ctx, info, func(err error) { saveErr = err })
		require.NoError(t, saveErr)

		identity.AssertNumberOfCalls(t, "RefreshToken", 1)
		store.AssertExpectations(t)
	})

	t.Run("profile write", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, stale)
		store.On("SetValue", withToken("tok-1"), profileRef("uid-1"), mock.Anything).Return(expired).Once()
		identity.On("RefreshToken", ctx, mock.Anything).Return(fresh, nil).Once()
		store.On("SetValue", withToken("tok-2"), profileRef("uid-1"), mock.Anything).Return(nil).Once()

		var saveErr error
		p.SaveUserInfo(ctx, domain.UserInfo{Email: "a@b.com"}, func(err error) { saveErr = err })

		require.NoError(t, saveErr)
		store.AssertExpectations(t)
	})

	t.Run("send verification", func(t *testing.T) {
		p, identity, _ := newTestProvider(t)
		signIn(t, p, identity, stale)
		identity.On("SendEmailVerification", ctx, stale).Return(expired).Once()
		identity.On("RefreshToken", ctx, mock.Anything).Return(fresh, nil).Once()
		identity.On("SendEmailVerification", ctx, fresh).Return(nil).Once()

		require.NoError(t, p.SendEmailVerification(ctx))
		identity.AssertExpectations(t)
	})

	t.Run("refresh failure reports the original error", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, stale)
		store.On("GetData", mock.Anything, profileRef("uid-1")).Return(nil, expired).Once()
		identity.On("RefreshToken", ctx, mock.Anything).
			Return(nil, apperrors.NewBackendError("firebase", apperrors.CodeInvalidToken, "INVALID_REFRESH_TOKEN", "")).Once()

		_, err := p.GetUserInfo(ctx)

		assert.Same(t, expired, err)
		store.AssertNumberOfCalls(t, "GetData", 1)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		p, identity, store := newTestProvider(t)
		signIn(t, p, identity, stale)
		store.On("GetData", mock.Anything, profileRef("uid-1")).Return(nil, errors.New("timeout")).Once()

		_, err := p.GetUserInfo(ctx)

		assert.Error(t, err)
		identity.AssertNotCalled(t, "RefreshToken")
	})
}

package accounts

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/accounts/internal/core/mocks"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/lorrc/accounts/internal/infrastructure/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupMemory(t *testing.T, opts ...Option) *Module {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	mod, err := Setup(context.Background(), Config{
		DataStoreURL:    "mem://accounts",
		IdentityBackend: IdentityMemory,
		Verification: VerificationConfig{
			PollInterval: 5 * time.Millisecond,
			Timeout:      5 * time.Second,
		},
	}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mod.Close() })
	return mod
}

func TestSetup_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "missing data store",
			cfg:     Config{IdentityBackend: IdentityMemory},
			wantErr: ErrMissingConfiguration,
		},
		{
			name:    "unknown scheme",
			cfg:     Config{DataStoreURL: "ftp://example.com", IdentityBackend: IdentityMemory},
			wantErr: ErrUnsupportedDataStore,
		},
		{
			name:    "unknown identity backend",
			cfg:     Config{DataStoreURL: "mem://x", IdentityBackend: "ldap"},
			wantErr: ErrUnsupportedIdentity,
		},
		{
			name:    "firebase without api key",
			cfg:     Config{DataStoreURL: "https://example.firebaseio.com"},
			wantErr: ErrMissingConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, err := Setup(ctx, tt.cfg, WithLogger(testLogger()))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, mod)
		})
	}
}

func TestSetup_Firebase(t *testing.T) {
	mod, err := Setup(context.Background(), Config{
		DataStoreURL:   "https://example.firebaseio.com",
		FirebaseAPIKey: "key",
	}, WithLogger(testLogger()))
	require.NoError(t, err)

	assert.Equal(t, DefaultVerificationConfig(), mod.cfg.Verification)
	assert.Error(t, mod.VerifyEmail("ann@example.com"))
}

func TestModule_ProvidersAreIndependent(t *testing.T) {
	ctx := context.Background()
	mod := setupMemory(t)

	first := mod.AuthProvider()
	second := mod.AuthProvider()

	require.NoError(t, first.CreateAccount(ctx, "Ann", "Lee", "ann@example.com", "secret1"))
	assert.True(t, first.IsUserLoggedIn())
	assert.False(t, second.IsUserLoggedIn())

	_, err := second.GetUserInfo(ctx)
	assert.ErrorIs(t, err, ErrUserNotFound)

	verified, err := second.Login(ctx, "ann@example.com", "secret1")
	require.NoError(t, err)
	assert.False(t, verified)

	info, err := second.GetUserInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, UserInfo{Email: "ann@example.com", FirstName: "Ann", LastName: "Lee"}, info)

	_, err = mod.AuthProvider().Login(ctx, "ann@example.com", "nope12")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestModule_VerifyEmail(t *testing.T) {
	ctx := context.Background()
	mod := setupMemory(t)
	p := mod.AuthProvider()
	require.NoError(t, p.CreateAccount(ctx, "Ann", "Lee", "ann@example.com", "secret1"))

	verifiedCh := make(chan struct{})
	watch := p.ListenToEmailVerification(ctx, func() { close(verifiedCh) })
	t.Cleanup(watch.Cancel)

	require.NoError(t, mod.VerifyEmail("Ann@Example.com"))

	select {
	case <-verifiedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("verification was not observed")
	}
	<-watch.Done()
	assert.NoError(t, watch.Err())
	assert.True(t, p.IsUserEmailVerified())

	assert.ErrorIs(t, mod.VerifyEmail("nobody@example.com"), ErrUserNotFound)
}

func TestModule_Metrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	mod := setupMemory(t, WithMetrics(m))

	p := mod.AuthProvider()
	require.NoError(t, p.CreateAccount(ctx, "Ann", "Lee", "ann@example.com", "secret1"))
	require.NoError(t, p.Logout())
	_, err := p.Login(ctx, "ann@example.com", "wrong1")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("create_account", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("login", metrics.Outcome(err))))
}

func TestModule_Notifier(t *testing.T) {
	ctx := context.Background()
	notifier := mocks.NewMockNotifier()
	notifier.On("Notify", mock.Anything, mock.MatchedBy(func(p ports.NotificationParams) bool {
		return p.Recipient == "ann@example.com" && p.Subject == "Reset your password"
	})).Once()

	mod := setupMemory(t, WithNotifier(notifier))
	p := mod.AuthProvider()
	require.NoError(t, p.CreateAccount(ctx, "Ann", "Lee", "ann@example.com", "secret1"))
	require.NoError(t, p.ResetPassword(ctx, "ann@example.com"))

	notifier.AssertExpectations(t)
}

func TestModule_Ping(t *testing.T) {
	mod := setupMemory(t)
	assert.NoError(t, mod.Ping(context.Background()))
}

package mocks

import (
	"context"

	"github.com/lorrc/accounts/internal/core/domain"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockIdentityBackend is a mock implementation of ports.IdentityBackend
type MockIdentityBackend struct {
	mock.Mock
}

func NewMockIdentityBackend() *MockIdentityBackend {
	return &MockIdentityBackend{}
}

func (m *MockIdentityBackend) CreateUser(ctx context.Context, email, password string) (*domain.IdentityUser, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdentityUser), args.Error(1)
}

func (m *MockIdentityBackend) SignIn(ctx context.Context, email, password string) (*domain.IdentityUser, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdentityUser), args.Error(1)
}

func (m *MockIdentityBackend) SignOut(ctx context.Context, user *domain.IdentityUser) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockIdentityBackend) DeleteUser(ctx context.Context, user *domain.IdentityUser) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockIdentityBackend) SendEmailVerification(ctx context.Context, user *domain.IdentityUser) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockIdentityBackend) Reload(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdentityUser), args.Error(1)
}

func (m *MockIdentityBackend) RefreshToken(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IdentityUser), args.Error(1)
}

func (m *MockIdentityBackend) SendPasswordReset(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// MockDataStore is a mock implementation of ports.DataStore
type MockDataStore struct {
	mock.Mock
}

func NewMockDataStore() *MockDataStore {
	return &MockDataStore{}
}

func (m *MockDataStore) SetValue(ctx context.Context, ref ports.Reference, value map[string]any) error {
	args := m.Called(ctx, ref, value)
	return args.Error(0)
}

func (m *MockDataStore) GetData(ctx context.Context, ref ports.Reference) (any, error) {
	args := m.Called(ctx, ref)
	return args.Get(0), args.Error(1)
}

func (m *MockDataStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDataStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockAccountProvider is a mock implementation of ports.AccountProvider
type MockAccountProvider struct {
	mock.Mock
}

func NewMockAccountProvider() *MockAccountProvider {
	return &MockAccountProvider{}
}

func (m *MockAccountProvider) IsUserLoggedIn() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockAccountProvider) IsUserEmailVerified() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockAccountProvider) UserEmail() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *MockAccountProvider) UserID() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

func (m *MockAccountProvider) CreateAccount(ctx context.Context, firstName, lastName, email, password string) error {
	args := m.Called(ctx, firstName, lastName, email, password)
	return args.Error(0)
}

func (m *MockAccountProvider) DeleteAccount(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountProvider) Login(ctx context.Context, email, password string) (bool, error) {
	args := m.Called(ctx, email, password)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountProvider) Logout() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockAccountProvider) SendEmailVerification(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAccountProvider) ResetPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAccountProvider) ListenToEmailVerification(ctx context.Context, onVerified func()) ports.VerificationWatch {
	args := m.Called(ctx, onVerified)
	return args.Get(0).(ports.VerificationWatch)
}

// SaveUserInfo reports the configured error through onComplete.
func (m *MockAccountProvider) SaveUserInfo(ctx context.Context, info domain.UserInfo, onComplete func(error)) {
	args := m.Called(ctx, info)
	if onComplete != nil {
		onComplete(args.Error(0))
	}
}

func (m *MockAccountProvider) GetUserInfo(ctx context.Context) (domain.UserInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.UserInfo), args.Error(1)
}

// MockNotifier is a mock implementation of ports.Notifier
type MockNotifier struct {
	mock.Mock
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) Notify(ctx context.Context, params ports.NotificationParams) {
	m.Called(ctx, params)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
)

// DefaultUsersCollection is the top-level node holding user profiles.
const DefaultUsersCollection = "users"

// ProviderConfig carries everything an AccountProvider needs besides its backends.
type ProviderConfig struct {
	// DataStoreURL is the location of the profile data store. Required.
	DataStoreURL    string
	UsersCollection string
	Verification    VerificationConfig
}

// AccountProvider implements ports.AccountProvider on top of an identity
// backend and a data store. It holds a single session.
type AccountProvider struct {
	identity ports.IdentityBackend
	store    ports.DataStore
	cfg      ProviderConfig
	logger   *slog.Logger

	mu   sync.RWMutex
	user *domain.IdentityUser
}

var _ ports.AccountProvider = (*AccountProvider)(nil)

// NewAccountProvider creates a provider with no active session.
func NewAccountProvider(
	cfg ProviderConfig,
	identity ports.IdentityBackend,
	store ports.DataStore,
	logger *slog.Logger,
) (*AccountProvider, error) {
	if cfg.DataStoreURL == "" {
		return nil, fmt.Errorf("%w: data store URL is not set", apperrors.ErrMissingConfiguration)
	}
	if identity == nil || store == nil {
		return nil, fmt.Errorf("%w: identity backend and data store are required", apperrors.ErrMissingConfiguration)
	}
	if cfg.UsersCollection == "" {
		cfg.UsersCollection = DefaultUsersCollection
	}
	cfg.Verification = cfg.Verification.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &AccountProvider{
		identity: identity,
		store:    store,
		cfg:      cfg,
		logger:   logger.With("component", "account_provider"),
	}, nil
}

func (p *AccountProvider) currentUser() *domain.IdentityUser {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user.Clone()
}

func (p *AccountProvider) setUser(user *domain.IdentityUser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.user = user.Clone()
}

// refreshUser stores a reloaded copy of the session user, unless the session
// has changed since the reload started.
func (p *AccountProvider) refreshUser(user *domain.IdentityUser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil || user == nil || p.user.UID != user.UID {
		return
	}
	p.user = user.Clone()
}

func (p *AccountProvider) IsUserLoggedIn() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user != nil
}

func (p *AccountProvider) IsUserEmailVerified() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.user != nil && p.user.EmailVerified
}

func (p *AccountProvider) UserEmail() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil || p.user.Email == "" {
		return "", false
	}
	return p.user.Email, true
}

func (p *AccountProvider) UserID() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil || p.user.UID == "" {
		return "", false
	}
	return p.user.UID, true
}

// CreateAccount registers the identity, makes it the current session and
// writes the initial profile.
func (p *AccountProvider) CreateAccount(ctx context.Context, firstName, lastName, email, password string) error {
	// 1. Create the identity
	user, err := p.identity.CreateUser(ctx, email, password)
	if err != nil {
		p.logger.ErrorContext(ctx, "error creating account", "error", err)
		return TranslateError(OpCreateAccount, err)
	}
	p.setUser(user)
	p.logger.InfoContext(ctx, "account created", "user_id", user.UID)

	// 2. Initial profile, keyed to the address as the backend stored it.
	// The account exists either way, so a failed write is only logged.
	if user.Email != "" {
		email = user.Email
	}
	info := domain.NewUserInfo(email, firstName, lastName)
	if err := p.saveProfile(ctx, info); err != nil {
		p.logger.WarnContext(ctx, "initial profile write failed", "user_id", user.UID, "error", err)
	}

	return nil
}

// DeleteAccount removes the signed-in identity. Without a session there is
// nothing to delete and it reports success.
func (p *AccountProvider) DeleteAccount(ctx context.Context) (bool, error) {
	user := p.currentUser()
	if user == nil {
		p.logger.DebugContext(ctx, "delete account without a session")
		return true, nil
	}

	if err := p.withSession(ctx, func(u *domain.IdentityUser) error {
		return p.identity.DeleteUser(ctx, u)
	}); err != nil {
		p.logger.ErrorContext(ctx, "error deleting account", "user_id", user.UID, "error", err)
		return false, TranslateError(OpDeleteAccount, err)
	}

	p.setUser(nil)
	p.logger.InfoContext(ctx, "account deleted", "user_id", user.UID)
	return true, nil
}

// Login signs in and reports whether the email address has been verified.
func (p *AccountProvider) Login(ctx context.Context, email, password string) (bool, error) {
	user, err := p.identity.SignIn(ctx, email, password)
	if err != nil {
		p.logger.ErrorContext(ctx, "error logging in", "error", err)
		return false, TranslateError(OpLogin, err)
	}

	p.setUser(user)
	p.logger.InfoContext(ctx, "user logged in", "user_id", user.UID, "email_verified", user.EmailVerified)
	return user.EmailVerified, nil
}

// Logout ends the session. It is a no-op when nobody is signed in.
func (p *AccountProvider) Logout() error {
	user := p.currentUser()
	if user == nil {
		return nil
	}

	if err := p.identity.SignOut(context.Background(), user); err != nil {
		p.logger.Error("error logging out", "user_id", user.UID, "error", err)
		return TranslateError(OpLogout, err)
	}

	p.setUser(nil)
	p.logger.Info("user logged out", "user_id", user.UID)
	return nil
}

// SendEmailVerification is a no-op without a session.
func (p *AccountProvider) SendEmailVerification(ctx context.Context) error {
	user := p.currentUser()
	if user == nil {
		p.logger.DebugContext(ctx, "email verification requested without a session")
		return nil
	}

	if err := p.withSession(ctx, func(u *domain.IdentityUser) error {
		return p.identity.SendEmailVerification(ctx, u)
	}); err != nil {
		p.logger.ErrorContext(ctx, "error sending email verification", "user_id", user.UID, "error", err)
		return TranslateError(OpSendEmailVerification, err)
	}

	p.logger.InfoContext(ctx, "email verification sent", "user_id", user.UID)
	return nil
}

func (p *AccountProvider) ResetPassword(ctx context.Context, email string) error {
	if err := p.identity.SendPasswordReset(ctx, email); err != nil {
		p.logger.ErrorContext(ctx, "error sending password reset", "error", err)
		return TranslateError(OpResetPassword, err)
	}

	p.logger.InfoContext(ctx, "password reset sent")
	return nil
}

// SaveUserInfo writes info under the current user's profile node and reports
// the outcome through onComplete before returning.
func (p *AccountProvider) SaveUserInfo(ctx context.Context, info domain.UserInfo, onComplete func(error)) {
	err := p.saveProfile(ctx, info)
	if err != nil {
		p.logger.ErrorContext(ctx, "error saving user info", "error", err)
	} else {
		p.logger.InfoContext(ctx, "user info saved")
	}

	if onComplete != nil {
		onComplete(err)
	}
}

// GetUserInfo reads the current user's profile. A missing record yields an
// empty profile.
func (p *AccountProvider) GetUserInfo(ctx context.Context) (domain.UserInfo, error) {
	var value any
	err := p.withSession(ctx, func(u *domain.IdentityUser) error {
		var err error
		value, err = p.store.GetData(ports.ContextWithIDToken(ctx, u.IDToken), p.profileRef(u))
		return err
	})
	if errors.Is(err, errNoSession) {
		return domain.UserInfo{}, apperrors.ErrUserNotFound
	}
	if err != nil {
		p.logger.ErrorContext(ctx, "error fetching user info", "error", err)
		return domain.UserInfo{}, TranslateError(OpGetUserInfo, err)
	}

	return domain.UserInfoFromValue(value), nil
}

func (p *AccountProvider) saveProfile(ctx context.Context, info domain.UserInfo) error {
	err := p.withSession(ctx, func(u *domain.IdentityUser) error {
		return p.store.SetValue(ports.ContextWithIDToken(ctx, u.IDToken), p.profileRef(u), info.Map())
	})
	if errors.Is(err, errNoSession) {
		return apperrors.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrSavingData, err)
	}
	return nil
}

// profileRef derives the profile node of user.
func (p *AccountProvider) profileRef(user *domain.IdentityUser) ports.Reference {
	return ports.Reference{
		Location: p.cfg.DataStoreURL,
		Segments: []string{p.cfg.UsersCollection, user.UID},
	}
}

var errNoSession = errors.New("no session")

// withSession runs fn with the session user. When a backend rejects the ID
// token, the token is refreshed once, stored on the session and fn retried.
func (p *AccountProvider) withSession(ctx context.Context, fn func(*domain.IdentityUser) error) error {
	user := p.currentUser()
	if user == nil || user.UID == "" {
		return errNoSession
	}

	err := fn(user)
	if err == nil || !errors.Is(err, &apperrors.BackendError{Code: apperrors.CodeInvalidToken}) {
		return err
	}

	refreshed, rerr := p.identity.RefreshToken(ctx, user)
	if rerr != nil {
		p.logger.WarnContext(ctx, "id token refresh failed", "user_id", user.UID, "error", rerr)
		return err
	}
	p.refreshUser(refreshed)
	p.logger.DebugContext(ctx, "id token refreshed", "user_id", user.UID)
	return fn(refreshed)
}

package memory

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"

	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	backendName       = "memory"
	minPasswordLength = 6
)

type account struct {
	uid      string
	email    string
	hash     []byte
	verified bool
}

// IdentityConfig configures the in-memory identity backend.
type IdentityConfig struct {
	Notifier ports.Notifier
	Logger   *slog.Logger
	// HashCost defaults to bcrypt.DefaultCost.
	HashCost int
}

// Identity is an in-process ports.IdentityBackend for development and tests.
// It reports failures with the same normalised codes as the hosted backend.
type Identity struct {
	mu       sync.RWMutex
	accounts map[string]*account // by uid
	byEmail  map[string]string   // email -> uid
	tokens   map[string]string   // id token -> uid
	refresh  map[string]string   // refresh token -> uid

	notifier ports.Notifier
	logger   *slog.Logger
	hashCost int
}

var _ ports.IdentityBackend = (*Identity)(nil)

func NewIdentity(cfg IdentityConfig) *Identity {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}

	return &Identity{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
		tokens:   make(map[string]string),
		refresh:  make(map[string]string),
		notifier: cfg.Notifier,
		logger:   cfg.Logger.With("component", "memory_identity"),
		hashCost: cfg.HashCost,
	}
}

func backendErr(code apperrors.BackendCode, raw, msg string) error {
	return apperrors.NewBackendError(backendName, code, raw, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email && strings.Contains(email, "@")
}

func (i *Identity) CreateUser(ctx context.Context, email, password string) (*domain.IdentityUser, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, backendErr(apperrors.CodeInvalidEmail, "INVALID_EMAIL", "The email address is badly formatted.")
	}
	if password == "" {
		return nil, backendErr(apperrors.CodeMissingPassword, "MISSING_PASSWORD", "")
	}
	if len(password) < minPasswordLength {
		return nil, backendErr(apperrors.CodeWeakPassword, "WEAK_PASSWORD",
			fmt.Sprintf("Password should be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, exists := i.byEmail[email]; exists {
		return nil, backendErr(apperrors.CodeEmailAlreadyInUse, "EMAIL_EXISTS", "")
	}

	acc := &account{uid: ulid.Make().String(), email: email, hash: hash}
	i.accounts[acc.uid] = acc
	i.byEmail[email] = acc.uid

	i.logger.DebugContext(ctx, "account created", "user_id", acc.uid)
	return i.issueLocked(acc), nil
}

func (i *Identity) SignIn(ctx context.Context, email, password string) (*domain.IdentityUser, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, backendErr(apperrors.CodeInvalidEmail, "INVALID_EMAIL", "")
	}
	if password == "" {
		return nil, backendErr(apperrors.CodeMissingPassword, "MISSING_PASSWORD", "")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	uid, ok := i.byEmail[email]
	if !ok {
		return nil, backendErr(apperrors.CodeUserNotFound, "EMAIL_NOT_FOUND", "")
	}
	acc := i.accounts[uid]
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return nil, backendErr(apperrors.CodeWrongPassword, "INVALID_PASSWORD", "")
	}

	return i.issueLocked(acc), nil
}

func (i *Identity) SignOut(ctx context.Context, user *domain.IdentityUser) error {
	if user == nil {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.tokens, user.IDToken)
	delete(i.refresh, user.RefreshToken)
	return nil
}

func (i *Identity) DeleteUser(ctx context.Context, user *domain.IdentityUser) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	acc, err := i.accountForLocked(user)
	if err != nil {
		return err
	}

	delete(i.accounts, acc.uid)
	delete(i.byEmail, acc.email)
	i.revokeLocked(acc.uid)
	return nil
}

func (i *Identity) SendEmailVerification(ctx context.Context, user *domain.IdentityUser) error {
	i.mu.RLock()
	acc, err := i.accountForLocked(user)
	var email, uid string
	if err == nil {
		email, uid = acc.email, acc.uid
	}
	i.mu.RUnlock()
	if err != nil {
		return err
	}

	i.notify(ctx, ports.NotificationParams{
		Recipient: email,
		Subject:   "Verify your email",
		Message:   "Confirm the address for account " + uid,
	})
	return nil
}

func (i *Identity) Reload(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	acc, err := i.accountForLocked(user)
	if err != nil {
		return nil, err
	}

	reloaded := user.Clone()
	reloaded.Email = acc.email
	reloaded.EmailVerified = acc.verified
	return reloaded, nil
}

// RefreshToken issues a new ID token for user. The old ID token stops
// working; the refresh token stays valid until sign-out.
func (i *Identity) RefreshToken(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error) {
	if user == nil || user.RefreshToken == "" {
		return nil, backendErr(apperrors.CodeInvalidToken, "INVALID_REFRESH_TOKEN", "")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	uid, ok := i.refresh[user.RefreshToken]
	if !ok || uid != user.UID {
		return nil, backendErr(apperrors.CodeInvalidToken, "INVALID_REFRESH_TOKEN", "")
	}
	acc, ok := i.accounts[uid]
	if !ok {
		return nil, backendErr(apperrors.CodeUserNotFound, "USER_NOT_FOUND", "")
	}

	delete(i.tokens, user.IDToken)
	token := ulid.Make().String()
	i.tokens[token] = uid

	refreshed := user.Clone()
	refreshed.IDToken = token
	refreshed.Email = acc.email
	refreshed.EmailVerified = acc.verified
	return refreshed, nil
}

// ExpireIDTokens invalidates every ID token issued for uid, as their
// lifetime running out would. Refresh tokens are kept.
func (i *Identity) ExpireIDTokens(uid string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for token, owner := range i.tokens {
		if owner == uid {
			delete(i.tokens, token)
		}
	}
}

func (i *Identity) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return backendErr(apperrors.CodeInvalidEmail, "INVALID_EMAIL", "")
	}

	i.mu.RLock()
	_, ok := i.byEmail[email]
	i.mu.RUnlock()
	if !ok {
		return backendErr(apperrors.CodeUserNotFound, "EMAIL_NOT_FOUND", "")
	}

	i.notify(ctx, ports.NotificationParams{
		Recipient: email,
		Subject:   "Reset your password",
		Message:   "Follow the link to choose a new password",
	})
	return nil
}

// VerifyEmail marks the account as verified, as following the emailed link would.
func (i *Identity) VerifyEmail(uid string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	acc, ok := i.accounts[uid]
	if !ok {
		return false
	}
	acc.verified = true
	return true
}

// VerifyEmailAddress is VerifyEmail keyed by address.
func (i *Identity) VerifyEmailAddress(email string) bool {
	i.mu.RLock()
	uid, ok := i.byEmail[normalizeEmail(email)]
	i.mu.RUnlock()
	if !ok {
		return false
	}
	return i.VerifyEmail(uid)
}

func (i *Identity) issueLocked(acc *account) *domain.IdentityUser {
	token := ulid.Make().String()
	refreshToken := ulid.Make().String()
	i.tokens[token] = acc.uid
	i.refresh[refreshToken] = acc.uid
	return &domain.IdentityUser{
		UID:           acc.uid,
		Email:         acc.email,
		EmailVerified: acc.verified,
		IDToken:       token,
		RefreshToken:  refreshToken,
	}
}

func (i *Identity) revokeLocked(uid string) {
	for token, owner := range i.tokens {
		if owner == uid {
			delete(i.tokens, token)
		}
	}
	for token, owner := range i.refresh {
		if owner == uid {
			delete(i.refresh, token)
		}
	}
}

func (i *Identity) accountForLocked(user *domain.IdentityUser) (*account, error) {
	if user == nil {
		return nil, backendErr(apperrors.CodeUserNotFound, "USER_NOT_FOUND", "no current user")
	}
	uid, ok := i.tokens[user.IDToken]
	if !ok || uid != user.UID {
		return nil, backendErr(apperrors.CodeInvalidToken, "INVALID_ID_TOKEN", "")
	}
	acc, ok := i.accounts[uid]
	if !ok {
		return nil, backendErr(apperrors.CodeUserNotFound, "USER_NOT_FOUND", "")
	}
	return acc, nil
}

func (i *Identity) notify(ctx context.Context, params ports.NotificationParams) {
	if i.notifier == nil {
		return
	}
	i.notifier.Notify(ctx, params)
}

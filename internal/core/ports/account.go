package ports

import (
	"context"

	"github.com/lorrc/accounts/internal/core/domain"
)

// AccountProvider is the account capability surface offered to callers.
// Implementations hold one identity session at a time.
type AccountProvider interface {
	IsUserLoggedIn() bool
	IsUserEmailVerified() bool
	UserEmail() (string, bool)
	UserID() (string, bool)

	// CreateAccount registers a new identity, signs it in and writes the
	// initial profile. A failed profile write is not reported.
	CreateAccount(ctx context.Context, firstName, lastName, email, password string) error
	// DeleteAccount removes the signed-in identity.
	DeleteAccount(ctx context.Context) (bool, error)
	// Login signs in and reports whether the email address is verified.
	Login(ctx context.Context, email, password string) (bool, error)
	Logout() error

	SendEmailVerification(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	// ListenToEmailVerification polls the identity backend until the current
	// user is verified, then calls onVerified once.
	ListenToEmailVerification(ctx context.Context, onVerified func()) VerificationWatch

	// SaveUserInfo persists the profile of the signed-in user and calls
	// onComplete exactly once with the outcome.
	SaveUserInfo(ctx context.Context, info domain.UserInfo, onComplete func(error))
	GetUserInfo(ctx context.Context) (domain.UserInfo, error)
}

// VerificationWatch is a handle on a running verification poll.
type VerificationWatch interface {
	Cancel()
	// Done is closed once the watch has reached a terminal state.
	Done() <-chan struct{}
	// Err is nil after verification, ErrVerificationTimeout when the poll
	// gave up, or context.Canceled when it was stopped.
	Err() error
}

// AccountProviderFactory hands out independent providers, each with its own session.
type AccountProviderFactory interface {
	AuthProvider() AccountProvider
}

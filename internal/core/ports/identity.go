package ports

import (
	"context"

	"github.com/lorrc/accounts/internal/core/domain"
)

// IdentityBackend is the external credential service. Failures it recognises
// are reported as *errors.BackendError with a normalised code.
type IdentityBackend interface {
	CreateUser(ctx context.Context, email, password string) (*domain.IdentityUser, error)
	SignIn(ctx context.Context, email, password string) (*domain.IdentityUser, error)
	SignOut(ctx context.Context, user *domain.IdentityUser) error
	DeleteUser(ctx context.Context, user *domain.IdentityUser) error
	SendEmailVerification(ctx context.Context, user *domain.IdentityUser) error
	// Reload fetches the latest state of user, including EmailVerified.
	Reload(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error)
	// RefreshToken exchanges user's refresh token for a new ID token.
	RefreshToken(ctx context.Context, user *domain.IdentityUser) (*domain.IdentityUser, error)
	SendPasswordReset(ctx context.Context, email string) error
}

// Notifier delivers account mail (verification links, password resets).
type Notifier interface {
	Notify(ctx context.Context, params NotificationParams)
}

// NotificationParams defines the input for sending a notification.
type NotificationParams struct {
	Recipient string
	Subject   string
	Message   string
}

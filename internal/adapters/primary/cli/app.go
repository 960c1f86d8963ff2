// Package cli is an interactive terminal client for a single account session.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/lorrc/accounts/internal/core/domain"
	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
)

var errCancelled = errors.New("cancelled")

// App drives one AccountProvider from a terminal.
type App struct {
	provider ports.AccountProvider
	reader   *bufio.Reader
	out      io.Writer
	logger   *slog.Logger
}

// NewApp builds an App reading commands from in and writing to out.
func NewApp(provider ports.AccountProvider, in io.Reader, out io.Writer, logger *slog.Logger) *App {
	return &App{
		provider: provider,
		reader:   bufio.NewReader(in),
		out:      out,
		logger:   logger.With("component", "cli"),
	}
}

// Run starts the command loop and returns when the input ends, the user
// exits, or ctx is cancelled. The session is signed out on return.
func (a *App) Run(ctx context.Context) {
	fmt.Fprintln(a.out, "Accounts CLI (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader, a.out)

	if a.provider.IsUserLoggedIn() {
		if err := a.provider.Logout(); err != nil {
			a.logger.Warn("sign out on exit failed", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.provider.IsUserLoggedIn()
}

func (a *App) status() string {
	email, ok := a.provider.UserEmail()
	if !ok {
		return ""
	}
	if !a.provider.IsUserEmailVerified() {
		return fmt.Sprintf("(%s unverified)", email)
	}
	return fmt.Sprintf("(%s)", email)
}

func (a *App) Register(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	firstName, err := GetSimpleText(a.reader, "Enter first name", a.out)
	if err != nil {
		return err
	}
	lastName, err := GetSimpleText(a.reader, "Enter last name", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	if err := a.provider.CreateAccount(ctx, firstName, lastName, email, string(password)); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account created, signed in as %s\n", email)
	fmt.Fprintln(a.out, "Run 'send-verification' to receive a verification email")
	return nil
}

func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer wipe(password)

	verified, err := a.provider.Login(ctx, email, string(password))
	if err != nil {
		return err
	}
	if verified {
		fmt.Fprintf(a.out, "Signed in as %s\n", email)
	} else {
		fmt.Fprintf(a.out, "Signed in as %s (email not verified yet)\n", email)
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.provider.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

// Status prints the current session.
func (a *App) Status(ctx context.Context) error {
	email, ok := a.provider.UserEmail()
	if !ok {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	uid, _ := a.provider.UserID()
	fmt.Fprintf(a.out, "Signed in as %s\nUser ID: %s\nEmail verified: %t\n",
		email, uid, a.provider.IsUserEmailVerified())
	return nil
}

func (a *App) ResetPassword(ctx context.Context) error {
	current, _ := a.provider.UserEmail()
	email, err := GetTextWithDefault(a.reader, "Enter email", current, a.out)
	if err != nil {
		return err
	}
	if err := a.provider.ResetPassword(ctx, email); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Password reset email sent to %s\n", email)
	return nil
}

func (a *App) SendVerification(ctx context.Context) error {
	if !a.isLoggedIn() {
		return apperrors.ErrUserNotFound
	}
	if err := a.provider.SendEmailVerification(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Verification email sent")
	return nil
}

// WaitVerified blocks until the signed-in user's email is verified, the
// watch gives up, or ctx is cancelled.
func (a *App) WaitVerified(ctx context.Context) error {
	if a.provider.IsUserEmailVerified() {
		fmt.Fprintln(a.out, "Email already verified")
		return nil
	}

	fmt.Fprintln(a.out, "Waiting for the verification link to be opened...")
	watch := a.provider.ListenToEmailVerification(ctx, func() {
		fmt.Fprintln(a.out, "Email verified")
	})
	<-watch.Done()
	return watch.Err()
}

// Profile prints the stored profile in field order.
func (a *App) Profile(ctx context.Context) error {
	info, err := a.provider.GetUserInfo(ctx)
	if err != nil {
		return err
	}
	for _, f := range info.OrderedFields() {
		fmt.Fprintf(a.out, "%-10s %s\n", f.Key+":", f.Value)
	}
	return nil
}

// SetProfile prompts for every profile field, keeping the stored value on
// an empty answer.
func (a *App) SetProfile(ctx context.Context) error {
	info, err := a.provider.GetUserInfo(ctx)
	if err != nil {
		return err
	}

	fields := []struct {
		prompt string
		value  *string
	}{
		{"Email", &info.Email},
		{"First name", &info.FirstName},
		{"Last name", &info.LastName},
		{"Address", &info.Address},
		{"Railcard", &info.Railcard},
		{"Photocard", &info.Photocard},
	}
	for _, f := range fields {
		v, err := GetTextWithDefault(a.reader, f.prompt, *f.value, a.out)
		if err != nil {
			return err
		}
		*f.value = v
	}

	if err := a.save(ctx, info); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Profile saved")
	return nil
}

func (a *App) save(ctx context.Context, info domain.UserInfo) error {
	done := make(chan error, 1)
	a.provider.SaveUserInfo(ctx, info, func(err error) { done <- err })

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) Delete(ctx context.Context) error {
	if !a.isLoggedIn() {
		return apperrors.ErrUserNotFound
	}
	answer, err := GetSimpleText(a.reader, "Type 'delete' to permanently remove this account", a.out)
	if err != nil {
		return err
	}
	if answer != "delete" {
		return errCancelled
	}

	if _, err := a.provider.DeleteAccount(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Account deleted")
	return nil
}

// describe turns an error into a message fit for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, apperrors.ErrEmailAlreadyInUse):
		return "An account with this email already exists"
	case errors.Is(err, apperrors.ErrUserNotFound):
		return "No account found. Sign in first"
	case errors.Is(err, apperrors.ErrSavingData):
		return "The profile could not be saved"
	case errors.Is(err, apperrors.ErrVerificationTimeout):
		return "Gave up waiting for verification"
	case errors.Is(err, context.Canceled):
		return "Interrupted"
	case errors.Is(err, errCancelled):
		return "Cancelled"
	}

	if code, ok := apperrors.CodeOf(err); ok {
		switch code {
		case apperrors.CodeInvalidEmail:
			return "That email address is not valid"
		case apperrors.CodeWeakPassword:
			return "The password must be at least 6 characters"
		case apperrors.CodeMissingPassword:
			return "A password is required"
		case apperrors.CodeTooManyRequests:
			return "Too many attempts, try again later"
		case apperrors.CodeUserDisabled:
			return "This account has been disabled"
		}
	}
	return "Error: " + err.Error()
}

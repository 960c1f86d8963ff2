package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/lorrc/accounts/internal/core/domain"
	"github.com/lorrc/accounts/internal/core/ports"
)

// InstrumentedProvider records every account operation it forwards.
type InstrumentedProvider struct {
	next    ports.AccountProvider
	metrics *Metrics
}

var _ ports.AccountProvider = (*InstrumentedProvider)(nil)

func NewInstrumentedProvider(next ports.AccountProvider, m *Metrics) *InstrumentedProvider {
	return &InstrumentedProvider{next: next, metrics: m}
}

func (p *InstrumentedProvider) observe(op string, start time.Time, err error) {
	p.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	p.metrics.Operations.WithLabelValues(op, Outcome(err)).Inc()
}

func (p *InstrumentedProvider) IsUserLoggedIn() bool      { return p.next.IsUserLoggedIn() }
func (p *InstrumentedProvider) IsUserEmailVerified() bool { return p.next.IsUserEmailVerified() }
func (p *InstrumentedProvider) UserEmail() (string, bool) { return p.next.UserEmail() }
func (p *InstrumentedProvider) UserID() (string, bool)    { return p.next.UserID() }

func (p *InstrumentedProvider) CreateAccount(ctx context.Context, firstName, lastName, email, password string) error {
	start := time.Now()
	err := p.next.CreateAccount(ctx, firstName, lastName, email, password)
	p.observe("create_account", start, err)
	return err
}

func (p *InstrumentedProvider) DeleteAccount(ctx context.Context) (bool, error) {
	start := time.Now()
	ok, err := p.next.DeleteAccount(ctx)
	p.observe("delete_account", start, err)
	return ok, err
}

func (p *InstrumentedProvider) Login(ctx context.Context, email, password string) (bool, error) {
	start := time.Now()
	verified, err := p.next.Login(ctx, email, password)
	p.observe("login", start, err)
	return verified, err
}

func (p *InstrumentedProvider) Logout() error {
	start := time.Now()
	err := p.next.Logout()
	p.observe("logout", start, err)
	return err
}

func (p *InstrumentedProvider) SendEmailVerification(ctx context.Context) error {
	start := time.Now()
	err := p.next.SendEmailVerification(ctx)
	p.observe("send_email_verification", start, err)
	return err
}

func (p *InstrumentedProvider) ResetPassword(ctx context.Context, email string) error {
	start := time.Now()
	err := p.next.ResetPassword(ctx, email)
	p.observe("reset_password", start, err)
	return err
}

// ListenToEmailVerification counts the watch's result once it finishes.
func (p *InstrumentedProvider) ListenToEmailVerification(ctx context.Context, onVerified func()) ports.VerificationWatch {
	w := p.next.ListenToEmailVerification(ctx, onVerified)
	go func() {
		<-w.Done()
		result := "verified"
		switch err := w.Err(); {
		case errors.Is(err, context.Canceled):
			result = "cancelled"
		case err != nil:
			result = Outcome(err)
		}
		p.metrics.VerificationWatch.WithLabelValues(result).Inc()
	}()
	return w
}

func (p *InstrumentedProvider) SaveUserInfo(ctx context.Context, info domain.UserInfo, onComplete func(error)) {
	start := time.Now()
	p.next.SaveUserInfo(ctx, info, func(err error) {
		p.observe("save_user_info", start, err)
		if onComplete != nil {
			onComplete(err)
		}
	})
}

func (p *InstrumentedProvider) GetUserInfo(ctx context.Context) (domain.UserInfo, error) {
	start := time.Now()
	info, err := p.next.GetUserInfo(ctx)
	p.observe("get_user_info", start, err)
	return info, err
}

package services

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/lorrc/accounts/internal/core/errors"
	"github.com/lorrc/accounts/internal/core/ports"
)

const defaultPollInterval = time.Second

// VerificationConfig bounds the email verification poll.
// Zero MaxAttempts and zero Timeout poll until cancelled.
type VerificationConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

// DefaultVerificationConfig returns the shipped bounds.
func DefaultVerificationConfig() VerificationConfig {
	return VerificationConfig{
		PollInterval: defaultPollInterval,
		Timeout:      15 * time.Minute,
	}
}

func (c VerificationConfig) withDefaults() VerificationConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

type verificationWatch struct {
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

var _ ports.VerificationWatch = (*verificationWatch)(nil)

func (w *verificationWatch) Cancel() {
	w.cancel(context.Canceled)
}

func (w *verificationWatch) Done() <-chan struct{} {
	return w.done
}

// Err is only meaningful once Done is closed.
func (w *verificationWatch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *verificationWatch) finish(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	close(w.done)
}

// ListenToEmailVerification starts polling the identity backend for the
// current user's verification state. onVerified runs at most once, on the
// polling goroutine.
func (p *AccountProvider) ListenToEmailVerification(ctx context.Context, onVerified func()) ports.VerificationWatch {
	cfg := p.cfg.Verification

	ctx, cancel := context.WithCancelCause(ctx)
	w := &verificationWatch{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	var stopTimeout context.CancelFunc = func() {}
	if cfg.Timeout > 0 {
		ctx, stopTimeout = context.WithTimeoutCause(ctx, cfg.Timeout, apperrors.ErrVerificationTimeout)
	}

	go func() {
		defer cancel(nil)
		defer stopTimeout()
		w.finish(p.pollVerification(ctx, cfg, onVerified))
	}()

	return w
}

// pollVerification checks right away, then once per interval until the
// address is verified or the watch ends.
func (p *AccountProvider) pollVerification(ctx context.Context, cfg VerificationConfig, onVerified func()) error {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		if p.checkVerified(ctx) {
			if ctx.Err() != nil {
				return watchCause(ctx)
			}
			p.logger.InfoContext(ctx, "email verified", "attempts", attempts)
			if onVerified != nil {
				onVerified()
			}
			return nil
		}

		if cfg.MaxAttempts > 0 && attempts >= cfg.MaxAttempts {
			p.logger.WarnContext(ctx, "email verification poll gave up", "attempts", attempts)
			return apperrors.ErrVerificationTimeout
		}

		select {
		case <-ctx.Done():
			return watchCause(ctx)
		case <-ticker.C:
		}
	}
}

// checkVerified reloads the session user. Reload failures count as not verified.
func (p *AccountProvider) checkVerified(ctx context.Context) bool {
	user := p.currentUser()
	if user == nil {
		p.logger.DebugContext(ctx, "no session while polling verification")
		return false
	}

	reloaded, err := p.identity.Reload(ctx, user)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.ErrorContext(ctx, "error reloading user", "user_id", user.UID, "error", err)
		}
		return false
	}

	p.refreshUser(reloaded)
	return reloaded.EmailVerified
}

func watchCause(ctx context.Context) error {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, apperrors.ErrVerificationTimeout):
		return apperrors.ErrVerificationTimeout
	case cause == nil:
		return context.Canceled
	default:
		return cause
	}
}

package email

import (
	"context"
	"log/slog"

	"github.com/lorrc/accounts/internal/core/ports"
)

// LogNotifier is a secondary adapter that logs account mail instead of sending it.
// It implements the ports.Notifier interface.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier writing to the default logger.
func NewLogNotifier() ports.Notifier {
	return &LogNotifier{
		logger: slog.Default().With("component", "email_notifier"),
	}
}

// NewLogNotifierWithLogger creates a notifier with a custom logger.
func NewLogNotifierWithLogger(logger *slog.Logger) ports.Notifier {
	return &LogNotifier{
		logger: logger.With("component", "email_notifier"),
	}
}

// Notify logs the message. Delivery cannot fail.
func (n *LogNotifier) Notify(ctx context.Context, params ports.NotificationParams) {
	if params.Recipient == "" {
		n.logger.WarnContext(ctx, "notification dropped: no recipient", "subject", params.Subject)
		return
	}

	n.logger.InfoContext(ctx, "mock email sent",
		"to_email", params.Recipient,
		"subject", params.Subject,
		"message", params.Message,
	)
}

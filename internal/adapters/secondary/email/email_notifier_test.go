package email_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/lorrc/accounts/internal/adapters/secondary/email"
	"github.com/lorrc/accounts/internal/core/ports"
	"github.com/stretchr/testify/assert"
)

func TestLogNotifier_Notify(t *testing.T) {
	var buf bytes.Buffer
	n := email.NewLogNotifierWithLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	n.Notify(context.Background(), ports.NotificationParams{
		Recipient: "a@b.com",
		Subject:   "Verify your email",
		Message:   "code 123",
	})

	out := buf.String()
	assert.Contains(t, out, `"to_email":"a@b.com"`)
	assert.Contains(t, out, `"subject":"Verify your email"`)
	assert.Contains(t, out, `"component":"email_notifier"`)
}

func TestLogNotifier_NoRecipient(t *testing.T) {
	var buf bytes.Buffer
	n := email.NewLogNotifierWithLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	n.Notify(context.Background(), ports.NotificationParams{Subject: "x"})

	assert.Contains(t, buf.String(), "notification dropped")
}

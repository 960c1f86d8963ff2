package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lorrc/accounts/internal/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSONWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{
		Level:       "info",
		Format:      "json",
		Output:      &buf,
		ServiceName: "accounts",
		Environment: "test",
	})

	ctx := logging.WithRequestID(context.Background(), "req-1")
	ctx = logging.WithSessionID(ctx, "sid-1")
	ctx = logging.WithUserID(ctx, "uid-1")
	logger.InfoContext(ctx, "hello", "k", "v")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "accounts", entry["service"])
	assert.Equal(t, "test", entry["environment"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "sid-1", entry["session_id"])
	assert.Equal(t, "uid-1", entry["user_id"])
	assert.Equal(t, "v", entry["k"])

	_, err := time.Parse(time.RFC3339Nano, entry["time"].(string))
	assert.NoError(t, err)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.Config{Level: "warn", Output: &buf})

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewLogger_Formats(t *testing.T) {
	var text bytes.Buffer
	logging.NewLogger(logging.Config{Format: "text", Output: &text}).Info("plain")
	assert.Contains(t, text.String(), "msg=plain")

	var console bytes.Buffer
	logging.NewLogger(logging.Config{Format: "console", Output: &console}).
		Error("coloured", "error", errors.New("boom"))
	assert.Contains(t, console.String(), "coloured")
	assert.Contains(t, console.String(), "boom")
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, logging.GetRequestID(ctx))
	assert.Empty(t, logging.GetSessionID(ctx))

	ctx = logging.WithRequestID(ctx, "req-1")
	ctx = logging.WithSessionID(ctx, "sid-1")
	assert.Equal(t, "req-1", logging.GetRequestID(ctx))
	assert.Equal(t, "sid-1", logging.GetSessionID(ctx))
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := logging.NewLogger(logging.Config{Output: &buf})

	logger := logging.LoggerFromContext(logging.WithSessionID(context.Background(), "sid-9"), base)
	logger.Info("scoped")

	assert.Contains(t, buf.String(), `"session_id":"sid-9"`)
}

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped")
	logger.WithFields(slog.String("table", "users")).Warn("skipped column")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "skipped column", record["msg"])
	assert.Equal(t, "users", record["table"])
	assert.Equal(t, "WARN", record["level"])
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = ParseLevel("verbose")
	assert.EqualError(t, err, `unknown log level "verbose"`)
}

func TestFanoutHandlerWritesToEveryHandler(t *testing.T) {
	var debug, errorsOnly bytes.Buffer
	h := newFanoutHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&errorsOnly, &slog.HandlerOptions{Level: slog.LevelError}),
	)
	logger := slog.New(h).With(slog.String("component", "schema"))

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("building")
	logger.Error("failed")

	assert.Contains(t, debug.String(), "msg=building")
	assert.Contains(t, debug.String(), "msg=failed")
	assert.NotContains(t, errorsOnly.String(), "building")
	assert.Contains(t, errorsOnly.String(), "component=schema")
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx).Logger)

	logger := NewLogger(Config{Output: &bytes.Buffer{}})
	ctx = WithLogger(ctx, logger)
	assert.Same(t, logger, FromContext(ctx))

	ctx = WithRequestIDContext(ctx, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
}

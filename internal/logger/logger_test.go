package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsrag/internal/logger"
)

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.WithWriter(&buf))
	l.Info("hello", "key", "value")

	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "key=value")
}

func TestDebugFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.New(logger.WithWriter(&buf), logger.WithDebug(false)).Debug("hidden")
	assert.Empty(t, buf.String())

	logger.New(logger.WithWriter(&buf), logger.WithDebug(true)).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
	l.Info("structured", "count", 42)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	assert.Equal(t, "structured", parsed["msg"])
	assert.EqualValues(t, 42, parsed["count"])
}

func TestPrettyLogger(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.WithWriter(&buf), logger.WithPretty(true))
	l.Info("pretty output")

	assert.Contains(t, buf.String(), "pretty output")
}

func TestMultipleWriters(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	logger.New(logger.WithWriters(&buf1, &buf2)).Info("multi")

	assert.Contains(t, buf1.String(), "multi")
	assert.Contains(t, buf2.String(), "multi")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logger.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("bogus"))
}

func TestNop(t *testing.T) {
	l := logger.Nop()
	assert.NotPanics(t, func() {
		l.Info("msg")
		l.With("key", "value").WithGroup("g").Warn("msg")
	})
	assert.False(t, l.Handler().Enabled(context.Background(), slog.LevelError))
}

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{input: "debug", want: LogLevelDebug},
		{input: "INFO", want: LogLevelInfo},
		{input: "", want: LogLevelInfo},
		{input: "warning", want: LogLevelWarn},
		{input: " warn ", want: LogLevelWarn},
		{input: "error", want: LogLevelError},
		{input: "verbose", want: LogLevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "warn message")
	assert.Contains(t, out, "error message")
	assert.True(t, logger.Enabled(LogLevelError))
	assert.False(t, logger.Enabled(LogLevelInfo))
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: LogLevelDebug, Output: &buf, JSON: true})

	logger.WithOperation(OpFetch).WithKey("/dict/base.dat.gz").Info(context.Background(), "fetched")

	out := buf.String()
	assert.Contains(t, out, `"operation":"fetch"`)
	assert.Contains(t, out, `"key":"/dict/base.dat.gz"`)
	assert.Contains(t, out, `"msg":"fetched"`)
}

func TestLogger_NilAndNop(t *testing.T) {
	ctx := context.Background()

	var nilLogger *Logger
	assert.NotPanics(t, func() {
		nilLogger.Info(ctx, "ignored")
		nilLogger.With("k", "v").Warn(ctx, "ignored")
		LogCacheHit(ctx, nilLogger, "k", 1)
		LogOperation(ctx, nilLogger, OpLoad, time.Second, 0, nil)
	})
	assert.False(t, nilLogger.Enabled(LogLevelError))

	nop := NewNopLogger()
	assert.Same(t, nop, nop.With("k", "v"))
	assert.False(t, nop.Enabled(LogLevelError))
}

func TestLogOperation(t *testing.T) {
	t.Run("failure logs at warn with error", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelWarn, Output: &buf})

		LogOperation(context.Background(), logger, OpCachePut, 5*time.Millisecond, 10, errors.New("disk full"))

		out := buf.String()
		assert.Contains(t, out, "operation failed")
		assert.Contains(t, out, "disk full")
		assert.Contains(t, out, "operation=cache_put")
	})

	t.Run("success is debug by default", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Output: &buf})

		LogOperation(context.Background(), logger, OpCachePut, time.Millisecond, 10, nil)
		assert.Empty(t, buf.String())
	})

	t.Run("success is info when cache operations enabled", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(LogConfig{Level: LogLevelInfo, Output: &buf, EnableCacheOperations: true})

		LogOperation(context.Background(), logger.WithKey("a"), OpCachePut, time.Millisecond, 10, nil)
		LogCacheMiss(context.Background(), logger, "b", "absent")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "operation completed")
		assert.Contains(t, lines[0], "size=10")
		assert.Contains(t, lines[1], "reason=absent")
	})
}

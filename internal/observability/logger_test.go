package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggingConfig(t *testing.T) {
	cfg := DefaultLoggingConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
	assert.False(t, cfg.AddSource)
}

func TestNewLogger(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	formats := []LoggingConfig{
		{Level: "debug", Format: "json", Output: "stdout"},
		{Level: "info", Format: "console", Output: "stderr"},
		{Level: "warn", Format: "pretty", Output: "stdout", AddSource: true},
	}

	for _, cfg := range formats {
		t.Run(cfg.Format, func(t *testing.T) {
			logger := NewLogger(cfg)
			assert.Equal(t, parseLevel(cfg.Level), logger.GetLevel())
		})
	}
}

func TestNewLogger_LeavesOtherLoggersUnfiltered(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	quiet := NewLogger(LoggingConfig{Level: "error", Format: "json", Output: "stdout"})
	assert.Equal(t, zerolog.ErrorLevel, quiet.GetLevel())
	assert.LessOrEqual(t, zerolog.GlobalLevel(), zerolog.InfoLevel)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Msg("still visible")
	require.NotEmpty(t, buf.Bytes())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "still visible", entry["message"])
}

func TestNewLogger_TraceWidensGlobalLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })

	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "trace", Format: "json", Output: "stdout"}).Output(&buf)
	logger.Trace().Msg("fine grained")
	assert.Contains(t, buf.String(), "fine grained")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func decodeLogLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestWithPaperContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithPaperContext(zerolog.New(&buf), "paper-1", "pending_editor")
	logger.Info().Msg("moved")

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "paper-1", entry["paper_id"])
	assert.Equal(t, "pending_editor", entry["status"])
}

func TestWithActorContext(t *testing.T) {
	var buf bytes.Buffer
	logger := WithActorContext(zerolog.New(&buf), "fac-9", "faculty")
	logger.Info().Msg("acted")

	entry := decodeLogLine(t, &buf)
	assert.Equal(t, "fac-9", entry["actor_id"])
	assert.Equal(t, "faculty", entry["actor_role"])
}

func TestLoggerFromContext(t *testing.T) {
	t.Run("adds identifiers present in context", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithRequestID(context.Background(), "req-1")
		ctx = WithCorrelationID(ctx, "corr-1")

		logger := LoggerFromContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("hello")

		entry := decodeLogLine(t, &buf)
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "corr-1", entry["correlation_id"])
	})

	t.Run("leaves logger untouched without identifiers", func(t *testing.T) {
		var buf bytes.Buffer
		logger := LoggerFromContext(context.Background(), zerolog.New(&buf))
		logger.Info().Msg("hello")

		entry := decodeLogLine(t, &buf)
		assert.NotContains(t, entry, "request_id")
	})
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, CorrelationIDFromContext(ctx))

	ctx = WithRequestID(ctx, "r")
	ctx = WithCorrelationID(ctx, "c")
	assert.Equal(t, "r", RequestIDFromContext(ctx))
	assert.Equal(t, "c", CorrelationIDFromContext(ctx))
}
